package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/blogfeed/internal/broker"
	"example.com/blogfeed/internal/logger"
	"example.com/blogfeed/internal/models"
	"example.com/blogfeed/internal/store"
)

var logg = logger.New()

// ImageRemover deletes stored post images.
type ImageRemover interface {
	IsLocal(path string) bool
	Remove(path string) error
}

// Worker consumes post events and removes the images of deleted posts.
type Worker struct {
	store        store.StoreInterface
	reader       appkafka.KafkaReader
	images       ImageRemover
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(st store.StoreInterface, reader appkafka.KafkaReader, images ImageRemover, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		store:        st,
		reader:       reader,
		images:       images,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts message reading and concurrent processing.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan []byte, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- []byte) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Error("worker", "Kafka read error, backing off", err)
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			if len(msg.Value) == 0 {
				if !waitWithContext(ctx, 50*time.Millisecond) {
					return
				}
				continue
			}

			// Block until a worker is free; a dropped delete event would leak its image.
			for enqueued := false; !enqueued; {
				select {
				case jobs <- msg.Value:
					enqueued = true
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
					logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
				}
			}
		}
	}
}

// processLoop decodes post events and handles them one at a time.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.handle(ctx, data); err != nil {
				logg.Error("worker", "Failed to handle post event", err)
			}
		}
	}
}

// handle applies one post event. Only deletions need work: the image of
// a deleted post is no longer referenced and is removed.
func (w *Worker) handle(ctx context.Context, data []byte) error {
	ev, err := appkafka.DecodePostEvent(data)
	if err != nil {
		return fmt.Errorf("decode post event: %w", err)
	}

	if ev.Action != models.PostDeleted {
		logg.Debug("worker", "Skipping post "+string(ev.Action)+" event")
		return nil
	}

	path := ev.Post.ImageURL
	if path == "" || !w.images.IsLocal(path) {
		return nil
	}

	// Replayed or forged events must not remove the image of a live post.
	existing, err := w.store.GetPost(ctx, ev.Post.ID)
	if err != nil {
		return fmt.Errorf("check deleted post: %w", err)
	}
	if existing != nil {
		logg.Info("worker", "Post still exists, keeping its image")
		return nil
	}

	if err := w.images.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	logg.Info("worker", "Removed image of deleted post")
	return nil
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down Kafka reader and Cassandra session.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}

	logg.Info("worker", "Closing Cassandra session")
	w.store.Close()
	return nil
}
