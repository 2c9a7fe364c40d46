package worker

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"example.com/blogfeed/internal/models"
	"example.com/blogfeed/internal/store"
	"github.com/segmentio/kafka-go"
)

func bytesReader(s string) io.Reader {
	return bytes.NewReader([]byte(s))
}

// TestWorker_GracefulShutdown ensures that the worker:
// 1. Processes messages from Kafka.
// 2. Removes the image of the deleted post.
// 3. Shuts down gracefully when the context is canceled.
func TestWorker_GracefulShutdown(t *testing.T) {
	images := newImages(t)
	path := saveImage(t, images)

	mockKafka := &MockKafkaReader{
		Messages: []kafka.Message{eventMessage(t, models.PostDeleted, models.Post{ID: "p1", ImageURL: path})},
	}

	// Context with timeout to simulate graceful shutdown signal
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	worker := &Worker{
		store:  store.NewMock(),
		reader: mockKafka,
		images: images,
	}

	go func() {
		worker.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
		if imageExists(images, path) {
			t.Fatalf("image was not removed before shutdown")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("worker did not shutdown gracefully in time")
	}

	if err := worker.Close(); err != nil {
		t.Fatalf("worker Close() error: %v", err)
	}

	if !mockKafka.isClosed() {
		t.Fatal("expected Kafka reader to be closed")
	}
}

// MockKafkaReader simulates a Kafka reader for testing purposes
type MockKafkaReader struct {
	mu         sync.Mutex
	Messages   []kafka.Message // Queue of messages to return
	ShouldFail bool            // If true, ReadMessage will fail
	Closed     bool            // Tracks whether Close() has been called
}

// ReadMessage returns the next message in the queue or simulates a failure/context cancel
func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if m.ShouldFail {
		return kafka.Message{}, ctx.Err()
	}
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Messages) == 0 {
		time.Sleep(5 * time.Millisecond) // simulate idle wait
		return kafka.Message{}, nil
	}

	msg := m.Messages[0]
	m.Messages = m.Messages[1:]
	return msg, nil
}

// Close marks the mock Kafka reader as closed
func (m *MockKafkaReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

func (m *MockKafkaReader) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}
