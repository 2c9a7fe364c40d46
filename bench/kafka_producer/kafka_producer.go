package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appkafka "example.com/blogfeed/internal/broker"
	"example.com/blogfeed/internal/models"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Floods the post-events topic with delete events so the cleanup worker can
// be measured in isolation. The referenced images do not exist, which the
// worker treats as already cleaned up.
func main() {
	var (
		total       int
		batchSize   int
		numWorkers  int
		kafkaBroker string
		topic       string
	)
	flag.IntVar(&total, "n", 100000, "total number of messages to send")
	flag.IntVar(&batchSize, "batch", 100, "batch size for sending messages")
	flag.IntVar(&numWorkers, "c", 4, "number of parallel goroutines")
	flag.StringVar(&kafkaBroker, "broker", "localhost:29092", "kafka broker address")
	flag.StringVar(&topic, "topic", "post-events", "kafka topic")
	flag.Parse()

	// Kafka writer with asynchronous sending enabled
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers: []string{kafkaBroker},
		Topic:   topic,
		Async:   true,
	})
	defer w.Close()

	// One synthetic creator for every event
	creatorID := gocql.TimeUUID().String()
	start := time.Now()

	var successCount uint64
	var failCount uint64

	// Channel for feeding message indexes to worker goroutines
	jobs := make(chan int, total)
	var wg sync.WaitGroup

	// --- Start worker goroutines ---
	for wID := 0; wID < numWorkers; wID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]kafka.Message, 0, batchSize)

			flush := func() {
				if len(batch) == 0 {
					return
				}
				if err := w.WriteMessages(context.Background(), batch...); err != nil {
					atomic.AddUint64(&failCount, uint64(len(batch)))
					fmt.Printf("write error: %v\n", err)
				} else {
					atomic.AddUint64(&successCount, uint64(len(batch)))
				}
				batch = batch[:0]
			}

			for i := range jobs {
				now := time.Now()
				msg, err := appkafka.EncodePostEvent(models.PostEvent{
					Action: models.PostDeleted,
					Post: models.Post{
						ID:        uuid.NewString(),
						Title:     fmt.Sprintf("kafka bench %d", i),
						Content:   "bench",
						ImageURL:  fmt.Sprintf("images/bench-%d.png", i),
						CreatorID: creatorID,
						CreatedAt: now,
						UpdatedAt: now,
					},
				})
				if err != nil {
					atomic.AddUint64(&failCount, 1)
					fmt.Printf("encode error: %v\n", err)
					continue
				}

				batch = append(batch, msg)
				if len(batch) >= batchSize {
					flush()
				}
			}

			// Send any remaining messages after finishing loop
			flush()
		}()
	}

	// Feed jobs channel with indexes
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	// Wait for all worker goroutines to finish
	wg.Wait()

	// --- Benchmark results ---
	elapsed := time.Since(start)
	fmt.Printf("Total messages: %d\n", total)
	fmt.Printf("Successful: %d, Failed: %d\n", successCount, failCount)
	fmt.Printf("Elapsed time: %s\n", elapsed)
	fmt.Printf("Throughput: %.2f msg/s\n", float64(successCount)/elapsed.Seconds())
}
