package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"example.com/blogfeed/cmd/server"
	"example.com/blogfeed/cmd/worker"
	appkafka "example.com/blogfeed/internal/broker"
	config "example.com/blogfeed/internal/init"
	"example.com/blogfeed/internal/store"
	"example.com/blogfeed/internal/upload"
)

func main() {
	// Initialize application configuration
	cfg, err := config.Init()
	if err != nil {
		log.Fatalf("Config init failed: %v", err)
	}

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Cassandra store connection
	st, err := store.New()
	if err != nil {
		log.Fatalf("Cassandra connection failed: %v", err)
	}
	defer st.Close()

	// Configure Kafka client parameters
	kafkaCfg := appkafka.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}

	// Run application depending on selected mode
	switch cfg.Mode {
	case "server":
		// API server: publishes post events to Kafka
		kafkaWriter, err := appkafka.NewKafkaWriter(ctx, kafkaCfg)
		if err != nil {
			log.Fatalf("Kafka writer init failed: %v", err)
		}
		defer kafkaWriter.Close()

		if err := server.Run(ctx, cfg, st, kafkaWriter); err != nil {
			log.Printf("Server error: %v", err)
		}
	case "worker":
		// Worker: consumes post events and cleans up orphaned images
		kafkaReader := appkafka.NewKafkaReader(kafkaCfg)
		defer kafkaReader.Close()

		images, err := upload.NewFileStore(cfg.ImagesDir, cfg.ImagesURLPrefix)
		if err != nil {
			log.Fatalf("Image store init failed: %v", err)
		}

		w := worker.New(st, kafkaReader, images, cfg.WorkerCount, 0)
		w.Run(ctx)
	default:
		log.Fatalf("unknown mode: %s", cfg.Mode)
	}

	log.Println("Shutdown completed")
}
