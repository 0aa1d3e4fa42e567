package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"town-desk/config"
	"town-desk/db"
	"town-desk/eventbus"
	"town-desk/normalizer"
	"town-desk/repositories"
	"town-desk/workflow"
)

const pollInterval = 1 * time.Hour

func main() {
	config.InitApp()
	cfg := config.GetConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Init(ctx); err != nil {
		config.Logger.Errorf("failed to initialize MongoDB: %v", err)
		os.Exit(1)
	}

	brokers := eventbus.GetBrokers()
	if err := eventbus.EnsureTopics(brokers, eventbus.TopicClassify, 3); err != nil {
		config.Logger.Errorf("failed to ensure classify topics: %v", err)
	}

	bus, err := eventbus.NewKafkaEventBus(brokers)
	if err != nil {
		config.Logger.Errorf("failed to create event bus: %v", err)
		os.Exit(1)
	}
	defer bus.Close()

	items := repositories.NewRawContentItemRepository(db.Database())
	runRepo := repositories.NewWorkflowRunRepository(db.Database())
	service := NewIngestService(
		normalizer.New(items),
		bus,
		workflow.NewTracker(runRepo),
		cfg,
	)

	config.Logger.Info("starting ingest service...")

	// first cycle runs immediately, then on the poll interval
	if err := service.RunCollection(ctx); err != nil {
		config.Logger.Errorf("ingestion cycle failed: %v", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigChan:
			config.Logger.Info("received shutdown signal, stopping ingest service")
			cancel()
			return
		case <-ticker.C:
			if err := service.RunCollection(ctx); err != nil {
				config.Logger.Errorf("ingestion cycle failed: %v", err)
			}
		}
	}
}
