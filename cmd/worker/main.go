package main

import (
	"log"
	"time"

	"mosaic/internal/engine/webhooks"
	"mosaic/internal/pkg/logger"
	"mosaic/internal/platform/config"
	"mosaic/internal/platform/database"
	"mosaic/internal/platform/repositories"
	"mosaic/internal/workers"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	configRepo := repositories.NewConfigurationRepository(db)
	eventRepo := repositories.NewEventRepository(db)

	processor := webhooks.NewProcessor(eventRepo, configRepo, webhooks.DefaultProcess, cfg.Webhooks)
	processor.Start()
	defer processor.Stop()

	interval := cfg.Webhooks.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	maxAge := cfg.Webhooks.ProcessingTimeout
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}

	log.Println("Starting background workers...")

	go runStuckSweeper(eventRepo, interval, 2*maxAge)
	go runPendingSweeper(eventRepo, processor, interval)

	select {}
}

func runStuckSweeper(events *repositories.EventRepository, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		workers.FailStuckEvents(events, maxAge)
	}
}

func runPendingSweeper(events *repositories.EventRepository, processor *webhooks.Processor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		workers.RequeueStalePending(events, processor, interval, 100)
	}
}
