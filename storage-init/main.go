package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard-api/config"
	"taskboard-api/storage"
)

const initTimeout = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	if cfg.StorageConnectionString == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	if err := storage.EnsureTables(ctx, cfg.StorageConnectionString, cfg.ActivityTable); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	if err := storage.EnsureQueues(ctx, cfg.StorageConnectionString, cfg.EventsQueue); err != nil {
		log.Fatalf("create queues: %v", err)
	}

	log.WithFields(log.Fields{
		"table": cfg.ActivityTable,
		"queue": cfg.EventsQueue,
	}).Info("storage init complete")
}
