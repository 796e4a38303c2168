package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/querypad/querypad-backend/config"
	"github.com/querypad/querypad-backend/internal/bootstrap"
	"github.com/querypad/querypad-backend/internal/events"
	"github.com/querypad/querypad-backend/internal/results"
)

// The worker drains recorded events from the Redis queue into Postgres
// and periodically purges query results no query points at anymore.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{Config: cfg.Database})
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	redisClient, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()

	resultRepo := results.NewRepo(db, results.NewCache(redisClient))
	ttl := time.Duration(cfg.App.ResultTTLDays) * 24 * time.Hour

	go purgeLoop(ctx, resultRepo, ttl)

	consumer := events.NewConsumer(redisClient, events.NewPGSink(db))
	log.Println("worker started")
	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("consumer: %v", err)
	}
	log.Println("worker stopped")
}

func purgeLoop(ctx context.Context, repo *results.Repo, olderThan time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.PurgeUnused(ctx, olderThan)
			if err != nil {
				log.Printf("purge results: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("purged %d unused query results", n)
			}
		}
	}
}
