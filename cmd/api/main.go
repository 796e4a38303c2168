package main

import (
	"context"
	"log"
	"time"

	"github.com/querypad/querypad-backend/config"
	"github.com/querypad/querypad-backend/internal/auth"
	"github.com/querypad/querypad-backend/internal/bootstrap"
	"github.com/querypad/querypad-backend/internal/events"
	"github.com/querypad/querypad-backend/internal/queries/repository"
	"github.com/querypad/querypad-backend/internal/results"
	"github.com/querypad/querypad-backend/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	bootstrap.SetGinMode(cfg.App.Environment)

	ctx := context.Background()

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

	authClient, err := auth.InitializeFirebase(&cfg.Firebase)
	if err != nil {
		log.Fatalf("firebase: %v", err)
	}
	if authClient == nil {
		log.Println("firebase disabled, using header-based dev identity")
	}

	var exporter *results.S3Exporter
	if cfg.Export.Bucket != "" {
		exporter, err = results.NewS3Exporter(ctx, cfg.Export, cfg.Export.AccessKeyID, cfg.Export.SecretAccessKey)
		if err != nil {
			log.Fatalf("s3 exporter: %v", err)
		}
	}

	cache := results.NewCache(redisClient)
	resultRepo := results.NewRepo(db, cache)

	recorder := events.NewRedisRecorder(redisClient)
	sweeper := schedule.NewSweeper(repository.NewQueryRepo(db), recorder)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	defer sweeper.Stop()

	r := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:  "querypad-backend",
		Version:      cfg.App.Version,
		DB:           db,
		Redis:        redisClient,
		AuthClient:   authClient,
		Exporter:     exporter,
		ResultRepo:   resultRepo,
		ResultMaxAge: time.Duration(cfg.App.ResultMaxAge) * time.Second,
	})

	log.Printf("listening on :%s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
