package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"

	"blob-recognition/internal/api"
	"blob-recognition/internal/callback"
	"blob-recognition/internal/config"
	"blob-recognition/internal/lifecycle"
	"blob-recognition/internal/queue"
	"blob-recognition/internal/ratelimit"
	"blob-recognition/internal/recognizer"
	"blob-recognition/internal/store"
	"blob-recognition/internal/uploads"
	"blob-recognition/internal/worker"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
		<-ch
		cancel()
	}()

	var st store.Store
	if cfg.PostgresDSN != "" {
		pg, err := store.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		defer pg.Close()
		if err := pg.RunMigrations(ctx); err != nil {
			log.Fatalf("migrations: %v", err)
		}
		st = pg
	} else {
		log.Printf("no POSTGRES_DSN set, using in-memory store with an in-process worker")
		st = store.NewMemory()
	}

	q := queue.NewRedisQueue(cfg)

	var slots uploads.Store
	var local *uploads.LocalStore
	if cfg.BlobBucket != "" {
		s3Store, err := uploads.NewS3Store(ctx, cfg)
		if err != nil {
			log.Fatalf("init s3 store: %v", err)
		}
		slots = s3Store
	} else {
		log.Printf("no BLOB_BUCKET set, storing uploads under %s", cfg.DataDir)
		local = uploads.NewLocalStore(cfg.DataDir, cfg.PublicBaseURL)
		slots = local
	}

	watcher := lifecycle.NewWatcher(st, q)
	resolver := lifecycle.NewResolver(st)

	// The in-memory store is invisible to cmd/worker, so without a shared
	// database the worker runs inside this process over the same store.
	if cfg.PostgresDSN == "" {
		var rec recognizer.Recognizer
		if cfg.BlobBucket != "" {
			r, err := recognizer.NewRekognition(ctx, cfg)
			if err != nil {
				log.Fatalf("init rekognition: %v", err)
			}
			rec = r
		} else {
			rec = recognizer.NewLocal(local, cfg.MaxImageBytes, cfg.MaxLabels, cfg.MinConfidence)
		}
		pipeline := lifecycle.NewPipeline(st, rec, callback.New(cfg.CallbackTimeout))
		processor := worker.NewProcessor(cfg, q, watcher, pipeline)
		go func() {
			if err := processor.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("in-process worker stopped: %v", err)
			}
		}()
	}

	limiterClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewTokenBucket(limiterClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	server := api.New(cfg, st, q, slots, watcher, resolver, limiter, local)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("api listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
