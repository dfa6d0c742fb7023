package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"blob-recognition/internal/callback"
	"blob-recognition/internal/config"
	"blob-recognition/internal/lifecycle"
	"blob-recognition/internal/queue"
	"blob-recognition/internal/recognizer"
	"blob-recognition/internal/store"
	"blob-recognition/internal/telemetry"
	"blob-recognition/internal/uploads"
	workerproc "blob-recognition/internal/worker"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	// The worker only makes sense against a store the api process shares.
	// Without a DSN the api binary runs the worker in-process instead.
	if cfg.PostgresDSN == "" {
		log.Fatalf("POSTGRES_DSN is required: the DSN-less local mode runs its worker inside the api binary")
	}
	st, err := store.NewPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()
	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	q := queue.NewRedisQueue(cfg)

	var rec recognizer.Recognizer
	if cfg.BlobBucket != "" {
		r, err := recognizer.NewRekognition(ctx, cfg)
		if err != nil {
			log.Fatalf("init rekognition: %v", err)
		}
		rec = r
	} else {
		log.Printf("no BLOB_BUCKET set, using local recognizer over %s", cfg.DataDir)
		blobs := uploads.NewLocalStore(cfg.DataDir, cfg.PublicBaseURL)
		rec = recognizer.NewLocal(blobs, cfg.MaxImageBytes, cfg.MaxLabels, cfg.MinConfidence)
	}

	invoker := callback.New(cfg.CallbackTimeout)
	watcher := lifecycle.NewWatcher(st, q)
	pipeline := lifecycle.NewPipeline(st, rec, invoker)
	processor := workerproc.NewProcessor(cfg, q, watcher, pipeline)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker started with upload_wait=%s callback_timeout=%s", cfg.UploadWaitTime, cfg.CallbackTimeout)
	if err := processor.Run(ctx); err != nil {
		log.Printf("worker stopped: %v", err)
	}
}
