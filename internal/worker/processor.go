// Package worker drives the deferred side of the lifecycle: it fires due
// upload-timeout checks and executes leased recognition runs. Every unit of
// work is a short read-decide-write against one record; duplicate
// deliveries are absorbed by the store's conditional writes.
package worker

import (
	"context"
	"log"
	"time"

	"blob-recognition/internal/config"
	"blob-recognition/internal/lifecycle"
	"blob-recognition/internal/queue"
	"blob-recognition/internal/telemetry"
)

// Processor polls the queue for due checks and ready recognition runs.
type Processor struct {
	cfg      config.Config
	queue    *queue.RedisQueue
	watcher  *lifecycle.Watcher
	pipeline *lifecycle.Pipeline
}

func NewProcessor(cfg config.Config, q *queue.RedisQueue, watcher *lifecycle.Watcher, pipeline *lifecycle.Pipeline) *Processor {
	return &Processor{
		cfg:      cfg,
		queue:    q,
		watcher:  watcher,
		pipeline: pipeline,
	}
}

// Run starts the main worker loop until context cancellation.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.fireDueChecks(ctx)

		if reclaimed, err := p.queue.RequeueExpired(ctx, time.Now(), 100); err == nil && len(reclaimed) > 0 {
			log.Printf("requeued %d expired recognition leases", len(reclaimed))
		}

		if depth, err := p.queue.ReadyDepth(ctx); err == nil {
			telemetry.ReadyRuns.Set(float64(depth))
		}

		blobID, err := p.queue.DequeueRecognition(ctx)
		if err != nil {
			time.Sleep(p.cfg.WorkerPollInterval)
			continue
		}
		if blobID == "" {
			time.Sleep(p.cfg.WorkerPollInterval)
			continue
		}

		telemetry.InFlightRuns.Inc()
		err = p.pipeline.Run(ctx, blobID)
		telemetry.InFlightRuns.Dec()
		if err != nil {
			// No ack: the lease expires and the run is redelivered. The
			// in-progress precondition makes the retry safe.
			log.Printf("recognition run for %s: %v", blobID, err)
			continue
		}
		_ = p.queue.Ack(ctx, blobID)
	}
}

// fireDueChecks pops every due timeout check and hands it to the watcher.
// A check that errors is logged and dropped; the conditional-write guard
// makes a missed check recoverable by re-arming.
func (p *Processor) fireDueChecks(ctx context.Context) {
	due, err := p.queue.DueTimeoutChecks(ctx, time.Now(), int64(p.cfg.CheckBatchSize))
	if err != nil {
		return
	}
	for _, blobID := range due {
		if err := p.watcher.CheckTimeout(ctx, blobID); err != nil {
			log.Printf("timeout check for %s: %v", blobID, err)
		}
	}
}
