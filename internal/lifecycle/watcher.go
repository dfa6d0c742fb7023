// Package lifecycle owns the blob state machine: the upload/timeout race,
// the recognition pipeline's failure taxonomy, and the result resolver.
// All mutation goes through the store's conditional writes; a lost write
// means another path already transitioned the record and is never an error.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"blob-recognition/internal/models"
	"blob-recognition/internal/store"
	"blob-recognition/internal/telemetry"
)

// RunEnqueuer hands a blob to the recognition worker exactly once per won
// race. Duplicate deliveries downstream are absorbed by the in-progress
// precondition.
type RunEnqueuer interface {
	EnqueueRecognition(ctx context.Context, blobID string) error
}

// Watcher settles the race between the deferred timeout check and the
// upload-completed signal. Whichever side wins the conditional write out of
// waiting-for-upload decides the blob's path; the loser is a no-op.
type Watcher struct {
	store store.Store
	runs  RunEnqueuer
}

func NewWatcher(st store.Store, runs RunEnqueuer) *Watcher {
	return &Watcher{store: st, runs: runs}
}

// CheckTimeout fires when the upload wait elapses. It commits
// upload-timed-out only if the record is still waiting; anything else means
// the upload arrived first and there is nothing to do. Safe to deliver more
// than once. The record status alone decides the outcome; the object store
// is never consulted here.
func (w *Watcher) CheckTimeout(ctx context.Context, blobID string) error {
	blob, err := w.store.Get(ctx, blobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("read blob %s: %w", blobID, err)
	}
	if blob.Status != models.StatusWaitingForUpload {
		return nil
	}

	err = w.store.UpdateStatus(ctx, blobID,
		models.StatusWaitingForUpload, models.StatusUploadTimedOut,
		"upload slot expired before any bytes arrived")
	if errors.Is(err, store.ErrStaleState) {
		telemetry.LostRaces.Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark upload timeout for %s: %w", blobID, err)
	}
	telemetry.UploadTimeouts.Inc()
	return nil
}

// OnUploadCompleted fires when the object store reports bytes for the blob.
// Winning the conditional write enqueues exactly one recognition run. A
// stale write means the timeout already committed: the late upload stays in
// storage but recognition never starts, the timeout is authoritative.
func (w *Watcher) OnUploadCompleted(ctx context.Context, blobID string) error {
	err := w.store.UpdateStatus(ctx, blobID,
		models.StatusWaitingForUpload, models.StatusInProgress, "")
	if errors.Is(err, store.ErrStaleState) {
		telemetry.LostRaces.Inc()
		return nil
	}
	if err != nil {
		return err
	}

	telemetry.UploadsCompleted.Inc()
	if err := w.runs.EnqueueRecognition(ctx, blobID); err != nil {
		return fmt.Errorf("enqueue recognition for %s: %w", blobID, err)
	}
	return nil
}
