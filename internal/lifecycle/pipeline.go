package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"blob-recognition/internal/callback"
	"blob-recognition/internal/models"
	"blob-recognition/internal/recognizer"
	"blob-recognition/internal/store"
	"blob-recognition/internal/telemetry"
)

// CallbackInvoker delivers one result notification and classifies the
// attempt.
type CallbackInvoker interface {
	Invoke(ctx context.Context, url string, payload any) (callback.Outcome, string)
}

// Pipeline drives one blob from in-progress to a terminal status:
// extract labels, normalize, persist, then notify the callback. Each run is
// single-shot; every failure lands in a terminal status instead of retrying.
type Pipeline struct {
	store   store.Store
	rec     recognizer.Recognizer
	invoker CallbackInvoker
}

func NewPipeline(st store.Store, rec recognizer.Recognizer, invoker CallbackInvoker) *Pipeline {
	return &Pipeline{store: st, rec: rec, invoker: invoker}
}

// resultPayload is the body posted to the caller's callback URL.
type resultPayload struct {
	BlobID string         `json:"blob_id"`
	Labels []models.Label `json:"labels"`
}

// Run executes the pipeline for one blob. Duplicate deliveries of the same
// run are harmless: the in-progress precondition on the persist step makes
// the second pass a no-op before any callback fires.
func (p *Pipeline) Run(ctx context.Context, blobID string) error {
	blob, err := p.store.Get(ctx, blobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("read blob %s: %w", blobID, err)
	}
	if blob.Status != models.StatusInProgress {
		return nil
	}

	raw, err := p.rec.DetectLabels(ctx, blobID)
	if err != nil {
		return p.failRecognition(ctx, blobID, err)
	}

	labels := recognizer.Normalize(raw)

	if err := p.store.CompleteRecognition(ctx, blobID, labels); err != nil {
		if errors.Is(err, store.ErrStaleState) {
			telemetry.LostRaces.Inc()
			return nil
		}
		p.markUnexpected(ctx, blobID, err)
		return fmt.Errorf("persist labels for %s: %w", blobID, err)
	}
	telemetry.RecognitionsSucceeded.Inc()

	outcome, detail := p.invoker.Invoke(ctx, blob.CallbackURL, resultPayload{BlobID: blobID, Labels: labels})
	if outcome == callback.Delivered {
		telemetry.CallbacksDelivered.Inc()
		return nil
	}
	telemetry.CallbacksFailed.Inc()

	// Downgrade the persisted success; labels stay in place since
	// recognition itself completed.
	err = p.store.UpdateStatus(ctx, blobID, models.StatusSuccess, callbackStatus(outcome), detail)
	if err != nil && !errors.Is(err, store.ErrStaleState) {
		return fmt.Errorf("record callback outcome for %s: %w", blobID, err)
	}
	return nil
}

// failRecognition maps an extraction failure to its terminal status. The
// three classified outcomes skip the callback entirely: there is no result
// to report. A failed status write surfaces as an error so the caller
// leaves the run leased and it gets redelivered.
func (p *Pipeline) failRecognition(ctx context.Context, blobID string, cause error) error {
	var status models.Status
	switch recognizer.Classify(cause) {
	case recognizer.KindInvalid:
		status = models.StatusInvalidBlob
	case recognizer.KindTooLarge:
		status = models.StatusTooLargeBlob
	default:
		status = models.StatusUnexpectedError
	}

	err := p.store.UpdateStatus(ctx, blobID, models.StatusInProgress, status, cause.Error())
	if errors.Is(err, store.ErrStaleState) {
		telemetry.LostRaces.Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("record extraction failure for %s: %w", blobID, err)
	}
	telemetry.RecognitionsFailed.Inc()
	return nil
}

func (p *Pipeline) markUnexpected(ctx context.Context, blobID string, cause error) {
	err := p.store.UpdateStatus(ctx, blobID,
		models.StatusInProgress, models.StatusUnexpectedError, cause.Error())
	if err == nil {
		telemetry.RecognitionsFailed.Inc()
	}
}

func callbackStatus(outcome callback.Outcome) models.Status {
	switch outcome {
	case callback.RejectedStatus:
		return models.StatusCallbackFailure
	case callback.TimedOut:
		return models.StatusCallbackTimeOut
	default:
		return models.StatusCallbackConnection
	}
}
