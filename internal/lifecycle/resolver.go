package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"blob-recognition/internal/models"
	"blob-recognition/internal/store"
)

// Resolution is the external view of a blob's state: either the success
// result or a failure descriptor. The HTTP layer maps every non-success
// resolution to the same not-found transport signal; the status travels
// only in the body.
type Resolution struct {
	Success bool
	Labels  []models.Label
	Status  models.Status
	Detail  string
}

// Resolver answers result queries from the latest committed record state.
type Resolver struct {
	store store.Store
}

func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve maps the record's status to the outward shape. A missing record
// resolves to the not-found status rather than an error; only store I/O
// failures surface as errors.
func (r *Resolver) Resolve(ctx context.Context, blobID string) (Resolution, error) {
	blob, err := r.store.Get(ctx, blobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Resolution{Status: models.StatusNotFound, Detail: "blob not found"}, nil
		}
		return Resolution{}, fmt.Errorf("read blob %s: %w", blobID, err)
	}

	if blob.Status == models.StatusSuccess {
		return Resolution{Success: true, Labels: blob.Labels}, nil
	}
	return Resolution{Status: blob.Status, Detail: failureDetail(blob)}, nil
}

// failureDetail prefers the diagnostic captured at the point of failure and
// falls back to a canned description per status.
func failureDetail(blob models.Blob) string {
	if blob.ErrorDetail != nil && *blob.ErrorDetail != "" {
		return *blob.ErrorDetail
	}
	switch blob.Status {
	case models.StatusWaitingForUpload:
		return "blob has not been uploaded yet"
	case models.StatusUploadTimedOut:
		return "blob upload timed out"
	case models.StatusInProgress:
		return "recognition is in progress"
	case models.StatusInvalidBlob:
		return "invalid image format has been uploaded"
	case models.StatusTooLargeBlob:
		return "too large image has been uploaded"
	case models.StatusCallbackFailure, models.StatusCallbackTimeOut, models.StatusCallbackConnection:
		return "result callback could not be delivered"
	case models.StatusUnexpectedError:
		return "unexpected error occurred during recognition"
	default:
		return ""
	}
}
