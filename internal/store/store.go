package store

import (
	"context"
	"errors"

	"blob-recognition/internal/models"
)

var (
	// ErrAlreadyExists is returned by Create when the identifier is taken.
	ErrAlreadyExists = errors.New("blob already exists")
	// ErrNotFound is returned when no record exists for an identifier.
	ErrNotFound = errors.New("blob not found")
	// ErrStaleState is returned by a conditional write whose expected
	// status no longer matches. Another writer already transitioned the
	// record; callers treat this as "lost the race", not as a failure.
	ErrStaleState = errors.New("blob status changed concurrently")
)

// Store abstracts persistence for blob lifecycle records.
// Implementations must be safe for concurrent use, and every status
// mutation must be conditional on the caller's expected prior status.
type Store interface {
	Create(ctx context.Context, blob models.Blob) error
	Get(ctx context.Context, id string) (models.Blob, error)
	// UpdateStatus moves a record from one status to another only if the
	// stored status still equals from at write time. An empty detail
	// clears error_detail.
	UpdateStatus(ctx context.Context, id string, from, to models.Status, detail string) error
	// CompleteRecognition persists the normalized labels and moves the
	// record from in-progress to success in a single conditional write.
	CompleteRecognition(ctx context.Context, id string, labels []models.Label) error
}
