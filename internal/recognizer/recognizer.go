// Package recognizer is the label-extraction boundary. Backends report
// failures through a small taxonomy so the pipeline can map them to the
// right terminal status.
package recognizer

import (
	"context"
	"errors"
)

// Kind classifies why extraction failed.
type Kind int

const (
	// KindOther covers everything the taxonomy does not name, including
	// backend unavailability.
	KindOther Kind = iota
	// KindInvalid means the uploaded bytes are not a supported image.
	KindInvalid
	// KindTooLarge means the upload exceeds the backend's size limit.
	KindTooLarge
)

// Error is a classified extraction failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Classify extracts the failure kind from an error chain. Unclassified
// errors report KindOther.
func Classify(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return KindOther
}

// RawLabel is one label as reported by a backend, before normalization.
type RawLabel struct {
	Name       string
	Confidence float64
	Parents    []string
}

// Recognizer extracts labels for an uploaded blob addressed by its key.
type Recognizer interface {
	DetectLabels(ctx context.Context, key string) ([]RawLabel, error)
}
