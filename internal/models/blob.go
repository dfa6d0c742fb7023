package models

import (
	"time"
)

// Status enumerates the blob lifecycle states persisted in the store.
// The set is closed; every transition site switches over it exhaustively.
type Status string

const (
	StatusWaitingForUpload   Status = "waiting-for-upload"
	StatusUploadTimedOut     Status = "upload-timed-out"
	StatusInProgress         Status = "in-progress"
	StatusInvalidBlob        Status = "invalid-blob-has-been-uploaded"
	StatusTooLargeBlob       Status = "too-large-blob-has-been-uploaded"
	StatusSuccess            Status = "success"
	StatusCallbackFailure    Status = "failed-due-to-callback-failure"
	StatusCallbackTimeOut    Status = "failed-due-to-callback-time-out"
	StatusCallbackConnection Status = "failed-due-to-callback-connection"
	StatusUnexpectedError    Status = "unexpected-error"

	// StatusNotFound never hits the store; it is the wire value reported
	// when a queried identifier has no record.
	StatusNotFound Status = "not-found"
)

// RecognitionSucceeded reports whether labels were extracted for this
// status. It holds for success and for every callback-failure status,
// since those fail only after recognition completed.
func (s Status) RecognitionSucceeded() bool {
	switch s {
	case StatusSuccess, StatusCallbackFailure, StatusCallbackTimeOut, StatusCallbackConnection:
		return true
	default:
		return false
	}
}

// Label is one recognized label with its normalized confidence (0-100)
// and the names of its ancestor labels, if the backend reports any.
type Label struct {
	Name       string   `json:"name"`
	Confidence int      `json:"confidence"`
	Parents    []string `json:"parents,omitempty"`
}

// Blob is the single source of truth for one upload's lifecycle.
type Blob struct {
	ID               string     `json:"blob_id"`
	Status           Status     `json:"status"`
	CallbackURL      string     `json:"callback_url"`
	UploadSlotExpiry time.Time  `json:"upload_slot_expiry"`
	Labels           []Label    `json:"labels,omitempty"`
	ErrorDetail      *string    `json:"error_detail,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
