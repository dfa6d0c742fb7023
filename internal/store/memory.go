package store

import (
	"context"
	"sync"
	"time"

	"blob-recognition/internal/models"
)

// Memory is an in-memory Store used by tests and by DSN-less local runs.
// Conditional writes happen under a single mutex, giving the same
// first-writer-wins semantics as the Postgres WHERE-status guard.
type Memory struct {
	mu    sync.Mutex
	blobs map[string]models.Blob
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]models.Blob)}
}

func (m *Memory) Create(_ context.Context, blob models.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[blob.ID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = now
	}
	if blob.UpdatedAt.IsZero() {
		blob.UpdatedAt = now
	}
	if blob.Version == 0 {
		blob.Version = 1
	}
	m.blobs[blob.ID] = copyBlob(blob)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (models.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[id]
	if !ok {
		return models.Blob{}, ErrNotFound
	}
	return copyBlob(blob), nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, from, to models.Status, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[id]
	if !ok {
		return ErrNotFound
	}
	if blob.Status != from {
		return ErrStaleState
	}
	blob.Status = to
	if detail == "" {
		blob.ErrorDetail = nil
	} else {
		d := detail
		blob.ErrorDetail = &d
	}
	blob.Version++
	blob.UpdatedAt = time.Now().UTC()
	m.blobs[id] = blob
	return nil
}

func (m *Memory) CompleteRecognition(_ context.Context, id string, labels []models.Label) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[id]
	if !ok {
		return ErrNotFound
	}
	if blob.Status != models.StatusInProgress {
		return ErrStaleState
	}
	blob.Status = models.StatusSuccess
	blob.Labels = copyLabels(labels)
	blob.ErrorDetail = nil
	blob.Version++
	blob.UpdatedAt = time.Now().UTC()
	m.blobs[id] = blob
	return nil
}

func copyBlob(b models.Blob) models.Blob {
	out := b
	out.Labels = copyLabels(b.Labels)
	if b.ErrorDetail != nil {
		d := *b.ErrorDetail
		out.ErrorDetail = &d
	}
	return out
}

func copyLabels(labels []models.Label) []models.Label {
	if labels == nil {
		return nil
	}
	out := make([]models.Label, len(labels))
	for i, l := range labels {
		out[i] = l
		if l.Parents != nil {
			out[i].Parents = append([]string(nil), l.Parents...)
		}
	}
	return out
}
