package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"blob-recognition/internal/config"
	"blob-recognition/internal/lifecycle"
	"blob-recognition/internal/models"
	"blob-recognition/internal/ratelimit"
	"blob-recognition/internal/store"
	"blob-recognition/internal/telemetry"
	"blob-recognition/internal/uploads"
)

// CheckScheduler arms the one-shot deferred timeout check for a blob.
type CheckScheduler interface {
	ScheduleTimeoutCheck(ctx context.Context, blobID string, runAt time.Time) error
}

// Server wires the HTTP surface: intake, result queries, and the
// upload-completed signal ingest.
type Server struct {
	cfg       config.Config
	store     store.Store
	scheduler CheckScheduler
	slots     uploads.Store
	watcher   *lifecycle.Watcher
	resolver  *lifecycle.Resolver
	limiter   *ratelimit.TokenBucket
	local     *uploads.LocalStore
}

// New constructs the API server. limiter and local may be nil.
func New(cfg config.Config, st store.Store, scheduler CheckScheduler, slots uploads.Store,
	watcher *lifecycle.Watcher, resolver *lifecycle.Resolver, limiter *ratelimit.TokenBucket,
	local *uploads.LocalStore) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		scheduler: scheduler,
		slots:     slots,
		watcher:   watcher,
		resolver:  resolver,
		limiter:   limiter,
		local:     local,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/blobs", s.handleCreateBlob)
	r.Get("/blobs/{id}", s.handleGetResult)
	r.Post("/blobs/{id}/uploaded", s.handleUploadCompleted)
	if s.local != nil {
		r.Put("/uploads/{id}", s.handleLocalUpload)
	}
	return r
}

type createBlobRequest struct {
	CallbackURL string `json:"callback_url"`
}

type createBlobResponse struct {
	BlobID      string `json:"blob_id"`
	CallbackURL string `json:"callback_url"`
	UploadURL   string `json:"upload_url"`
}

// failureResponse is the fixed failure shape: the internal status plus an
// optional diagnostic.
type failureResponse struct {
	Status models.Status `json:"status"`
	Detail string        `json:"detail,omitempty"`
}

type errorResponse struct {
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func (s *Server) handleCreateBlob(w http.ResponseWriter, r *http.Request) {
	var req createBlobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Description: "invalid json"})
		return
	}
	callbackURL := strings.TrimSpace(req.CallbackURL)
	if !validCallbackURL(callbackURL) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Description: "invalid callback url supplied",
			Payload:     map[string]any{"callback_url": callbackURL},
		})
		return
	}

	if s.limiter != nil {
		dec, err := s.limiter.Allow(r.Context(), tenantFromRequest(r))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Description: "rate limit error"})
			return
		}
		if !dec.Allowed {
			telemetry.RateLimitRejects.Inc()
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Description: "rate limited"})
			return
		}
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	blob := models.Blob{
		ID:               id,
		Status:           models.StatusWaitingForUpload,
		CallbackURL:      callbackURL,
		UploadSlotExpiry: now.Add(s.cfg.UploadSlotTTL),
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	if err := s.store.Create(r.Context(), blob); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Description: "failed to create blob record"})
		return
	}

	if err := s.scheduler.ScheduleTimeoutCheck(r.Context(), id, now.Add(s.cfg.UploadWaitTime)); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Description: "failed to arm upload watcher"})
		return
	}

	uploadURL, err := s.slots.IssueUploadURL(r.Context(), id, s.cfg.UploadSlotTTL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Description: "failed to issue upload url"})
		return
	}

	telemetry.BlobsCreated.Inc()
	writeJSON(w, http.StatusCreated, createBlobResponse{
		BlobID:      id,
		CallbackURL: callbackURL,
		UploadURL:   uploadURL,
	})
}

// handleGetResult answers result queries. Every non-success resolution,
// including an unknown identifier, shares the not-found transport signal;
// the distinguishing status travels in the body only.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.resolver.Resolve(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Description: "failed to resolve blob"})
		return
	}
	if res.Success {
		writeJSON(w, http.StatusOK, map[string]any{"labels": res.Labels})
		return
	}
	writeJSON(w, http.StatusNotFound, failureResponse{Status: res.Status, Detail: res.Detail})
}

// handleUploadCompleted ingests the object-store notification that bytes
// for a blob have landed.
func (s *Server) handleUploadCompleted(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.watcher.OnUploadCompleted(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, failureResponse{Status: models.StatusNotFound, Detail: "blob not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Description: "failed to process upload signal"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleLocalUpload is the local-mode upload sink: it stores the bytes and
// fires the upload-completed signal, the way a bucket notification would.
func (s *Server) handleLocalUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxImageBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Description: "failed to read upload body"})
		return
	}
	if err := s.local.Put(r.Context(), id, body); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Description: "failed to store upload"})
		return
	}
	if err := s.watcher.OnUploadCompleted(r.Context(), id); err != nil && !errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Description: "failed to process upload signal"})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func tenantFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	return "default"
}

func validCallbackURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
