package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"blob-recognition/internal/models"
)

// Postgres implements Store on top of pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates a pooled connection to Postgres.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Create inserts the initial record. The identifier is the primary key, so
// a duplicate insert surfaces as ErrAlreadyExists.
func (s *Postgres) Create(ctx context.Context, blob models.Blob) error {
	now := time.Now().UTC()
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = now
	}
	if blob.UpdatedAt.IsZero() {
		blob.UpdatedAt = now
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blobs (id, status, callback_url, upload_slot_expiry, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $6)
	`, blob.ID, string(blob.Status), blob.CallbackURL, blob.UploadSlotExpiry, blob.CreatedAt, blob.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert blob: %w", err)
	}
	return nil
}

// Get fetches a blob by id.
func (s *Postgres) Get(ctx context.Context, id string) (models.Blob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, status, callback_url, upload_slot_expiry, labels, error_detail, version, created_at, updated_at
		FROM blobs WHERE id = $1
	`, id)

	var blob models.Blob
	var status string
	var labelsJSON []byte
	var detail pgtype.Text

	err := row.Scan(&blob.ID, &status, &blob.CallbackURL, &blob.UploadSlotExpiry,
		&labelsJSON, &detail, &blob.Version, &blob.CreatedAt, &blob.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Blob{}, ErrNotFound
	}
	if err != nil {
		return models.Blob{}, fmt.Errorf("scan blob: %w", err)
	}

	blob.Status = models.Status(status)
	if len(labelsJSON) > 0 {
		if err := json.Unmarshal(labelsJSON, &blob.Labels); err != nil {
			return models.Blob{}, fmt.Errorf("unmarshal labels: %w", err)
		}
	}
	if detail.Valid {
		blob.ErrorDetail = &detail.String
	}
	return blob, nil
}

// UpdateStatus applies the transition only when the stored status still
// equals from; the WHERE clause is the conditional-write guard.
func (s *Postgres) UpdateStatus(ctx context.Context, id string, from, to models.Status, detail string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE blobs
		SET status = $3, error_detail = NULLIF($4, ''), version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), detail)
	if err != nil {
		return fmt.Errorf("update blob status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, id)
	}
	return nil
}

// CompleteRecognition writes labels and the success status together so a
// success record can never be observed without its labels.
func (s *Postgres) CompleteRecognition(ctx context.Context, id string, labels []models.Label) error {
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE blobs
		SET status = $3, labels = $4, error_detail = NULL, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, string(models.StatusInProgress), string(models.StatusSuccess), labelsJSON)
	if err != nil {
		return fmt.Errorf("complete recognition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleOrMissing(ctx, id)
	}
	return nil
}

// staleOrMissing disambiguates a zero-row conditional write: either the
// record is gone or another writer got there first.
func (s *Postgres) staleOrMissing(ctx context.Context, id string) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM blobs WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("probe blob: %w", err)
	}
	return ErrStaleState
}
