package uploads

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore keeps blobs under a directory. Upload slots point at the API's
// own PUT /uploads/{id} sink, which writes through Put. Used when no bucket
// is configured.
type LocalStore struct {
	baseDir string
	baseURL string
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(baseDir, baseURL string) *LocalStore {
	if baseDir == "" {
		baseDir = "./data"
	}
	return &LocalStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// IssueUploadURL returns the local upload sink for the key. The TTL is
// advisory here; expiry is enforced by the deferred timeout check.
func (l *LocalStore) IssueUploadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return l.baseURL + "/uploads/" + key, nil
}

func (l *LocalStore) Fetch(_ context.Context, key string) ([]byte, error) {
	body, err := os.ReadFile(l.path(key))
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return body, nil
}

// Put writes uploaded bytes for the key.
func (l *LocalStore) Put(_ context.Context, key string, body []byte) error {
	path := l.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

func (l *LocalStore) path(key string) string {
	key = filepath.Clean(key)
	key = strings.TrimPrefix(key, string(filepath.Separator))
	key = strings.TrimPrefix(key, "./")
	return filepath.Join(l.baseDir, key)
}
