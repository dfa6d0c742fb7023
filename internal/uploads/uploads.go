// Package uploads is the boundary to the object store that receives blob
// bytes: it issues time-limited upload slots and serves the uploaded bytes
// back to the recognition side.
package uploads

import (
	"context"
	"time"
)

// Store is the object-store boundary consumed by the rest of the service.
type Store interface {
	// IssueUploadURL returns a URL the client can PUT the blob bytes to,
	// valid for ttl.
	IssueUploadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Fetch returns the uploaded bytes for key.
	Fetch(ctx context.Context, key string) ([]byte, error)
}
