// Package callback delivers the recognition result to the caller-supplied
// URL, once, with a bounded timeout, and classifies what went wrong.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Outcome classifies a single callback attempt.
type Outcome int

const (
	// Delivered means the remote answered 204 No Content.
	Delivered Outcome = iota
	// RejectedStatus means the remote answered with any other status code.
	RejectedStatus
	// TimedOut means no response arrived within the bound.
	TimedOut
	// ConnectionFailed means no connection could be established.
	ConnectionFailed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case RejectedStatus:
		return "rejected-status"
	case TimedOut:
		return "timed-out"
	default:
		return "connection-failed"
	}
}

// Invoker posts result payloads with a single attempt per invocation.
type Invoker struct {
	client  *http.Client
	timeout time.Duration
}

// New builds an invoker with the given per-attempt timeout.
func New(timeout time.Duration) *Invoker {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Invoker{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Invoke posts the payload as JSON and classifies the attempt. The detail
// string carries the diagnostic for failure statuses; it is empty on
// delivery.
func (i *Invoker) Invoke(ctx context.Context, url string, payload any) (Outcome, string) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ConnectionFailed, fmt.Sprintf("marshal callback payload: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ConnectionFailed, fmt.Sprintf("build callback request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return TimedOut, fmt.Sprintf("callback timed out after %s", i.timeout)
		}
		return ConnectionFailed, fmt.Sprintf("callback connection failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return RejectedStatus, fmt.Sprintf("callback rejected with status %d", resp.StatusCode)
	}
	return Delivered, ""
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
