package callback

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type payload struct {
	BlobID string   `json:"blob_id"`
	Labels []string `json:"labels"`
}

func TestInvokeDelivered(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	outcome, detail := New(time.Second).Invoke(context.Background(), srv.URL, payload{BlobID: "b1", Labels: []string{"Dog"}})
	if outcome != Delivered {
		t.Fatalf("expected delivered, got %s (%s)", outcome, detail)
	}
	if detail != "" {
		t.Fatalf("delivered attempt carried detail %q", detail)
	}
	if got.BlobID != "b1" {
		t.Fatalf("server saw payload %+v", got)
	}
}

func TestInvokeNon204IsRejected(t *testing.T) {
	codes := []int{http.StatusOK, http.StatusAccepted, http.StatusInternalServerError}
	for _, code := range codes {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))
		outcome, detail := New(time.Second).Invoke(context.Background(), srv.URL, payload{BlobID: "b1"})
		srv.Close()
		if outcome != RejectedStatus {
			t.Fatalf("status %d: expected rejected-status, got %s", code, outcome)
		}
		if !strings.Contains(detail, "status") {
			t.Fatalf("status %d: detail %q does not name the status", code, detail)
		}
	}
}

func TestInvokeSlowServerTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	defer close(release)

	outcome, detail := New(50 * time.Millisecond).Invoke(context.Background(), srv.URL, payload{BlobID: "b1"})
	if outcome != TimedOut {
		t.Fatalf("expected timed-out, got %s (%s)", outcome, detail)
	}
}

func TestInvokeUnreachableServerIsConnectionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	url := srv.URL
	srv.Close()

	outcome, detail := New(time.Second).Invoke(context.Background(), url, payload{BlobID: "b1"})
	if outcome != ConnectionFailed {
		t.Fatalf("expected connection-failed, got %s (%s)", outcome, detail)
	}
}

func TestOutcomeString(t *testing.T) {
	if Delivered.String() != "delivered" || TimedOut.String() != "timed-out" {
		t.Fatalf("unexpected outcome strings: %s %s", Delivered, TimedOut)
	}
}
