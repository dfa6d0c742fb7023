package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"blob-recognition/internal/models"
	"blob-recognition/internal/store"
)

type fakeEnqueuer struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeEnqueuer) EnqueueRecognition(_ context.Context, blobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, blobID)
	return nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}

func newWaitingBlob(t *testing.T, st store.Store, id string) {
	t.Helper()
	err := st.Create(context.Background(), models.Blob{
		ID:               id,
		Status:           models.StatusWaitingForUpload,
		CallbackURL:      "http://callback.example/hook",
		UploadSlotExpiry: time.Now().Add(30 * time.Second),
	})
	if err != nil {
		t.Fatalf("create blob: %v", err)
	}
}

func TestCheckTimeoutBeforeUpload(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	runs := &fakeEnqueuer{}
	w := NewWatcher(st, runs)
	newWaitingBlob(t, st, "b1")

	if err := w.CheckTimeout(ctx, "b1"); err != nil {
		t.Fatalf("check timeout: %v", err)
	}

	blob, err := st.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	if blob.Status != models.StatusUploadTimedOut {
		t.Fatalf("expected upload-timed-out, got %s", blob.Status)
	}

	// A late upload is accepted by storage but must not start recognition.
	if err := w.OnUploadCompleted(ctx, "b1"); err != nil {
		t.Fatalf("late upload signal: %v", err)
	}
	blob, _ = st.Get(ctx, "b1")
	if blob.Status != models.StatusUploadTimedOut {
		t.Fatalf("late upload overwrote the timeout: %s", blob.Status)
	}
	if runs.count() != 0 {
		t.Fatalf("late upload enqueued a recognition run")
	}
}

func TestUploadBeforeCheckTimeout(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	runs := &fakeEnqueuer{}
	w := NewWatcher(st, runs)
	newWaitingBlob(t, st, "b2")

	if err := w.OnUploadCompleted(ctx, "b2"); err != nil {
		t.Fatalf("upload signal: %v", err)
	}
	if runs.count() != 1 {
		t.Fatalf("expected one recognition run, got %d", runs.count())
	}

	// The deferred check still fires; it must be a benign no-op.
	if err := w.CheckTimeout(ctx, "b2"); err != nil {
		t.Fatalf("check timeout after upload: %v", err)
	}

	blob, _ := st.Get(ctx, "b2")
	if blob.Status != models.StatusInProgress {
		t.Fatalf("expected in-progress, got %s", blob.Status)
	}
	if runs.count() != 1 {
		t.Fatalf("deferred check caused extra work")
	}
}

func TestRaceSettlesToExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		st := store.NewMemory()
		runs := &fakeEnqueuer{}
		w := NewWatcher(st, runs)
		newWaitingBlob(t, st, "race")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = w.CheckTimeout(ctx, "race")
		}()
		go func() {
			defer wg.Done()
			_ = w.OnUploadCompleted(ctx, "race")
		}()
		wg.Wait()

		blob, err := st.Get(ctx, "race")
		if err != nil {
			t.Fatalf("get blob: %v", err)
		}
		switch blob.Status {
		case models.StatusInProgress:
			if runs.count() != 1 {
				t.Fatalf("upload won but %d runs enqueued", runs.count())
			}
		case models.StatusUploadTimedOut:
			if runs.count() != 0 {
				t.Fatalf("timeout won but a run was enqueued")
			}
		default:
			t.Fatalf("record settled in %s", blob.Status)
		}
	}
}

func TestWatcherIdempotence(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	runs := &fakeEnqueuer{}
	w := NewWatcher(st, runs)
	newWaitingBlob(t, st, "b3")

	if err := w.OnUploadCompleted(ctx, "b3"); err != nil {
		t.Fatalf("first upload signal: %v", err)
	}
	// The object store may deliver the notification more than once.
	if err := w.OnUploadCompleted(ctx, "b3"); err != nil {
		t.Fatalf("duplicate upload signal: %v", err)
	}
	if runs.count() != 1 {
		t.Fatalf("duplicate signal enqueued a second run")
	}

	// Duplicate check firings are equally harmless.
	if err := w.CheckTimeout(ctx, "b3"); err != nil {
		t.Fatalf("check after transition: %v", err)
	}
	if err := w.CheckTimeout(ctx, "b3"); err != nil {
		t.Fatalf("second check after transition: %v", err)
	}
}

func TestCheckTimeoutUnknownBlob(t *testing.T) {
	st := store.NewMemory()
	w := NewWatcher(st, &fakeEnqueuer{})
	if err := w.CheckTimeout(context.Background(), "ghost"); err != nil {
		t.Fatalf("check for missing record should be a no-op, got %v", err)
	}
}
