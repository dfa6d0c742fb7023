package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"blob-recognition/internal/config"
)

func testQueue(t *testing.T, visibility time.Duration) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisQueue(config.Config{
		RedisAddr:         mr.Addr(),
		VisibilityTimeout: visibility,
	})
}

func TestTimeoutChecksPopOnlyWhenDue(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t, time.Minute)
	now := time.Now()

	if err := q.ScheduleTimeoutCheck(ctx, "b1", now.Add(-time.Second)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := q.ScheduleTimeoutCheck(ctx, "b2", now.Add(time.Hour)); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	due, err := q.DueTimeoutChecks(ctx, now, 10)
	if err != nil {
		t.Fatalf("due checks: %v", err)
	}
	if len(due) != 1 || due[0] != "b1" {
		t.Fatalf("expected only b1 due, got %v", due)
	}

	// Popped checks do not fire twice.
	again, err := q.DueTimeoutChecks(ctx, now, 10)
	if err != nil {
		t.Fatalf("due checks: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("check replayed: %v", again)
	}

	future, err := q.DueTimeoutChecks(ctx, now.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("due checks: %v", err)
	}
	if len(future) != 1 || future[0] != "b2" {
		t.Fatalf("expected b2 after its due time, got %v", future)
	}
}

func TestRecognitionDequeueLeasesAndAcks(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t, time.Minute)

	if err := q.EnqueueRecognition(ctx, "b1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	depth, err := q.ReadyDepth(ctx)
	if err != nil || depth != 1 {
		t.Fatalf("ready depth: %d, %v", depth, err)
	}

	id, err := q.DequeueRecognition(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if id != "b1" {
		t.Fatalf("dequeued %q", id)
	}

	// The run is leased, not gone: a healthy lease must not be reclaimed.
	reclaimed, err := q.RequeueExpired(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("requeue expired: %v", err)
	}
	if len(reclaimed) != 0 {
		t.Fatalf("healthy lease reclaimed: %v", reclaimed)
	}

	if err := q.Ack(ctx, "b1"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	reclaimed, err = q.RequeueExpired(ctx, time.Now().Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("requeue expired: %v", err)
	}
	if len(reclaimed) != 0 {
		t.Fatalf("acked run reclaimed: %v", reclaimed)
	}
}

func TestRecognitionDequeueEmptyQueue(t *testing.T) {
	q := testQueue(t, time.Minute)
	id, err := q.DequeueRecognition(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty dequeue, got %q", id)
	}
}

func TestExpiredLeaseIsRequeued(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t, 10*time.Millisecond)

	if err := q.EnqueueRecognition(ctx, "b1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.DequeueRecognition(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	reclaimed, err := q.RequeueExpired(ctx, time.Now().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("requeue expired: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0] != "b1" {
		t.Fatalf("expected b1 reclaimed, got %v", reclaimed)
	}

	id, err := q.DequeueRecognition(ctx)
	if err != nil {
		t.Fatalf("dequeue after reclaim: %v", err)
	}
	if id != "b1" {
		t.Fatalf("reclaimed run not redelivered, got %q", id)
	}
}

func TestRecognitionQueuePreservesOrder(t *testing.T) {
	ctx := context.Background()
	q := testQueue(t, time.Minute)

	for _, id := range []string{"b1", "b2", "b3"} {
		if err := q.EnqueueRecognition(ctx, id); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	for _, want := range []string{"b1", "b2", "b3"} {
		got, err := q.DequeueRecognition(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}
