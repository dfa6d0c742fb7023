package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"blob-recognition/internal/config"
)

// RedisQueue carries the two kinds of deferred work this service needs:
// one-shot upload-timeout checks (a scheduled ZSET popped when due) and
// recognition runs (a ready list with an in-flight lease ZSET). Delivery is
// at-least-once; the store's conditional writes absorb duplicates.
type RedisQueue struct {
	client        *redis.Client
	checksKey     string
	readyKey      string
	inflightKey   string
	visibilityTTL time.Duration
}

// NewRedisQueue builds a queue client from config.
func NewRedisQueue(cfg config.Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	visibility := cfg.VisibilityTimeout
	if visibility == 0 {
		visibility = 30 * time.Second
	}
	return &RedisQueue{
		client:        client,
		checksKey:     "blobs:timeout-checks",
		readyKey:      "blobs:recognition:ready",
		inflightKey:   "blobs:recognition:inflight",
		visibilityTTL: visibility,
	}
}

// ScheduleTimeoutCheck arms the one-shot deferred check for a blob.
func (q *RedisQueue) ScheduleTimeoutCheck(ctx context.Context, blobID string, runAt time.Time) error {
	return q.client.ZAdd(ctx, q.checksKey, redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: blobID,
	}).Err()
}

// DueTimeoutChecks pops blob IDs whose check time has passed.
func (q *RedisQueue) DueTimeoutChecks(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.checksKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.checksKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// EnqueueRecognition pushes a blob onto the recognition run queue.
func (q *RedisQueue) EnqueueRecognition(ctx context.Context, blobID string) error {
	return q.client.RPush(ctx, q.readyKey, blobID).Err()
}

// DequeueRecognition pops a run from the ready list and places it into
// in-flight with a visibility timeout.
func (q *RedisQueue) DequeueRecognition(ctx context.Context) (string, error) {
	keys := []string{q.readyKey, q.inflightKey}
	res, err := dequeueScript.Run(ctx, q.client, keys, time.Now().Add(q.visibilityTTL).UnixMilli()).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	blobID, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	return blobID, nil
}

// Ack removes a run from in-flight tracking.
func (q *RedisQueue) Ack(ctx context.Context, blobID string) error {
	return q.client.ZRem(ctx, q.inflightKey, blobID).Err()
}

// RequeueExpired reclaims runs whose lease timed out, re-enqueuing them.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.inflightKey, id)
		pipe.RPush(ctx, q.readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// ReadyDepth returns the length of the recognition run queue.
func (q *RedisQueue) ReadyDepth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.readyKey).Result()
}

var dequeueScript = redis.NewScript(`
local run = redis.call('LPOP', KEYS[1])
if run then
  redis.call('ZADD', KEYS[2], ARGV[1], run)
  return run
end
return nil
`)
