package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job is one queued delivery attempt.
type Job struct {
	SubscriptionID string    `json:"subscription_id"`
	Event          string    `json:"event"`
	Payload        []byte    `json:"payload"`
	Attempt        int       `json:"attempt"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

const (
	queueKey           = "webhook:deliveries"
	fallbackBufferSize = 256
)

// Queue is a Redis-list-backed task queue (LPUSH/BRPOP) with an in-process
// buffered-channel fallback when Redis is unreachable, per spec.md §4.7:
// "if the queue is unavailable, fall back to in-process async execution so
// events are still attempted." The fallback channel and its background
// drain are the same shape as the teacher's internal/audit.Writer
// (bounded channel, background goroutine, best-effort drop-with-log only
// once the channel itself is full).
type Queue struct {
	rdb      *redis.Client
	logger   *slog.Logger
	fallback chan Job
}

// NewQueue creates a Queue backed by rdb, with an in-process fallback
// channel of fallbackBufferSize capacity.
func NewQueue(rdb *redis.Client, logger *slog.Logger) *Queue {
	return &Queue{rdb: rdb, logger: logger, fallback: make(chan Job, fallbackBufferSize)}
}

// Enqueue pushes job onto the Redis list. On any Redis error it falls back
// to the in-process channel; if that is also full, the job is dropped
// with a logged warning — the absolute last resort after spec.md §4.7's
// retry budget has not even begun.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("webhook: marshaling job: %w", err)
	}

	if err := q.rdb.LPush(ctx, queueKey, payload).Err(); err != nil {
		q.logger.Warn("redis queue unavailable, falling back to in-process delivery", "error", err)
		select {
		case q.fallback <- job:
		default:
			q.logger.Error("webhook fallback channel full, dropping delivery", "subscription_id", job.SubscriptionID, "event", job.Event)
		}
	}
	return nil
}

// Dequeue blocks (up to timeout) for the next job. It takes a job from the
// in-process fallback channel first, and reads the Redis list only when
// that channel is empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error) {
	select {
	case job := <-q.fallback:
		return job, true, nil
	default:
	}

	result, err := q.rdb.BRPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("webhook: dequeuing from redis: %w", err)
	}

	var job Job
	// BRPop returns [key, value]; result[1] is the payload.
	if len(result) < 2 {
		return Job{}, false, fmt.Errorf("webhook: unexpected BRPop result shape: %v", result)
	}
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return Job{}, false, fmt.Errorf("webhook: unmarshaling job: %w", err)
	}
	return job, true, nil
}
