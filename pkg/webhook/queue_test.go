package webhook

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testQueue(t *testing.T) *Queue {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewQueue(client, logger)
}

func TestQueue_EnqueueDequeueRoundTrip(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	job := Job{SubscriptionID: "sub-1", Event: "finished", Payload: []byte(`{}`), EnqueuedAt: time.Now()}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, ok, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if !ok {
		t.Fatal("expected a job to be dequeued")
	}
	if got.SubscriptionID != job.SubscriptionID || got.Event != job.Event {
		t.Errorf("got = %+v, want matching subscription/event for %+v", got, job)
	}
}

func TestQueue_DequeueEmptyReturnsFalse(t *testing.T) {
	q := testQueue(t)
	_, ok, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if ok {
		t.Error("expected no job on an empty queue")
	}
}

func TestQueue_FallbackChannelDrainsFirst(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	job := Job{SubscriptionID: "sub-fallback", Event: "error"}
	q.fallback <- job

	got, ok, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if !ok || got.SubscriptionID != "sub-fallback" {
		t.Errorf("got = %+v, want fallback job to be drained first", got)
	}
}
