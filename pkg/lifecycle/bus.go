// Package lifecycle fans out LifecycleEvents per query_id to live
// subscribers (in-process) and a Redis-backed retention buffer (for
// reconnect replay), and serves them over the SSE transport.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wisbric/amila/pkg/orchestrator"
)

// Event is the wire shape from spec.md §3/§6.2.
type Event struct {
	QueryID   string                   `json:"query_id"`
	State     orchestrator.LifecycleState `json:"state"`
	Timestamp time.Time                `json:"timestamp"`
	Metadata  map[string]any           `json:"metadata,omitempty"`
	TraceID   string                   `json:"trace_id,omitempty"`
}

const (
	retentionTTL    = 6 * time.Hour
	retentionMaxLen = 200
	subscriberBuf   = 16
)

// Bus fans out events per query_id, generalized from the teacher's
// per-channel Redis pub/sub usage (pkg/escalation/engine.go's
// rdb.Subscribe/rdb.Publish) from a single global channel to one list key
// per query, plus an in-process subscriber map for live delivery without a
// Redis round trip.
type Bus struct {
	rdb *redis.Client

	mu          sync.Mutex
	subscribers map[string][]chan Event
}

// NewBus creates a Bus backed by rdb.
func NewBus(rdb *redis.Client) *Bus {
	return &Bus{
		rdb:         rdb,
		subscribers: make(map[string][]chan Event),
	}
}

func redisKey(queryID string) string {
	return fmt.Sprintf("lifecycle:%s", queryID)
}

// Publish appends event to the retention list, trims/refreshes its TTL,
// and fans out to any live in-process subscribers for this query_id. A
// full or closed subscriber channel is dropped silently — a slow
// subscriber never blocks the publisher or the orchestrator it's driven
// by.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("lifecycle: marshaling event: %w", err)
	}

	key := redisKey(event.QueryID)
	pipe := b.rdb.Pipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -retentionMaxLen, -1)
	pipe.Expire(ctx, key, retentionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("lifecycle: publishing to redis: %w", err)
	}

	// Sends happen under b.mu so a concurrent Subscription.Close, which
	// closes its channel under the same lock, cannot race a send into a
	// closed channel.
	b.mu.Lock()
	for _, ch := range b.subscribers[event.QueryID] {
		select {
		case ch <- event:
		default:
		}
	}
	b.mu.Unlock()
	return nil
}

// PublishLifecycle implements pkg/orchestrator.EventPublisher, letting the
// Engine depend on the narrow interface rather than importing this package
// directly (lifecycle already imports orchestrator for LifecycleState, so
// the reverse import would cycle).
func (b *Bus) PublishLifecycle(ctx context.Context, queryID string, state orchestrator.LifecycleState, traceID string, metadata map[string]any) error {
	return b.Publish(ctx, Event{
		QueryID:   queryID,
		State:     state,
		Timestamp: time.Now(),
		TraceID:   traceID,
		Metadata:  metadata,
	})
}

// Subscription is returned by Subscribe; Close releases the channel.
type Subscription struct {
	Events <-chan Event
	bus    *Bus
	queryID string
	ch      chan Event
}

// Close unregisters the subscriber channel.
func (s *Subscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	subs := s.bus.subscribers[s.queryID]
	for i, ch := range subs {
		if ch == s.ch {
			s.bus.subscribers[s.queryID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(s.ch)
	return nil
}

// Subscribe registers a live subscriber and replays the last known event
// from the retention list immediately, per spec.md §4.2: "late
// subscribers receive the last known state immediately on subscribe, then
// live updates."
func (b *Bus) Subscribe(ctx context.Context, queryID string) (*Subscription, error) {
	ch := make(chan Event, subscriberBuf)

	b.mu.Lock()
	b.subscribers[queryID] = append(b.subscribers[queryID], ch)
	b.mu.Unlock()

	sub := &Subscription{Events: ch, bus: b, queryID: queryID, ch: ch}

	last, err := b.Last(ctx, queryID)
	if err != nil {
		return sub, fmt.Errorf("lifecycle: loading last event for replay: %w", err)
	}
	if last != nil {
		select {
		case ch <- *last:
		default:
		}
	}
	return sub, nil
}

// Last returns the most recently published event for queryID, or nil if
// none exists yet.
func (b *Bus) Last(ctx context.Context, queryID string) (*Event, error) {
	payloads, err := b.rdb.LRange(ctx, redisKey(queryID), -1, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lifecycle: reading retention list: %w", err)
	}
	if len(payloads) == 0 {
		return nil, nil
	}
	var event Event
	if err := json.Unmarshal([]byte(payloads[0]), &event); err != nil {
		return nil, fmt.Errorf("lifecycle: unmarshaling retained event: %w", err)
	}
	return &event, nil
}

// History returns every retained event for queryID, oldest first.
func (b *Bus) History(ctx context.Context, queryID string) ([]Event, error) {
	payloads, err := b.rdb.LRange(ctx, redisKey(queryID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lifecycle: reading retention list: %w", err)
	}
	out := make([]Event, 0, len(payloads))
	for _, p := range payloads {
		var event Event
		if err := json.Unmarshal([]byte(p), &event); err != nil {
			return nil, fmt.Errorf("lifecycle: unmarshaling retained event: %w", err)
		}
		out = append(out, event)
	}
	return out, nil
}
