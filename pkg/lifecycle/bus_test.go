package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/amila/pkg/orchestrator"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewBus(client)
}

func TestBus_PublishAndSubscribeReplaysLast(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	if err := bus.Publish(ctx, Event{QueryID: "q1", State: orchestrator.StateReceived, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sub, err := bus.Subscribe(ctx, "q1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	select {
	case event := <-sub.Events:
		if event.State != orchestrator.StateReceived {
			t.Errorf("replayed state = %q, want %q", event.State, orchestrator.StateReceived)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for replayed event")
	}
}

func TestBus_LiveSubscriberReceivesNewEvents(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "q2")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := bus.Publish(ctx, Event{QueryID: "q2", State: orchestrator.StatePlanning, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case event := <-sub.Events:
		if event.State != orchestrator.StatePlanning {
			t.Errorf("state = %q, want %q", event.State, orchestrator.StatePlanning)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestBus_MonotonicTimestampOrdering(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	states := []orchestrator.LifecycleState{
		orchestrator.StateReceived,
		orchestrator.StatePlanning,
		orchestrator.StateGeneratingSQL,
		orchestrator.StateFinished,
	}

	base := time.Now()
	for i, s := range states {
		if err := bus.Publish(ctx, Event{QueryID: "q3", State: s, Timestamp: base.Add(time.Duration(i) * time.Millisecond)}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	history, err := bus.History(ctx, "q3")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != len(states) {
		t.Fatalf("history length = %d, want %d", len(history), len(states))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.Before(history[i-1].Timestamp) {
			t.Errorf("timestamps not monotonically non-decreasing at index %d", i)
		}
	}

	terminalCount := 0
	for _, e := range history {
		if e.State.IsTerminal() {
			terminalCount++
		}
	}
	if terminalCount != 1 {
		t.Errorf("terminal event count = %d, want exactly 1", terminalCount)
	}
}
