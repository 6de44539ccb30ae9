package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wisbric/amila/pkg/orchestrator"
)

// Dispatcher fans a terminal lifecycle event out to every active,
// matching subscription for the owning user, enqueuing one delivery job
// per match. It never calls the destination URL itself — that's the
// worker pool's job, consuming Queue.Dequeue.
type Dispatcher struct {
	store  *Store
	queue  *Queue
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher over store and queue.
func NewDispatcher(store *Store, queue *Queue, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, queue: queue, logger: logger}
}

// Dispatch enqueues one delivery per active subscription matching state,
// for the given userID and queryID. Only called for terminal lifecycle
// states (finished/error/rejected); non-terminal progress events are not
// webhook-eligible per spec.md §4.7.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, queryID string, state orchestrator.LifecycleState, metadata map[string]any) error {
	if !state.IsTerminal() {
		return fmt.Errorf("webhook: dispatch called for non-terminal state %q", state)
	}

	subs, err := d.store.ActiveForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("webhook: listing subscriptions: %w", err)
	}

	eventName := string(state)
	body, err := buildPayload(queryID, eventName, time.Now(), metadata)
	if err != nil {
		return fmt.Errorf("webhook: building payload: %w", err)
	}

	for _, sub := range subs {
		if !sub.Matches(eventName) {
			continue
		}
		job := Job{SubscriptionID: sub.ID, Event: eventName, Payload: body, EnqueuedAt: time.Now()}
		if err := d.queue.Enqueue(ctx, job); err != nil {
			d.logger.Error("enqueuing webhook delivery", "subscription_id", sub.ID, "error", err)
		}
	}
	return nil
}

// Worker drains the queue and runs Deliver for each job's subscription,
// intended to be started once per process in worker mode, modeled on the
// teacher's pkg/escalation.Engine ticker-driven Run(ctx) loop shape.
type Worker struct {
	store     *Store
	queue     *Queue
	deliverer *Deliverer
	logger    *slog.Logger
}

// NewWorker creates a Worker over the given collaborators.
func NewWorker(store *Store, queue *Queue, deliverer *Deliverer, logger *slog.Logger) *Worker {
	return &Worker{store: store, queue: queue, deliverer: deliverer, logger: logger}
}

// Run blocks dequeuing and delivering jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("webhook delivery worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook delivery worker stopped")
			return nil
		default:
		}

		job, ok, err := w.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			w.logger.Error("dequeuing webhook delivery", "error", err)
			continue
		}
		if !ok {
			continue
		}

		sub, err := w.store.Get(ctx, job.SubscriptionID)
		if err != nil || sub == nil {
			w.logger.Warn("dropping delivery for missing subscription", "subscription_id", job.SubscriptionID)
			continue
		}
		if !sub.Active {
			continue
		}

		if err := w.deliverer.Deliver(ctx, job, *sub); err != nil {
			w.logger.Warn("webhook delivery exhausted retries", "subscription_id", sub.ID, "event", job.Event, "error", err)
		}
	}
}
