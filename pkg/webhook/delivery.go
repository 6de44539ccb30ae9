package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	maxDeliveryAttempts = 10
	deliveryBackoffCap  = time.Hour
	maxPayloadRows      = 50
	deliveryTimeout     = 30 * time.Second
)

// payload is the wire shape from spec.md §4.7: the terminal-event body
// plus a delivery envelope.
type payload struct {
	QueryID   string         `json:"query_id"`
	State     string         `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	EmittedAt time.Time      `json:"emitted_at"`
}

// Deliverer sends one signed webhook delivery per Job, retrying on
// non-2xx/transport failures with full-jitter exponential backoff capped
// at deliveryBackoffCap (1h) per spec.md §4.7 — longer than the rest of
// the Resilience Layer's 60s cap, since a webhook endpoint may be down far
// longer than a database backend and delivery work is not on the
// request's critical path.
type Deliverer struct {
	store      *Store
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *prometheus.CounterVec
}

// NewDeliverer creates a Deliverer posting through client (or
// http.DefaultClient's shape with deliveryTimeout if client is nil).
func NewDeliverer(store *Store, client *http.Client, logger *slog.Logger, metrics *prometheus.CounterVec) *Deliverer {
	if client == nil {
		client = &http.Client{Timeout: deliveryTimeout}
	}
	return &Deliverer{store: store, httpClient: client, logger: logger, metrics: metrics}
}

// Deliver sends job's payload to its subscription's URL, retrying on
// failure up to maxDeliveryAttempts times. It always records the outcome
// on the subscription row before returning.
func (d *Deliverer) Deliver(ctx context.Context, job Job, sub Subscription) error {
	deliveryID := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339)
	signature := Sign(sub.Secret, timestamp, string(job.Payload))

	var lastStatus int
	var lastErr error
attempts:
	for attempt := 0; attempt < maxDeliveryAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(deliveryBackoffDelay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				lastErr = ctx.Err()
				break attempts
			case <-timer.C:
			}
		}
		status, err := d.post(ctx, sub.URL, job.Payload, job.Event, deliveryID, timestamp, signature)
		lastStatus, lastErr = status, err
		if err == nil {
			break
		}
	}
	err := lastErr

	success := err == nil
	if recErr := d.store.RecordDeliveryOutcome(ctx, sub.ID, lastStatus, success); recErr != nil {
		d.logger.Error("recording webhook delivery outcome", "subscription_id", sub.ID, "error", recErr)
	}

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	if d.metrics != nil {
		d.metrics.WithLabelValues(outcome).Inc()
	}
	return err
}

// deliveryBackoffDelay returns a full-jitter exponential backoff duration
// for the given attempt number (1-indexed: attempt 1 is the first retry),
// capped at deliveryBackoffCap.
func deliveryBackoffDelay(attempt int) time.Duration {
	base := time.Second * time.Duration(1<<uint(attempt))
	if base > deliveryBackoffCap {
		base = deliveryBackoffCap
	}
	return time.Duration(rand.Int63n(int64(base) + 1))
}

// post issues one HTTP delivery attempt, returning the response status
// code (0 if the request never got a response) and an error classified by
// resilience.Classify-compatible text when the call should be retried.
func (d *Deliverer) post(ctx context.Context, url string, body []byte, event, deliveryID, timestamp, signature string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("webhook: building delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Amila-Event", event)
	req.Header.Set("X-Amila-Delivery-Id", deliveryID)
	req.Header.Set("X-Amila-Timestamp", timestamp)
	req.Header.Set("X-Amila-Signature", signature)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook: delivery request failed (timeout/connection): %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook: delivery received non-2xx status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// buildPayload truncates row arrays inside metadata to maxPayloadRows and
// marshals the envelope, per spec.md §4.7's "truncate large row arrays to
// 50".
func buildPayload(queryID, state string, timestamp time.Time, metadata map[string]any) ([]byte, error) {
	truncated := truncateRows(metadata)
	p := payload{
		QueryID:   queryID,
		State:     state,
		Timestamp: timestamp,
		Metadata:  truncated,
		EmittedAt: time.Now().UTC(),
	}
	return json.Marshal(p)
}

func truncateRows(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if rows, ok := v.([][]any); ok && len(rows) > maxPayloadRows {
			out[k] = rows[:maxPayloadRows]
			continue
		}
		out[k] = v
	}
	return out
}
