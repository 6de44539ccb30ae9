// Package webhook implements the Webhook Delivery Subsystem: subscription
// CRUD, signed delivery, and the retrying task queue that drives it.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Subscription is spec.md §3's WebhookSubscription.
type Subscription struct {
	ID                  string    `json:"webhook_id"`
	UserID              string    `json:"user_id"`
	URL                 string    `json:"url"`
	Events              []string  `json:"events"`
	Active              bool      `json:"active"`
	Secret              string    `json:"-"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	LastDeliveryAt      *time.Time `json:"last_delivery_at,omitempty"`
	LastStatusCode      *int      `json:"last_status_code,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Matches reports whether event matches one of sub's subscribed events —
// either a literal name or the wildcard "*".
func (s Subscription) Matches(event string) bool {
	for _, e := range s.Events {
		if e == "*" || e == event {
			return true
		}
	}
	return false
}

// Store is a Postgres-backed CRUD store for webhook subscriptions,
// grounded on the teacher's store-wraps-pool pattern (pkg/alert/store.go's
// Store{q} wrapping a connection), generalized here to raw pgxpool queries
// consistent with pkg/checkpoint.Store since this domain has no sqlc
// generated query layer of its own.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-connected pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new subscription, generating its ID.
func (s *Store) Create(ctx context.Context, sub Subscription) (Subscription, error) {
	sub.ID = uuid.NewString()
	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	events, err := json.Marshal(sub.Events)
	if err != nil {
		return Subscription{}, fmt.Errorf("webhook: marshaling events: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO webhook_subscriptions (id, user_id, url, events, active, secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sub.ID, sub.UserID, sub.URL, events, sub.Active, sub.Secret, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return Subscription{}, fmt.Errorf("webhook: inserting subscription: %w", err)
	}
	return sub, nil
}

// Get returns a subscription by ID, or (nil, nil) if none exists.
func (s *Store) Get(ctx context.Context, id string) (*Subscription, error) {
	return s.scanOne(ctx, `
		SELECT id, user_id, url, events, active, secret, created_at, updated_at,
		       last_delivery_at, last_status_code, consecutive_failures
		FROM webhook_subscriptions WHERE id = $1
	`, id)
}

// Update replaces url/events/active for an existing subscription.
func (s *Store) Update(ctx context.Context, id string, url string, events []string, active bool) (*Subscription, error) {
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("webhook: marshaling events: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_subscriptions
		SET url = $2, events = $3, active = $4, updated_at = $5
		WHERE id = $1
	`, id, url, eventsJSON, active, time.Now())
	if err != nil {
		return nil, fmt.Errorf("webhook: updating subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return s.Get(ctx, id)
}

// Delete removes a subscription by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("webhook: deleting subscription: %w", err)
	}
	return nil
}

// ActiveForUser returns every active subscription owned by userID, used by
// the dispatcher to resolve fan-out targets for a terminal event.
func (s *Store) ActiveForUser(ctx context.Context, userID string) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, url, events, active, secret, created_at, updated_at,
		       last_delivery_at, last_status_code, consecutive_failures
		FROM webhook_subscriptions WHERE user_id = $1 AND active = true
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("webhook: listing subscriptions for user: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// RecordDeliveryOutcome updates last_delivery_at/last_status_code and
// either resets or increments consecutive_failures, per spec.md §4.7.
func (s *Store) RecordDeliveryOutcome(ctx context.Context, id string, statusCode int, success bool) error {
	now := time.Now()
	if success {
		_, err := s.pool.Exec(ctx, `
			UPDATE webhook_subscriptions
			SET last_delivery_at = $2, last_status_code = $3, consecutive_failures = 0
			WHERE id = $1
		`, id, now, statusCode)
		return err
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_subscriptions
		SET last_delivery_at = $2, last_status_code = $3, consecutive_failures = consecutive_failures + 1
		WHERE id = $1
	`, id, now, statusCode)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (Subscription, error) {
	var sub Subscription
	var eventsJSON []byte
	if err := row.Scan(
		&sub.ID, &sub.UserID, &sub.URL, &eventsJSON, &sub.Active, &sub.Secret,
		&sub.CreatedAt, &sub.UpdatedAt, &sub.LastDeliveryAt, &sub.LastStatusCode, &sub.ConsecutiveFailures,
	); err != nil {
		return Subscription{}, fmt.Errorf("webhook: scanning subscription row: %w", err)
	}
	if err := json.Unmarshal(eventsJSON, &sub.Events); err != nil {
		return Subscription{}, fmt.Errorf("webhook: unmarshaling events: %w", err)
	}
	return sub, nil
}

func (s *Store) scanOne(ctx context.Context, query string, args ...any) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, query, args...)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}
