package webhook

import (
	"testing"
	"time"
)

func TestSubscription_MatchesWildcardAndLiteral(t *testing.T) {
	sub := Subscription{Events: []string{"finished", "error"}}
	if !sub.Matches("finished") {
		t.Error("expected a literal event match")
	}
	if sub.Matches("rejected") {
		t.Error("expected no match for an unsubscribed event")
	}

	wildcard := Subscription{Events: []string{"*"}}
	if !wildcard.Matches("rejected") {
		t.Error("expected the wildcard subscription to match any event")
	}
}

func TestTruncateRows_CapsOversizedRowArrays(t *testing.T) {
	rows := make([][]any, maxPayloadRows+25)
	for i := range rows {
		rows[i] = []any{i}
	}
	metadata := map[string]any{"rows": rows, "row_count": len(rows)}

	got := truncateRows(metadata)

	truncated, ok := got["rows"].([][]any)
	if !ok {
		t.Fatalf("expected rows to remain a [][]any, got %T", got["rows"])
	}
	if len(truncated) != maxPayloadRows {
		t.Errorf("len(truncated) = %d, want %d", len(truncated), maxPayloadRows)
	}
	if got["row_count"] != len(rows) {
		t.Errorf("row_count = %v, want untouched at %d", got["row_count"], len(rows))
	}
}

func TestTruncateRows_LeavesSmallArraysAndNilUntouched(t *testing.T) {
	small := [][]any{{1}, {2}}
	got := truncateRows(map[string]any{"rows": small})
	if len(got["rows"].([][]any)) != 2 {
		t.Errorf("expected a small row array to pass through unchanged, got %v", got["rows"])
	}

	if truncateRows(nil) != nil {
		t.Error("expected a nil metadata map to pass through as nil")
	}
}

func TestBuildPayload_MarshalsEnvelope(t *testing.T) {
	body, err := buildPayload("q-1", "finished", time.Now(), map[string]any{"row_count": 2})
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("expected a non-empty JSON payload")
	}
}

func TestDeliveryBackoffDelay_GrowsAndCaps(t *testing.T) {
	if d := deliveryBackoffDelay(1); d > 2*time.Second {
		t.Errorf("deliveryBackoffDelay(1) = %v, want <= 2s", d)
	}
	if d := deliveryBackoffDelay(20); d > deliveryBackoffCap {
		t.Errorf("deliveryBackoffDelay(20) = %v, want capped at %v", d, deliveryBackoffCap)
	}
}
