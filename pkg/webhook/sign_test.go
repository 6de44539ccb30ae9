package webhook

import "testing"

func TestSignAndVerify_RoundTrip(t *testing.T) {
	secret := "subscription-secret"
	timestamp := "2026-07-31T00:00:00Z"
	body := `{"query_id":"q1","state":"finished"}`

	sig := Sign(secret, timestamp, body)
	if !Verify(secret, timestamp, body, sig) {
		t.Error("expected signature to verify against the same inputs")
	}
}

func TestVerify_RejectsTamperedBody(t *testing.T) {
	secret := "subscription-secret"
	timestamp := "2026-07-31T00:00:00Z"
	sig := Sign(secret, timestamp, `{"state":"finished"}`)
	if Verify(secret, timestamp, `{"state":"rejected"}`, sig) {
		t.Error("expected signature verification to fail for a tampered body")
	}
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	timestamp := "2026-07-31T00:00:00Z"
	body := `{"state":"finished"}`
	sig := Sign("secret-a", timestamp, body)
	if Verify("secret-b", timestamp, body, sig) {
		t.Error("expected signature verification to fail for a different secret")
	}
}

func TestSubscription_WildcardAndLiteralEventMatching(t *testing.T) {
	wildcard := Subscription{Events: []string{"*"}}
	if !wildcard.Matches("finished") || !wildcard.Matches("rejected") {
		t.Error("expected wildcard subscription to match any event")
	}

	literal := Subscription{Events: []string{"finished"}}
	if !literal.Matches("finished") {
		t.Error("expected literal match")
	}
	if literal.Matches("error") {
		t.Error("expected literal subscription not to match an unrelated event")
	}
}
