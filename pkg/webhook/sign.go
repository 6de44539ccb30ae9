package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Sign computes hex(hmac_sha256(secret, timestamp+"."+body)) per spec.md
// §4.7, grounded on the shape of the teacher's pkg/slack/verify.go
// signature verification — there it verifies an inbound Slack signature,
// here the same primitive signs an outbound delivery.
func Sign(secret, timestamp, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches Sign(secret, timestamp, body),
// in constant time.
func Verify(secret, timestamp, body, signature string) bool {
	want := Sign(secret, timestamp, body)
	return subtle.ConstantTimeCompare([]byte(want), []byte(signature)) == 1
}
