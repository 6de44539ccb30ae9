package httpmw

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/wisbric/amila/internal/httpserver"
)

const (
	csrfCookieName    = "amila_csrf"
	csrfHeaderName  = "X-CSRF-Token"
	signatureHeader = "X-Amila-Signature"
	timestampHeader = "X-Amila-Timestamp"
	signatureWindow = 5 * time.Minute
)

func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// CSRF enforces the double-submit cookie pattern plus an HMAC request
// signature on unsafe methods (spec §6.1): the CSRF cookie and header must
// match, and hex(hmac_sha256(secret, METHOD||PATH||TIMESTAMP||BODY)) must
// match X-Amila-Signature within a ±5-minute timestamp window. GET/HEAD/
// OPTIONS requests pass through unchecked.
func CSRF(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isUnsafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(csrfCookieName)
			if err != nil || cookie.Value == "" {
				httpserver.RespondError(w, http.StatusForbidden, "forbidden", "missing csrf cookie")
				return
			}
			header := r.Header.Get(csrfHeaderName)
			if header == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
				httpserver.RespondError(w, http.StatusForbidden, "forbidden", "csrf token mismatch")
				return
			}

			ts := r.Header.Get(timestampHeader)
			sig := r.Header.Get(signatureHeader)
			if ts == "" || sig == "" {
				httpserver.RespondError(w, http.StatusForbidden, "forbidden", "missing request signature")
				return
			}

			unixTS, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				httpserver.RespondError(w, http.StatusForbidden, "forbidden", "invalid timestamp")
				return
			}
			age := time.Since(time.Unix(unixTS, 0))
			if age < 0 {
				age = -age
			}
			if age > signatureWindow {
				httpserver.RespondError(w, http.StatusForbidden, "forbidden", "stale request signature")
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "failed to read body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			payload := r.Method + r.URL.Path + ts + string(body)
			if !VerifySignature(secret, payload, sig) {
				httpserver.RespondError(w, http.StatusForbidden, "forbidden", "invalid request signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SignPayload computes hex(hmac_sha256(secret, data)) — the same construction
// used for outbound webhook delivery signing in pkg/webhook.
func SignPayload(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether sig is the valid hex HMAC of data under secret.
func VerifySignature(secret, data, sig string) bool {
	expected := SignPayload(secret, data)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) == 1
}
