// Package httpmw holds the request-level security middleware: bearer token
// authentication, CSRF double-submit verification, and HMAC request
// signature checks (spec §6.1). It is deliberately narrower than a
// multi-tenant login system — Amila authenticates a single service-level
// bearer token per deployment, not per-user sessions.
package httpmw

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/wisbric/amila/internal/httpserver"
)

type contextKey string

const identityKey contextKey = "amila_identity"

// Identity is the caller context attached to every authenticated request.
type Identity struct {
	UserID   string
	UserRole string
	Method   string
}

// IdentityFromContext extracts the caller identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// BearerAuth requires "Authorization: Bearer <token>" and compares it to the
// configured secret in constant time. An empty secret is a misconfiguration,
// not an open door: every request is rejected so the service fails closed.
func BearerAuth(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") && !strings.HasPrefix(authHeader, "bearer ") {
				httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(authHeader, "Bearer "), "bearer "))

			if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				logger.Warn("bearer auth rejected", "path", r.URL.Path)
				httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
				return
			}

			userID := r.Header.Get("X-User-ID")
			userRole := r.Header.Get("X-User-Role")
			if userRole == "" {
				userRole = "viewer"
			}

			ctx := context.WithValue(r.Context(), identityKey, Identity{
				UserID:   userID,
				UserRole: userRole,
				Method:   "bearer",
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not in allowed, translating to
// the 403 (CSRF/role) status the propagation policy reserves for
// authorization failures.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no identity in context")
				return
			}
			if _, ok := set[id.UserRole]; !ok {
				httpserver.RespondError(w, http.StatusForbidden, "forbidden", "role does not permit this operation")
				return
			}
			next.ServeHTTP(w, r.WithContext(r.Context()))
		})
	}
}
