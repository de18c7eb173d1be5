package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	tokenKey  contextKey = "token"
)

// CookieName is the cookie a browser client carries its session token in.
const CookieName = "token"

// SessionValidator resolves a session token to a user ID.
// *TokenService satisfies it; service.LocalAuth adds revocation on top.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (string, error)
}

// ValidateSession makes *TokenService a SessionValidator.
func (s *TokenService) ValidateSession(_ context.Context, token string) (string, error) {
	return s.Validate(token)
}

// RequireAuth rejects requests without a valid session with 401.
func RequireAuth(v SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				unauthorized(w)
				return
			}
			userID, err := v.ValidateSession(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID, token)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
}

// UserIDFromContext returns the user ID RequireAuth stored.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// TokenFromContext returns the raw session token RequireAuth accepted.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// TokenFromRequest reads `Authorization: Bearer <token>` first, then the
// token cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// WithUser returns ctx carrying the user ID and token RequireAuth would
// have stored.
func WithUser(ctx context.Context, userID, token string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, tokenKey, token)
}
