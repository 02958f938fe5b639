package middleware

import (
	"context"
	"net/http"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	sessionIDKey contextKey = "cart_session_id"
	userIDKey    contextKey = "user_id"
)

// Identity extracts the caller's cart session token and optional user id
// from request headers. Authentication itself is an external concern; this
// middleware only carries whatever identity the gateway already verified.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if sessionID := r.Header.Get("X-Cart-Session"); sessionID != "" {
			ctx = context.WithValue(ctx, sessionIDKey, sessionID)
		}
		if userID := r.Header.Get("X-User-ID"); userID != "" {
			ctx = context.WithValue(ctx, userIDKey, userID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSessionID retrieves the cart session token from context, if any.
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

// GetUserID retrieves the user id from context, if any.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}
