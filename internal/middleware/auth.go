package middleware

import (
	"context"
	"net/http"

	"collab-realtime/pkg/response"
	"collab-realtime/pkg/xerrors"
)

type contextKey string

// ContextUserID keys the authenticated user ID in the request context.
const ContextUserID contextKey = "user_id"

// RequireUser extracts the caller identity set by the gateway. Session
// validation happens upstream; by the time a request reaches this service
// the header is trusted.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			response.Error(w, http.StatusUnauthorized, xerrors.ErrUnauthorized.Error())
			return
		}
		ctx := context.WithValue(r.Context(), ContextUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the caller's user ID from the request context.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ContextUserID).(string)
	return id
}
