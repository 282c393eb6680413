package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
	"go.uber.org/zap"
)

type ctxKey int

const identityKey ctxKey = iota

// SessionValidator resolves a bearer token to the acting identity.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (identity.ID, bool, error)
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id identity.ID) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity set by RequireSession.
func IdentityFrom(ctx context.Context) (identity.ID, bool) {
	id, ok := ctx.Value(identityKey).(identity.ID)
	return id, ok && !id.IsZero()
}

// BearerToken extracts the session token from the Authorization header. Browsers
// cannot set headers on WebSocket upgrades, so a token query parameter is accepted too.
func BearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// RequireSession rejects requests without a valid session and stores the
// session's identity in the request context.
func RequireSession(sessions SessionValidator, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			id, ok, err := sessions.ValidateSession(r.Context(), token)
			if err != nil {
				log.Warnw("session lookup failed", "error", err)
				writeJSONError(w, http.StatusUnauthorized, "Invalid session")
				return
			}
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "Session expired. Please sign in again.")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"success":false,"message":"` + message + `"}`))
}
