package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
	"github.com/stretchr/testify/assert"
)

type sessionFunc func(ctx context.Context, token string) (identity.ID, bool, error)

func (f sessionFunc) ValidateSession(ctx context.Context, token string) (identity.ID, bool, error) {
	return f(ctx, token)
}

var alice = identity.Must("65a000000000000000000001")

func fixedSessions(ctx context.Context, token string) (identity.ID, bool, error) {
	switch token {
	case "good":
		return alice, true, nil
	case "broken":
		return "", false, errors.New("redis: connection refused")
	}
	return "", false, nil
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws/chat?token=from-query", nil)
	assert.Equal(t, "from-query", BearerToken(r))

	r.Header.Set("Authorization", "Bearer  from-header ")
	assert.Equal(t, "from-header", BearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, BearerToken(r))
}

func TestRequireSession(t *testing.T) {
	var seen identity.ID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireSession(sessionFunc(fixedSessions), nil)(next)

	for token, want := range map[string]int{
		"":       http.StatusUnauthorized,
		"stale":  http.StatusUnauthorized,
		"broken": http.StatusUnauthorized,
		"good":   http.StatusNoContent,
	} {
		r := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, want, w.Code, token)
	}
	assert.Equal(t, alice, seen)
}

func TestSendLimiterOnlyLimitsSends(t *testing.T) {
	l := NewSendLimiter(1)
	defer l.Close()
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(method, path string) int {
		r := httptest.NewRequest(method, path, nil)
		r = r.WithContext(WithIdentity(r.Context(), alice))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, send(http.MethodPost, "/api/conversations/x/messages"))
	}
	assert.Equal(t, http.StatusTooManyRequests, send(http.MethodPost, "/api/conversations/x/messages/"))
	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/api/conversations/x/messages"))
	assert.Equal(t, http.StatusOK, send(http.MethodPost, "/api/messages/y/read"))
}
