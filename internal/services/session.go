package services

import (
	"context"
	"errors"

	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
	"github.com/redis/go-redis/v9"
)

// SessionKeyPrefix is the Redis key prefix for sessions. Sessions are written
// and expired by the authentication service; this side only reads them.
const SessionKeyPrefix = "session:"

// SessionStore maps bearer tokens to the acting identity.
type SessionStore struct {
	client *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

// ValidateSession checks if a session token is valid and returns the identity behind it.
func (s *SessionStore) ValidateSession(ctx context.Context, token string) (identity.ID, bool, error) {
	if token == "" {
		return "", false, nil
	}

	raw, err := s.client.Get(ctx, SessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	id, err := identity.Normalize(raw)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

