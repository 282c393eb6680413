package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// ProfileCachePrefix is the Redis key prefix for cached directory entries
	ProfileCachePrefix = "cache:profile:"
	// DefaultProfileTTL keeps display data for 8 hours
	DefaultProfileTTL = 8 * time.Hour
	MinProfileTTL     = 6 * time.Hour
	MaxProfileTTL     = 12 * time.Hour
)

// CachedDirectory resolves identities through Redis before asking the
// underlying directory. A nil client disables caching.
type CachedDirectory struct {
	next   Directory
	client *redis.Client
	ttl    time.Duration
	log    *zap.SugaredLogger
}

func NewCachedDirectory(next Directory, client *redis.Client, ttl time.Duration, log *zap.SugaredLogger) *CachedDirectory {
	// Clamp TTL to 6-12 hours
	if ttl < MinProfileTTL {
		ttl = MinProfileTTL
	}
	if ttl > MaxProfileTTL {
		ttl = MaxProfileTTL
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CachedDirectory{next: next, client: client, ttl: ttl, log: log}
}

func (c *CachedDirectory) ResolveIdentity(ctx context.Context, id string) (*models.Profile, error) {
	if c.client == nil {
		return c.next.ResolveIdentity(ctx, id)
	}

	key := ProfileCachePrefix + id
	if val, err := c.client.Get(ctx, key).Result(); err == nil {
		var p models.Profile
		if err := json.Unmarshal([]byte(val), &p); err == nil {
			return &p, nil
		}
		c.log.Warnw("dropping corrupt profile cache entry", "key", key)
		c.client.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warnw("profile cache read failed", "key", key, "error", err)
	}

	p, err := c.next.ResolveIdentity(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(p)
	if err == nil {
		err = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	if err != nil {
		c.log.Warnw("profile cache write failed", "key", key, "error", err)
	}
	return p, nil
}

// Invalidate drops the cached entry for id.
func (c *CachedDirectory) Invalidate(ctx context.Context, id string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, ProfileCachePrefix+id).Err()
}
