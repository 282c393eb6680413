package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	subscribersKeyPrefix = "chat:subscribers:"
	// subscribersTTL bounds how long counts left behind by a crashed instance survive.
	subscribersTTL = 24 * time.Hour
)

func subscribersKey(conversationID string) string {
	return subscribersKeyPrefix + conversationID
}

// RedisBroadcaster publishes events on Redis so every instance can fan them out
// to its own sessions. Subscription counts live in a Redis hash per conversation
// (user id -> live session count) so IsSubscribed sees sessions on any instance.
type RedisBroadcaster struct {
	client *redis.Client
	hub    *Hub
	log    *zap.SugaredLogger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewRedisBroadcaster(client *redis.Client, hub *Hub, log *zap.SugaredLogger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, hub: hub, log: log, done: make(chan struct{})}
}

// Start launches the single pattern subscriber of this instance.
func (b *RedisBroadcaster) Start(ctx context.Context) {
	b.once.Do(func() {
		ctx, b.cancel = context.WithCancel(ctx)
		go b.run(ctx)
	})
}

func (b *RedisBroadcaster) run(ctx context.Context) {
	defer close(b.done)
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		func() {
			pubsub := b.client.PSubscribe(ctx, ChannelPrefix+"*")
			defer pubsub.Close()

			b.log.Infow("chat redis subscriber started", "pattern", ChannelPrefix+"*")

			for {
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					b.log.Warnw("redis subscriber error", "error", err, "retry_in", backoff)
					select {
					case <-time.After(backoff):
					case <-ctx.Done():
					}
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
					return
				}
				backoff = time.Second

				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					b.log.Warnw("failed to unmarshal chat event", "channel", msg.Channel, "error", err)
					continue
				}
				if evt.ConversationID == "" {
					evt.ConversationID = strings.TrimPrefix(msg.Channel, ChannelPrefix)
				}
				b.hub.Deliver(evt)
			}
		}()
	}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, conversationID string, evt Event) error {
	evt.ConversationID = conversationID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Channel(conversationID), data).Err()
}

func (b *RedisBroadcaster) IsSubscribed(ctx context.Context, conversationID, userID string) (bool, error) {
	n, err := b.client.HGet(ctx, subscribersKey(conversationID), userID).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *RedisBroadcaster) Join(ctx context.Context, s *Session, conversationID string) error {
	if !b.hub.Subscribe(s, conversationID) {
		return nil
	}
	key := subscribersKey(conversationID)
	pipe := b.client.TxPipeline()
	pipe.HIncrBy(ctx, key, s.UserID, 1)
	pipe.Expire(ctx, key, subscribersTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		b.hub.Unsubscribe(s, conversationID)
		return err
	}
	return nil
}

func (b *RedisBroadcaster) Leave(ctx context.Context, s *Session, conversationID string) error {
	if !b.hub.Unsubscribe(s, conversationID) {
		return nil
	}
	return b.release(ctx, conversationID, s.UserID)
}

func (b *RedisBroadcaster) Disconnect(ctx context.Context, s *Session) {
	for _, conv := range b.hub.Unregister(s) {
		if err := b.release(ctx, conv, s.UserID); err != nil {
			b.log.Warnw("failed to release subscription", "conversation", conv, "user", s.UserID, "error", err)
		}
	}
}

func (b *RedisBroadcaster) release(ctx context.Context, conversationID, userID string) error {
	key := subscribersKey(conversationID)
	n, err := b.client.HIncrBy(ctx, key, userID, -1).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return b.client.HDel(ctx, key, userID).Err()
	}
	return nil
}

func (b *RedisBroadcaster) Hub() *Hub { return b.hub }

// Close stops the subscriber loop and waits for it to exit.
func (b *RedisBroadcaster) Close() error {
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	<-b.done
	return nil
}
