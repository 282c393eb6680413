package realtime

import (
	"context"
	"time"
)

// Broadcaster fans conversation events out to live sessions. Delivery is
// best-effort and at-most-once; history stays the source of truth.
type Broadcaster interface {
	Publish(ctx context.Context, conversationID string, evt Event) error
	// IsSubscribed reports whether userID has at least one live session on the conversation.
	IsSubscribed(ctx context.Context, conversationID, userID string) (bool, error)
	Join(ctx context.Context, s *Session, conversationID string) error
	Leave(ctx context.Context, s *Session, conversationID string) error
	// Disconnect unregisters the session and releases all its subscriptions.
	Disconnect(ctx context.Context, s *Session)
	Hub() *Hub
	Close() error
}

// LocalBroadcaster delivers directly to the in-process hub. Suitable for a single instance.
type LocalBroadcaster struct {
	hub *Hub
}

func NewLocalBroadcaster(hub *Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub}
}

func (b *LocalBroadcaster) Publish(_ context.Context, conversationID string, evt Event) error {
	evt.ConversationID = conversationID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	b.hub.Deliver(evt)
	return nil
}

func (b *LocalBroadcaster) IsSubscribed(_ context.Context, conversationID, userID string) (bool, error) {
	return b.hub.HasSubscriber(conversationID, userID), nil
}

func (b *LocalBroadcaster) Join(_ context.Context, s *Session, conversationID string) error {
	b.hub.Subscribe(s, conversationID)
	return nil
}

func (b *LocalBroadcaster) Leave(_ context.Context, s *Session, conversationID string) error {
	b.hub.Unsubscribe(s, conversationID)
	return nil
}

func (b *LocalBroadcaster) Disconnect(_ context.Context, s *Session) {
	b.hub.Unregister(s)
}

func (b *LocalBroadcaster) Hub() *Hub { return b.hub }

func (b *LocalBroadcaster) Close() error { return nil }
