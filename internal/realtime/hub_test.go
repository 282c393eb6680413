package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHub(queueLen int) *Hub {
	return NewHub(queueLen, zap.NewNop().Sugar())
}

func TestDeliverOnlyToSubscribers(t *testing.T) {
	hub := newTestHub(4)
	a := hub.Register("user-a")
	b := hub.Register("user-b")

	require.True(t, hub.Subscribe(a, "conv-1"))
	require.True(t, hub.Subscribe(b, "conv-2"))

	n := hub.Deliver(Event{Type: EventTypeMessage, ConversationID: "conv-1"})
	assert.Equal(t, 1, n)
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 0)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	hub := newTestHub(4)
	s := hub.Register("user-a")

	assert.True(t, hub.Subscribe(s, "conv-1"))
	assert.False(t, hub.Subscribe(s, "conv-1"))
	assert.True(t, hub.Unsubscribe(s, "conv-1"))
	assert.False(t, hub.Unsubscribe(s, "conv-1"))
	assert.False(t, hub.HasSubscriber("conv-1", "user-a"))
}

func TestDeliverPreservesOrderPerSession(t *testing.T) {
	hub := newTestHub(16)
	s := hub.Register("user-a")
	hub.Subscribe(s, "conv-1")

	for _, id := range []string{"m1", "m2", "m3"} {
		hub.Deliver(Event{Type: EventTypeMessage, ConversationID: "conv-1", MessageID: id})
	}
	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, (<-s.Events()).MessageID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, got)
}

func TestSlowSessionDropsEvents(t *testing.T) {
	hub := newTestHub(1)
	slow := hub.Register("user-a")
	hub.Subscribe(slow, "conv-1")

	assert.Equal(t, 1, hub.Deliver(Event{ConversationID: "conv-1", MessageID: "m1"}))
	assert.Equal(t, 0, hub.Deliver(Event{ConversationID: "conv-1", MessageID: "m2"}))

	evt := <-slow.Events()
	assert.Equal(t, "m1", evt.MessageID)
}

func TestUnregisterClosesQueueAndReportsRooms(t *testing.T) {
	hub := newTestHub(4)
	s := hub.Register("user-a")
	hub.Subscribe(s, "conv-1")
	hub.Subscribe(s, "conv-2")

	left := hub.Unregister(s)
	assert.ElementsMatch(t, []string{"conv-1", "conv-2"}, left)
	assert.Equal(t, 0, hub.SessionCount())

	_, open := <-s.Events()
	assert.False(t, open)

	// Unregistered sessions never receive and a second unregister is a no-op.
	assert.Equal(t, 0, hub.Deliver(Event{ConversationID: "conv-1"}))
	assert.Nil(t, hub.Unregister(s))
	assert.False(t, hub.Send(s, Event{Type: EventTypePong}))
}

func TestLocalBroadcaster(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub(4)
	b := NewLocalBroadcaster(hub)
	s := hub.Register("user-a")

	require.NoError(t, b.Join(ctx, s, "conv-1"))
	ok, err := b.IsSubscribed(ctx, "conv-1", "user-a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.Publish(ctx, "conv-1", Event{Type: EventTypeMessageDeleted, MessageID: "m1"}))
	select {
	case evt := <-s.Events():
		assert.Equal(t, "conv-1", evt.ConversationID)
		assert.Equal(t, "m1", evt.MessageID)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	b.Disconnect(ctx, s)
	ok, err = b.IsSubscribed(ctx, "conv-1", "user-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "chat:conversation:abc", Channel("abc"))
	assert.Equal(t, "chat:subscribers:abc", subscribersKey("abc"))
}
