package realtime

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is one connected client. Events are queued on a bounded channel; when
// the queue is full the event is dropped for that session only.
type Session struct {
	ID     uuid.UUID
	UserID string

	send   chan Event
	subs   map[string]struct{}
	closed bool
}

// Events is drained by the connection writer. It is closed on Unregister.
func (s *Session) Events() <-chan Event {
	return s.send
}

// Hub is the per-process registry of sessions and their conversation subscriptions.
// Its lock only protects local bookkeeping; delivery is best-effort.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	rooms    map[string]map[uuid.UUID]*Session
	queueLen int
	log      *zap.SugaredLogger
}

func NewHub(queueLen int, log *zap.SugaredLogger) *Hub {
	if queueLen <= 0 {
		queueLen = 64
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		sessions: make(map[uuid.UUID]*Session),
		rooms:    make(map[string]map[uuid.UUID]*Session),
		queueLen: queueLen,
		log:      log,
	}
}

// Register creates a session for userID.
func (h *Hub) Register(userID string) *Session {
	s := &Session{
		ID:     uuid.New(),
		UserID: userID,
		send:   make(chan Event, h.queueLen),
		subs:   make(map[string]struct{}),
	}
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	return s
}

// Unregister removes the session from every room, closes its queue and returns
// the conversations it was subscribed to.
func (h *Hub) Unregister(s *Session) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return nil
	}
	left := make([]string, 0, len(s.subs))
	for conv := range s.subs {
		h.removeFromRoom(conv, s)
		left = append(left, conv)
	}
	s.subs = map[string]struct{}{}
	delete(h.sessions, s.ID)
	s.closed = true
	close(s.send)
	return left
}

// Subscribe attaches s to a conversation. It returns false when s was already subscribed.
func (h *Hub) Subscribe(s *Session, conversationID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.subs[conversationID]; ok {
		return false
	}
	s.subs[conversationID] = struct{}{}
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[uuid.UUID]*Session)
		h.rooms[conversationID] = room
	}
	room[s.ID] = s
	return true
}

// Unsubscribe detaches s. It returns false when s was not subscribed.
func (h *Hub) Unsubscribe(s *Session, conversationID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := s.subs[conversationID]; !ok {
		return false
	}
	delete(s.subs, conversationID)
	h.removeFromRoom(conversationID, s)
	return true
}

func (h *Hub) removeFromRoom(conversationID string, s *Session) {
	room, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(room, s.ID)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}

// Deliver queues evt on every local session subscribed to its conversation and
// returns how many sessions accepted it.
func (h *Hub) Deliver(evt Event) int {
	if evt.ConversationID == "" {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, s := range h.rooms[evt.ConversationID] {
		select {
		case s.send <- evt:
			delivered++
		default:
			h.log.Debugw("dropping event for slow session",
				"session", s.ID.String(), "user", s.UserID, "conversation", evt.ConversationID, "type", evt.Type)
		}
	}
	return delivered
}

// Send queues evt on a single session, for replies that are not broadcast.
func (h *Hub) Send(s *Session, evt Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- evt:
		return true
	default:
		return false
	}
}

// HasSubscriber reports whether userID has any local session on the conversation.
func (h *Hub) HasSubscriber(conversationID, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.rooms[conversationID] {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// SessionCount is exposed for health output.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
