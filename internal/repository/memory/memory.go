// Package memory holds in-process stores for local development and tests.
// Every mutating operation runs under one mutex, giving the same atomicity
// the MongoDB and PostgreSQL stores get from single-document updates.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/internal/services"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ConversationStore struct {
	mu    sync.Mutex
	byID  map[primitive.ObjectID]*models.Conversation
	pairs map[string]primitive.ObjectID
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		byID:  make(map[primitive.ObjectID]*models.Conversation),
		pairs: make(map[string]primitive.ObjectID),
	}
}

func (s *ConversationStore) Insert(_ context.Context, c *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if _, ok := s.byID[c.ID]; ok {
		return fmt.Errorf("%w: duplicate conversation %s", services.ErrConflict, c.ID.Hex())
	}
	if c.PairKey != "" {
		if _, ok := s.pairs[c.PairKey]; ok {
			return fmt.Errorf("%w: duplicate pair %s", services.ErrConflict, c.PairKey)
		}
		s.pairs[c.PairKey] = c.ID
	}
	s.byID[c.ID] = cloneConversation(c)
	return nil
}

func (s *ConversationStore) UpsertIndividual(_ context.Context, c *models.Conversation) (*models.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.PairKey == "" {
		return nil, false, fmt.Errorf("%w: individual conversation without pair key", services.ErrInvalidIdentity)
	}
	if id, ok := s.pairs[c.PairKey]; ok {
		return cloneConversation(s.byID[id]), false, nil
	}
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	s.pairs[c.PairKey] = c.ID
	s.byID[c.ID] = cloneConversation(c)
	return cloneConversation(c), true, nil
}

func (s *ConversationStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return cloneConversation(c), nil
}

func (s *ConversationStore) ListForParticipant(_ context.Context, userID string, kind models.ConversationKind) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Conversation{}
	for _, c := range s.byID {
		if kind != "" && c.Kind != kind {
			continue
		}
		if contains(c.Members, userID) || contains(c.Staff, userID) {
			out = append(out, *cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (s *ConversationStore) AddParticipants(_ context.Context, id primitive.ObjectID, members, staff []string) (*models.Conversation, error) {
	return s.update(id, func(c *models.Conversation) error {
		if c.Kind != models.KindGroup {
			return services.ErrNotFound
		}
		c.Members = addToSet(c.Members, members...)
		c.Staff = addToSet(c.Staff, staff...)
		return nil
	})
}

func (s *ConversationStore) RemoveParticipants(_ context.Context, id primitive.ObjectID, userIDs []string) (*models.Conversation, error) {
	return s.update(id, func(c *models.Conversation) error {
		if c.Kind != models.KindGroup {
			return services.ErrNotFound
		}
		c.Members = pull(c.Members, userIDs)
		c.Staff = pull(c.Staff, userIDs)
		return nil
	})
}

func (s *ConversationStore) SetStatus(_ context.Context, id primitive.ObjectID, status models.ConversationStatus) (*models.Conversation, error) {
	return s.update(id, func(c *models.Conversation) error {
		c.Status = status
		return nil
	})
}

func (s *ConversationStore) AdvanceLastMessage(_ context.Context, id primitive.ObjectID, last models.LastMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return services.ErrNotFound
	}
	if c.LastMessage == nil || last.NewerThan(*c.LastMessage) {
		l := last
		c.LastMessage = &l
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *ConversationStore) ReplaceLastMessage(_ context.Context, id, replaced primitive.ObjectID, next *models.LastMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok || c.LastMessage == nil || c.LastMessage.MessageID != replaced {
		return false, nil
	}
	if next == nil {
		c.LastMessage = nil
	} else {
		l := *next
		c.LastMessage = &l
	}
	c.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *ConversationStore) update(id primitive.ObjectID, fn func(*models.Conversation) error) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now().UTC()
	return cloneConversation(c), nil
}

type MessageStore struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]*models.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{byID: make(map[primitive.ObjectID]*models.Message)}
}

func (s *MessageStore) Insert(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if _, ok := s.byID[m.ID]; ok {
		return fmt.Errorf("%w: duplicate message %s", services.ErrConflict, m.ID.Hex())
	}
	s.byID[m.ID] = cloneMessage(m)
	return nil
}

func (s *MessageStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return cloneMessage(m), nil
}

func (s *MessageStore) List(_ context.Context, conversationID primitive.ObjectID, q services.HistoryQuery) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursor := models.LastMessage{CreatedAt: q.BeforeTime, MessageID: q.BeforeID}
	var msgs []models.Message
	for _, m := range s.byID {
		if m.ConversationID != conversationID {
			continue
		}
		if !q.BeforeTime.IsZero() && !cursor.NewerThan(m.Snapshot("")) {
			continue
		}
		msgs = append(msgs, *cloneMessage(m))
	}
	sortMessages(msgs)

	if q.Limit > 0 && int64(len(msgs)) > q.Limit {
		msgs = msgs[int64(len(msgs))-q.Limit:]
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

func (s *MessageStore) Latest(_ context.Context, conversationID primitive.ObjectID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.Message
	for _, m := range s.byID {
		if m.ConversationID != conversationID {
			continue
		}
		if latest == nil || m.Snapshot("").NewerThan(latest.Snapshot("")) {
			latest = m
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneMessage(latest), nil
}

func (s *MessageStore) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return services.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *MessageStore) CountByConversation(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	counts := make(map[primitive.ObjectID]int64)
	for _, m := range s.byID {
		if wanted[m.ConversationID] {
			counts[m.ConversationID]++
		}
	}
	return counts, nil
}

func (s *MessageStore) AddReadReceipt(_ context.Context, id primitive.ObjectID, r models.ReadReceipt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok || m.HasReader(r.UserID) {
		return false, nil
	}
	m.ReadBy = append(m.ReadBy, r)
	return true, nil
}

// Len returns the number of stored messages.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

type NotificationStore struct {
	mu   sync.Mutex
	list []models.Notification
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

func (s *NotificationStore) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	s.list = append(s.list, *n)
	return nil
}

func (s *NotificationStore) ListForUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Notification{}
	for i := len(s.list) - 1; i >= 0; i-- {
		n := s.list[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *NotificationStore) MarkRead(_ context.Context, userID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.list {
		if s.list[i].ID == id && s.list[i].UserID == userID {
			s.list[i].IsRead = true
			return nil
		}
	}
	return services.ErrNotFound
}

// All returns every recorded notification in creation order.
func (s *NotificationStore) All() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.list...)
}

func sortMessages(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[j].Snapshot("").NewerThan(msgs[i].Snapshot(""))
	})
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	out := *c
	out.Members = append([]string(nil), c.Members...)
	out.Staff = append([]string(nil), c.Staff...)
	if c.LastMessage != nil {
		l := *c.LastMessage
		out.LastMessage = &l
	}
	return &out
}

func cloneMessage(m *models.Message) *models.Message {
	out := *m
	out.Media = append([]models.Media{}, m.Media...)
	out.ReadBy = append([]models.ReadReceipt{}, m.ReadBy...)
	out.Sender = nil
	return &out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func addToSet(list []string, values ...string) []string {
	for _, v := range values {
		if !contains(list, v) {
			list = append(list, v)
		}
	}
	return list
}

func pull(list []string, values []string) []string {
	out := list[:0:0]
	for _, v := range list {
		if !contains(values, v) {
			out = append(out, v)
		}
	}
	return out
}
