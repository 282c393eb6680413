package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/internal/realtime"
	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100

	// DefaultUploadTimeout bounds all uploads of one send together.
	DefaultUploadTimeout = 60 * time.Second

	// maxRecomputeAttempts bounds the last-message repair loop after a delete.
	maxRecomputeAttempts = 5
)

type SendInput struct {
	ConversationID identity.ID
	SenderID       identity.ID
	Text           string
	Files          []FileUpload
}

// HistoryPage is one page of history, oldest first. HasMore reports whether
// older messages exist before the first one returned.
type HistoryPage struct {
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// MessageService manages the message lifecycle: send, history, delete and read receipts.
type MessageService struct {
	conversations ConversationStore
	messages      MessageStore
	directory     Directory
	uploader      Uploader
	events        EventPublisher
	notifier      *NotificationDispatcher
	mediaFolder   string
	uploadTimeout time.Duration
	now           func() time.Time
	log           *zap.SugaredLogger
}

type MessageDeps struct {
	Conversations ConversationStore
	Messages      MessageStore
	Directory     Directory
	Uploader      Uploader
	Events        EventPublisher
	Notifier      *NotificationDispatcher
	MediaFolder   string
	UploadTimeout time.Duration
	Now           func() time.Time
	Log           *zap.SugaredLogger
}

func NewMessageService(d MessageDeps) *MessageService {
	if d.UploadTimeout <= 0 {
		d.UploadTimeout = DefaultUploadTimeout
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop().Sugar()
	}
	if d.MediaFolder == "" {
		d.MediaFolder = "chat"
	}
	return &MessageService{
		conversations: d.Conversations,
		messages:      d.Messages,
		directory:     d.Directory,
		uploader:      d.Uploader,
		events:        d.Events,
		notifier:      d.Notifier,
		mediaFolder:   d.MediaFolder,
		uploadTimeout: d.UploadTimeout,
		now:           d.Now,
		log:           d.Log,
	}
}

// PreviewText is the conversation-list text for a message.
func PreviewText(text string, mediaCount int) string {
	if text != "" {
		return text
	}
	return fmt.Sprintf("Sent %d file(s)", mediaCount)
}

// Send validates, uploads attachments, persists the message and fans it out.
// Nothing is persisted when any upload fails.
func (s *MessageService) Send(ctx context.Context, in SendInput) (*models.Message, error) {
	conv, err := s.loadConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := RequireMember(conv, in.SenderID); err != nil {
		return nil, err
	}
	if conv.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: conversation is %s", ErrForbidden, conv.Status)
	}

	text := strings.TrimSpace(in.Text)
	if text == "" && len(in.Files) == 0 {
		return nil, fmt.Errorf("%w: message needs text or at least one file", ErrInvalidContent)
	}
	for _, f := range in.Files {
		if len(f.Data) == 0 {
			return nil, fmt.Errorf("%w: file %q is empty", ErrInvalidContent, f.FileName)
		}
	}

	uploadCtx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	media, err := uploadAll(uploadCtx, s.uploader, s.mediaFolder+"/"+conv.ID.Hex(), in.Files)
	cancel()
	if err != nil {
		s.log.Warnw("attachment upload failed", "conversation", conv.ID.Hex(), "sender", in.SenderID, "error", err)
		return nil, err
	}
	if media == nil {
		media = []models.Media{}
	}

	msg := &models.Message{
		ID:             primitive.NewObjectID(),
		ConversationID: conv.ID,
		SenderID:       string(in.SenderID),
		Text:           text,
		Media:          media,
		CreatedAt:      s.now().UTC().Truncate(time.Millisecond),
		ReadBy:         []models.ReadReceipt{},
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := s.conversations.AdvanceLastMessage(ctx, conv.ID, msg.Snapshot(PreviewText(text, len(media)))); err != nil {
		if derr := s.messages.Delete(context.WithoutCancel(ctx), msg.ID); derr != nil {
			s.log.Errorw("failed to roll back message after cache update failure",
				"message", msg.ID.Hex(), "error", derr)
		}
		return nil, fmt.Errorf("update last message: %w", err)
	}

	msg.Sender = s.resolveSender(ctx, msg.SenderID)

	s.publish(ctx, conv.ID.Hex(), realtime.Event{
		Type:      realtime.EventTypeMessage,
		MessageID: msg.ID.Hex(),
		UserID:    msg.SenderID,
		Message:   msg,
	})

	if s.notifier != nil {
		s.notifier.MessageSent(ctx, conv, msg)
	}
	return msg, nil
}

// History returns every message of the conversation, oldest first.
func (s *MessageService) History(ctx context.Context, conversationID, requester identity.ID) ([]models.Message, error) {
	conv, err := s.memberConversation(ctx, conversationID, requester)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.List(ctx, conv.ID, HistoryQuery{})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	s.attachSenders(ctx, msgs)
	return msgs, nil
}

// HistoryPage returns up to limit messages older than the before message, oldest first.
// A zero before starts from the newest message.
func (s *MessageService) HistoryPage(ctx context.Context, conversationID, requester, before identity.ID, limit int) (*HistoryPage, error) {
	conv, err := s.memberConversation(ctx, conversationID, requester)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	q := HistoryQuery{Limit: int64(limit) + 1}
	if !before.IsZero() {
		oid, err := objectID(before)
		if err != nil {
			return nil, err
		}
		cursor, err := s.messages.FindByID(ctx, oid)
		if err != nil {
			return nil, fmt.Errorf("history cursor %s: %w", before, err)
		}
		if cursor.ConversationID != conv.ID {
			return nil, fmt.Errorf("%w: cursor belongs to another conversation", ErrNotFound)
		}
		q.BeforeTime = cursor.CreatedAt
		q.BeforeID = cursor.ID
	}

	msgs, err := s.messages.List(ctx, conv.ID, q)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	page := &HistoryPage{Messages: msgs}
	if len(msgs) > limit {
		page.HasMore = true
		page.Messages = msgs[len(msgs)-limit:]
	}
	if page.Messages == nil {
		page.Messages = []models.Message{}
	}
	s.attachSenders(ctx, page.Messages)
	return page, nil
}

// Get returns a message by id with its sender resolved.
func (s *MessageService) Get(ctx context.Context, messageID identity.ID) (*models.Message, error) {
	oid, err := objectID(messageID)
	if err != nil {
		return nil, err
	}
	msg, err := s.messages.FindByID(ctx, oid)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", messageID, err)
	}
	msg.Sender = s.resolveSender(ctx, msg.SenderID)
	return msg, nil
}

// GetForMember is Get restricted to members of the message's conversation.
func (s *MessageService) GetForMember(ctx context.Context, messageID, requester identity.ID) (*models.Message, error) {
	msg, err := s.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	conv, err := s.conversations.FindByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", msg.ConversationID.Hex(), err)
	}
	if err := RequireMember(conv, requester); err != nil {
		return nil, err
	}
	return msg, nil
}

// Delete removes a message. Only its sender, while still a participant, may
// delete it. If the message was
// the conversation's last message the cached snapshot is recomputed.
func (s *MessageService) Delete(ctx context.Context, messageID, requester identity.ID) error {
	oid, err := objectID(messageID)
	if err != nil {
		return err
	}
	msg, err := s.messages.FindByID(ctx, oid)
	if err != nil {
		return fmt.Errorf("message %s: %w", messageID, err)
	}
	conv, err := s.conversations.FindByID(ctx, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("conversation %s: %w", msg.ConversationID.Hex(), err)
	}
	// A sender removed from the group loses delete rights with everything else.
	if err := RequireMember(conv, requester); err != nil {
		return err
	}
	if msg.SenderID != string(requester) {
		return fmt.Errorf("%w: only the sender can delete a message", ErrForbidden)
	}

	if err := s.messages.Delete(ctx, oid); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if err := s.recomputeLastMessage(ctx, msg.ConversationID, oid); err != nil {
		return err
	}

	s.publish(ctx, msg.ConversationID.Hex(), realtime.Event{
		Type:      realtime.EventTypeMessageDeleted,
		MessageID: oid.Hex(),
		UserID:    string(requester),
	})
	return nil
}

// recomputeLastMessage swaps the cache from replaced to the newest surviving
// message. The swap is conditional, so a concurrent send that already advanced
// the cache wins. If the chosen successor is deleted underneath us the loop
// repairs from it.
func (s *MessageService) recomputeLastMessage(ctx context.Context, conversationID, replaced primitive.ObjectID) error {
	for attempt := 0; attempt < maxRecomputeAttempts; attempt++ {
		latest, err := s.messages.Latest(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("find latest message: %w", err)
		}

		var next *models.LastMessage
		if latest != nil {
			snap := latest.Snapshot(PreviewText(latest.Text, len(latest.Media)))
			next = &snap
		}

		swapped, err := s.conversations.ReplaceLastMessage(ctx, conversationID, replaced, next)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return fmt.Errorf("replace last message: %w", err)
		}
		if !swapped || next == nil {
			return nil
		}

		if _, err := s.messages.FindByID(ctx, next.MessageID); err == nil {
			return nil
		} else if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("verify last message: %w", err)
		}
		replaced = next.MessageID
	}

	s.log.Warnw("last message did not settle", "conversation", conversationID.Hex())
	return fmt.Errorf("%w: last message kept changing during delete", ErrConflict)
}

// MarkRead records a read receipt for reader. Repeated calls are no-ops.
func (s *MessageService) MarkRead(ctx context.Context, messageID, reader identity.ID) (*models.Message, error) {
	msg, err := s.GetForMember(ctx, messageID, reader)
	if err != nil {
		return nil, err
	}
	if msg.HasReader(string(reader)) {
		return msg, nil
	}

	receipt := models.ReadReceipt{UserID: string(reader), ReadAt: s.now().UTC().Truncate(time.Millisecond)}
	added, err := s.messages.AddReadReceipt(ctx, msg.ID, receipt)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if added {
		msg.ReadBy = append(msg.ReadBy, receipt)
		s.publish(ctx, msg.ConversationID.Hex(), realtime.Event{
			Type:      realtime.EventTypeMessageRead,
			MessageID: msg.ID.Hex(),
			UserID:    string(reader),
		})
	}
	return msg, nil
}

func (s *MessageService) memberConversation(ctx context.Context, conversationID, requester identity.ID) (*models.Conversation, error) {
	conv, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := RequireMember(conv, requester); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *MessageService) loadConversation(ctx context.Context, conversationID identity.ID) (*models.Conversation, error) {
	oid, err := objectID(conversationID)
	if err != nil {
		return nil, err
	}
	conv, err := s.conversations.FindByID(ctx, oid)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, err)
	}
	return conv, nil
}

// resolveSender is best effort: a missing directory entry leaves the message without a profile.
func (s *MessageService) resolveSender(ctx context.Context, senderID string) *models.Profile {
	if s.directory == nil {
		return nil
	}
	p, err := s.directory.ResolveIdentity(ctx, senderID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warnw("failed to resolve sender", "sender", senderID, "error", err)
		}
		return nil
	}
	return p
}

func (s *MessageService) attachSenders(ctx context.Context, msgs []models.Message) {
	resolved := make(map[string]*models.Profile)
	for i := range msgs {
		id := msgs[i].SenderID
		p, ok := resolved[id]
		if !ok {
			p = s.resolveSender(ctx, id)
			resolved[id] = p
		}
		msgs[i].Sender = p
	}
}

func (s *MessageService) publish(ctx context.Context, conversationID string, evt realtime.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, conversationID, evt); err != nil {
		s.log.Warnw("failed to publish message event", "conversation", conversationID, "type", evt.Type, "error", err)
	}
}
