package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/pkg/identity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	notifyTimeout            = 5 * time.Second
	maxConcurrentDispatches  = 16
	DefaultNotificationLimit = 50
	MaxNotificationLimit     = 200
)

var mentionPattern = regexp.MustCompile(`@([0-9a-fA-F]{24})\b`)

// NotificationDispatcher records durable notifications for the external
// delivery collaborator. Work runs off the caller's goroutine; failures are
// logged and never returned to the operation that triggered them.
type NotificationDispatcher struct {
	store         NotificationStore
	subscriptions SubscriptionChecker
	sink          NotificationSink
	now           func() time.Time
	log           *zap.SugaredLogger

	slots   chan struct{}
	pending sync.WaitGroup
}

func NewNotificationDispatcher(store NotificationStore, subs SubscriptionChecker, sink NotificationSink, log *zap.SugaredLogger) *NotificationDispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &NotificationDispatcher{
		store:         store,
		subscriptions: subs,
		sink:          sink,
		now:           time.Now,
		log:           log,
		slots:         make(chan struct{}, maxConcurrentDispatches),
	}
}

// WithClock replaces the dispatcher's time source.
func (d *NotificationDispatcher) WithClock(now func() time.Time) *NotificationDispatcher {
	d.now = now
	return d
}

// MessageSent notifies every participant except the sender. Participants named
// with @<id> get a mention; the rest get new_message unless they are watching
// the conversation right now.
func (d *NotificationDispatcher) MessageSent(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	convID, msgID, sender := conv.ID.Hex(), msg.ID.Hex(), msg.SenderID
	participants := conv.Participants()
	mentioned := Mentions(msg.Text)

	d.dispatch(ctx, func(ctx context.Context) {
		batch := make([]*models.Notification, 0, len(participants))
		for _, userID := range participants {
			if userID == sender {
				continue
			}
			if _, ok := mentioned[userID]; ok {
				batch = d.record(ctx, batch, userID, models.NotificationMention, convID, msgID)
				continue
			}
			if d.watching(ctx, convID, userID) {
				continue
			}
			batch = d.record(ctx, batch, userID, models.NotificationNewMessage, convID, msgID)
		}
		d.forward(ctx, batch)
	})
}

// Notify records one notification of type typ for each recipient.
func (d *NotificationDispatcher) Notify(ctx context.Context, recipients []string, typ models.NotificationType, conversationID, messageID string) {
	recipients = append([]string(nil), recipients...)

	d.dispatch(ctx, func(ctx context.Context) {
		batch := make([]*models.Notification, 0, len(recipients))
		for _, userID := range recipients {
			batch = d.record(ctx, batch, userID, typ, conversationID, messageID)
		}
		d.forward(ctx, batch)
	})
}

// Wait blocks until every dispatched batch has been recorded and forwarded.
func (d *NotificationDispatcher) Wait() {
	d.pending.Wait()
}

// dispatch runs fn in the background, detached from the caller's cancellation.
// At most maxConcurrentDispatches batches touch the stores at once.
func (d *NotificationDispatcher) dispatch(ctx context.Context, fn func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		d.slots <- struct{}{}
		defer func() { <-d.slots }()
		fn(ctx)
	}()
}

// watching treats a failed subscription lookup as offline so the notice is not lost.
func (d *NotificationDispatcher) watching(ctx context.Context, conversationID, userID string) bool {
	if d.subscriptions == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	ok, err := d.subscriptions.IsSubscribed(ctx, conversationID, userID)
	if err != nil {
		d.log.Warnw("subscription lookup failed", "conversation", conversationID, "user", userID, "error", err)
		return false
	}
	return ok
}

// record stores one notification under its own deadline and appends it to batch.
func (d *NotificationDispatcher) record(ctx context.Context, batch []*models.Notification, userID string, typ models.NotificationType, conversationID, messageID string) []*models.Notification {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	n := &models.Notification{
		ID:                    uuid.New(),
		UserID:                userID,
		Type:                  typ,
		RelatedConversationID: conversationID,
		RelatedMessageID:      messageID,
		CreatedAt:             d.now().UTC().Truncate(time.Millisecond),
	}
	if err := d.store.Create(ctx, n); err != nil {
		d.log.Errorw("failed to record notification", "user", userID, "type", typ, "conversation", conversationID, "error", err)
		return batch
	}
	return append(batch, n)
}

// forward hands a recorded batch to the sink in one write.
func (d *NotificationDispatcher) forward(ctx context.Context, batch []*models.Notification) {
	if d.sink == nil || len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	if err := d.sink.PublishNotifications(ctx, batch...); err != nil {
		d.log.Warnw("failed to forward notifications", "count", len(batch), "error", err)
	}
}

// ListForUser returns the user's notifications, newest first.
func (d *NotificationDispatcher) ListForUser(ctx context.Context, userID identity.ID, unreadOnly bool, limit int) ([]models.Notification, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("%w: identity is required", ErrInvalidIdentity)
	}
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	if limit > MaxNotificationLimit {
		limit = MaxNotificationLimit
	}
	list, err := d.store.ListForUser(ctx, string(userID), unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if list == nil {
		list = []models.Notification{}
	}
	return list, nil
}

// MarkRead marks one of the user's notifications read. Notifications of other
// users are reported as not found.
func (d *NotificationDispatcher) MarkRead(ctx context.Context, userID identity.ID, id uuid.UUID) error {
	if userID.IsZero() {
		return fmt.Errorf("%w: identity is required", ErrInvalidIdentity)
	}
	if err := d.store.MarkRead(ctx, string(userID), id); err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

// Mentions returns the canonical ids referenced as @<id> in text.
func Mentions(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		out[strings.ToLower(m[1])] = struct{}{}
	}
	return out
}
