package services

import (
	"context"
	"time"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
	"github.com/AnshRaj112/campus-chat-backend/internal/realtime"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HistoryQuery pages backwards from a (BeforeTime, BeforeID) cursor. A zero
// cursor starts at the newest message; Limit 0 returns everything.
type HistoryQuery struct {
	BeforeTime time.Time
	BeforeID   primitive.ObjectID
	Limit      int64
}

// ConversationStore persists conversations. Implementations must make
// UpsertIndividual, AdvanceLastMessage and ReplaceLastMessage single atomic
// store operations; the services never lock in-process.
type ConversationStore interface {
	Insert(ctx context.Context, c *models.Conversation) error
	// UpsertIndividual returns the conversation with c.PairKey, inserting c when
	// none exists. The bool reports whether c was inserted.
	UpsertIndividual(ctx context.Context, c *models.Conversation) (*models.Conversation, bool, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error)
	ListForParticipant(ctx context.Context, userID string, kind models.ConversationKind) ([]models.Conversation, error)
	AddParticipants(ctx context.Context, id primitive.ObjectID, members, staff []string) (*models.Conversation, error)
	RemoveParticipants(ctx context.Context, id primitive.ObjectID, userIDs []string) (*models.Conversation, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, status models.ConversationStatus) (*models.Conversation, error)
	// AdvanceLastMessage stores last only if it is newer than the cached snapshot.
	AdvanceLastMessage(ctx context.Context, id primitive.ObjectID, last models.LastMessage) error
	// ReplaceLastMessage swaps the cache to next (nil clears it) only while it
	// still points at replaced. It reports whether the swap happened.
	ReplaceLastMessage(ctx context.Context, id, replaced primitive.ObjectID, next *models.LastMessage) (bool, error)
}

// MessageStore persists messages independently of their conversation.
type MessageStore interface {
	Insert(ctx context.Context, m *models.Message) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	// List returns messages oldest first, ordered by (CreatedAt, ID).
	List(ctx context.Context, conversationID primitive.ObjectID, q HistoryQuery) ([]models.Message, error)
	// Latest returns the newest message or nil when the conversation is empty.
	Latest(ctx context.Context, conversationID primitive.ObjectID) (*models.Message, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	CountByConversation(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]int64, error)
	// AddReadReceipt appends r unless the user already has a receipt.
	AddReadReceipt(ctx context.Context, id primitive.ObjectID, r models.ReadReceipt) (bool, error)
}

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID string, id uuid.UUID) error
}

// NotificationSink forwards recorded notifications to the external delivery
// collaborator. One call carries every notification produced by one event.
type NotificationSink interface {
	PublishNotifications(ctx context.Context, ns ...*models.Notification) error
}

// EventPublisher is the part of the broadcaster the core publishes through.
type EventPublisher interface {
	Publish(ctx context.Context, conversationID string, evt realtime.Event) error
}

// SubscriptionChecker reports live subscriptions at publish time.
type SubscriptionChecker interface {
	IsSubscribed(ctx context.Context, conversationID, userID string) (bool, error)
}

// EnrollmentProvider is the course/enrollment collaborator.
type EnrollmentProvider interface {
	GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error)
	FindEnrollments(ctx context.Context, courseID, mentorID string) ([]models.Enrollment, error)
}

// Directory resolves user and mentor display data.
type Directory interface {
	ResolveIdentity(ctx context.Context, id string) (*models.Profile, error)
}

// Uploader stores attachment bytes in the external object store and returns their URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, folder, filename string) (string, error)
}
