package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationNewMessage   NotificationType = "new_message"
	NotificationGroupCreated NotificationType = "group_created"
	NotificationUserAdded    NotificationType = "user_added"
	NotificationUserRemoved  NotificationType = "user_removed"
	NotificationMention      NotificationType = "mention"
)

// Notification is stored in PostgreSQL and read by the external delivery collaborator.
type Notification struct {
	ID                    uuid.UUID        `json:"id"`
	UserID                string           `json:"user_id"`
	Type                  NotificationType `json:"type"`
	RelatedConversationID string           `json:"related_conversation_id,omitempty"`
	RelatedMessageID      string           `json:"related_message_id,omitempty"`
	IsRead                bool             `json:"is_read"`
	CreatedAt             time.Time        `json:"created_at"`
}
