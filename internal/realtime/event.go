package realtime

import (
	"time"

	"github.com/AnshRaj112/campus-chat-backend/internal/models"
)

const (
	EventTypeMessage        = "message.new"
	EventTypeMessageDeleted = "message.deleted"
	EventTypeMessageRead    = "message.read"
	EventTypeMembersUpdated = "conversation.members_updated"
	EventTypeStatusUpdated  = "conversation.status_updated"
	EventTypeSubscribed     = "subscribed"
	EventTypeUnsubscribed   = "unsubscribed"
	EventTypePong           = "pong"
	EventTypeError          = "error"
)

// Event is the payload broadcast over Redis and WebSocket.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	Message        *models.Message `json:"message,omitempty"`
	Error          string          `json:"error,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// ChannelPrefix namespaces per-conversation pub/sub channels.
const ChannelPrefix = "chat:conversation:"

// Channel returns the broadcast channel of a conversation.
func Channel(conversationID string) string {
	return ChannelPrefix + conversationID
}
