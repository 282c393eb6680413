package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConversationKind distinguishes group chats from one-on-one learner/mentor chats.
type ConversationKind string

const (
	KindGroup      ConversationKind = "group"
	KindIndividual ConversationKind = "individual"
)

// Valid reports whether k is a known kind.
func (k ConversationKind) Valid() bool {
	return k == KindGroup || k == KindIndividual
}

type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
	StatusInactive ConversationStatus = "inactive"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusInactive:
		return true
	}
	return false
}

// LastMessage is the denormalized snapshot of the newest message in a conversation.
// MessageID breaks ties between messages created in the same millisecond.
type LastMessage struct {
	MessageID primitive.ObjectID `bson:"message_id" json:"message_id"`
	Text      string             `bson:"text" json:"text"`
	SenderID  string             `bson:"sender_id" json:"sender_id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// NewerThan orders snapshots by (CreatedAt, MessageID).
func (l LastMessage) NewerThan(other LastMessage) bool {
	if !l.CreatedAt.Equal(other.CreatedAt) {
		return l.CreatedAt.After(other.CreatedAt)
	}
	return l.MessageID.Hex() > other.MessageID.Hex()
}

// Conversation is stored in MongoDB. Members are learners, Staff are mentors.
// Both hold weak references into the external user directory.
type Conversation struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind             ConversationKind   `bson:"kind" json:"kind"`
	DisplayName      string             `bson:"display_name" json:"display_name"`
	SourceEnrollment string             `bson:"source_enrollment,omitempty" json:"source_enrollment,omitempty"`
	SourceCourse     string             `bson:"source_course,omitempty" json:"source_course,omitempty"`
	SourceMentor     string             `bson:"source_mentor,omitempty" json:"source_mentor,omitempty"`
	Members          []string           `bson:"members" json:"members"`
	Staff            []string           `bson:"staff" json:"staff"`
	PairKey          string             `bson:"pair_key,omitempty" json:"-"`
	LastMessage      *LastMessage       `bson:"last_message,omitempty" json:"last_message,omitempty"`
	Status           ConversationStatus `bson:"status" json:"status"`
	CreatedBy        string             `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

// Participants returns members followed by staff.
func (c *Conversation) Participants() []string {
	out := make([]string, 0, len(c.Members)+len(c.Staff))
	out = append(out, c.Members...)
	return append(out, c.Staff...)
}

// ConversationSummary is a list-view row.
type ConversationSummary struct {
	Conversation
	MessageCount int64 `json:"message_count"`
}

type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaPDF      MediaKind = "pdf"
	MediaDocument MediaKind = "document"
)

type Media struct {
	URL      string    `bson:"url" json:"url"`
	Kind     MediaKind `bson:"kind" json:"kind"`
	FileName string    `bson:"file_name" json:"file_name"`
}

// ReadReceipt records when a user read a message.
type ReadReceipt struct {
	UserID string    `bson:"user_id" json:"user_id"`
	ReadAt time.Time `bson:"read_at" json:"read_at"`
}

// Message is stored in MongoDB, one document per message, independent of its conversation.
type Message struct {
	ID             primitive.ObjectID `bson:"_id" json:"id"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversation_id"`
	SenderID       string             `bson:"sender_id" json:"sender_id"`
	Text           string             `bson:"text" json:"text"`
	Media          []Media            `bson:"media" json:"media"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	ReadBy         []ReadReceipt      `bson:"read_by" json:"read_by"`

	// Sender is resolved from the user directory for display; never persisted.
	Sender *Profile `bson:"-" json:"sender,omitempty"`
}

// Snapshot returns the cache entry for this message.
func (m *Message) Snapshot(text string) LastMessage {
	return LastMessage{
		MessageID: m.ID,
		Text:      text,
		SenderID:  m.SenderID,
		CreatedAt: m.CreatedAt,
	}
}

// HasReader reports whether userID already has a read receipt.
func (m *Message) HasReader(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
