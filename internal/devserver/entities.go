// Package devserver is a local stand-in for the external collaborators of the
// live channel: the REST message/conversation store, the session token issuer
// and the socket endpoint. It exists for development and end-to-end exercises;
// production talks to the real services.
package devserver

import (
	"time"

	"github.com/lib/pq"

	"shoply/livechat/internal/models"
)

// ConversationRecord is the persisted form of a support conversation.
// Conversations are never deleted, only closed and reopened.
type ConversationRecord struct {
	ConversationID string         `gorm:"primaryKey"`
	Participants   pq.StringArray `gorm:"type:text[]"`
	Status         string         `gorm:"index;not null"`
	LastMessageAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MessageRecord is one persisted chat message.
type MessageRecord struct {
	MessageID      string `gorm:"primaryKey"`
	ConversationID string `gorm:"type:text;not null;index:idx_conv_created"`
	SenderID       string `gorm:"type:text;not null"`
	SenderRole     string `gorm:"type:text;not null"`
	Body           string `gorm:"type:text;not null"`
	ClientNonce    string
	CreatedAt      time.Time `gorm:"index:idx_conv_created"`
}

func (r *ConversationRecord) toModel(unread int) models.Conversation {
	return models.Conversation{
		ConversationID: r.ConversationID,
		Participants:   append([]string(nil), r.Participants...),
		Status:         models.ConversationStatus(r.Status),
		LastMessageAt:  r.LastMessageAt,
		UnreadCount:    unread,
	}
}

func (r *MessageRecord) toModel() models.Message {
	return models.Message{
		MessageID:      r.MessageID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		SenderRole:     models.Role(r.SenderRole),
		Body:           r.Body,
		CreatedAt:      r.CreatedAt,
		ClientNonce:    r.ClientNonce,
	}
}

func (r *ConversationRecord) hasParticipant(participantID string) bool {
	for _, p := range r.Participants {
		if p == participantID {
			return true
		}
	}
	return false
}
