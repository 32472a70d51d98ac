package models

import "time"

// ConversationStatus is the server-confirmed lifecycle state of a conversation.
type ConversationStatus string

const (
	// StatusWaiting means the customer has made contact but no staff member
	// has engaged yet.
	StatusWaiting ConversationStatus = "waiting"
	// StatusActive means a staff member is engaged and messaging is allowed.
	StatusActive ConversationStatus = "active"
	// StatusClosed means messaging is disallowed until the conversation is
	// reopened. Conversations are never deleted, only closed.
	StatusClosed ConversationStatus = "closed"
)

// Conversation is one customer-support thread between a customer and staff.
type Conversation struct {
	ConversationID string             `json:"conversation_id"`
	Participants   []string           `json:"participants"`
	Status         ConversationStatus `json:"status"`
	LastMessageAt  time.Time          `json:"last_message_at"`
	UnreadCount    int                `json:"unread_count"`
}

// Message is a single persisted chat message. It is immutable once created;
// MessageID is server-assigned and unique within its conversation.
type Message struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderRole     Role      `json:"sender_role"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
	// ClientNonce correlates an optimistic local send with the persisted
	// message the server echoes back. Optional.
	ClientNonce string `json:"client_nonce,omitempty"`
}

// TypingState is the ephemeral "counterparty is typing" indicator. It is never
// persisted and never enters the message log; it is superseded by the next
// typing event or by expiry, whichever comes first.
type TypingState struct {
	ConversationID string    `json:"conversation_id"`
	ParticipantID  string    `json:"participant_id"`
	IsTyping       bool      `json:"is_typing"`
	ExpiresAt      time.Time `json:"expires_at"`
}
