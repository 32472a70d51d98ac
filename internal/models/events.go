package models

// ClientEventType tags a control message sent from client to server over the
// live connection. Message sends and status changes go through the REST store,
// not through the socket.
type ClientEventType string

const (
	ClientJoin   ClientEventType = "join"
	ClientLeave  ClientEventType = "leave"
	ClientTyping ClientEventType = "typing"
)

// ClientEvent is the outbound control envelope.
type ClientEvent struct {
	Type           ClientEventType `json:"type"`
	ConversationID string          `json:"conversation_id"`
	IsTyping       bool            `json:"is_typing,omitempty"`
}

// ServerEventType tags an inbound event. The message/typing/status variants
// arrive over the wire; connected/disconnected are synthesized locally by the
// connection manager so that consumers observe transport transitions through
// the same typed stream.
type ServerEventType string

const (
	EventMessage       ServerEventType = "message"
	EventTyping        ServerEventType = "typing"
	EventStatusChanged ServerEventType = "status_changed"
	EventConnected     ServerEventType = "connected"
	EventDisconnected  ServerEventType = "disconnected"
)

// TypingEvent is the wire payload for a counterparty typing change.
type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	ParticipantID  string `json:"participant_id"`
	IsTyping       bool   `json:"is_typing"`
}

// StatusEvent announces a server-committed conversation status transition.
type StatusEvent struct {
	ConversationID string             `json:"conversation_id"`
	Status         ConversationStatus `json:"status"`
}

// ServerEvent is the tagged inbound envelope. Exactly one payload field is set,
// matching Type; dispatchers switch exhaustively on Type rather than on
// string-keyed callbacks.
type ServerEvent struct {
	Type    ServerEventType `json:"type"`
	Message *Message        `json:"message,omitempty"`
	Typing  *TypingEvent    `json:"typing,omitempty"`
	Status  *StatusEvent    `json:"status,omitempty"`
}
