package models

// Role identifies which side of a support conversation a participant is on.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// Session carries the identity under which a live connection is opened.
// It is immutable for the lifetime of the connection; changing the token or
// role requires tearing the connection down and opening a new one.
type Session struct {
	ParticipantID string `json:"participant_id"`
	Role          Role   `json:"role"`
	AuthToken     string `json:"-"`
}

// ConnectionState describes the transport-level state of the single live
// connection a session owns.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)
