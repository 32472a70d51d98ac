package livechat

import "errors"

var (
	// ErrAuthRejected means the server refused the connection handshake. This
	// is terminal: the token is wrong or expired, and retrying will not help.
	ErrAuthRejected = errors.New("livechat: handshake rejected")

	// ErrConnectionClosed is returned when publishing on a connection after
	// Close has been called.
	ErrConnectionClosed = errors.New("livechat: connection closed")

	// ErrConversationClosed guards sends against a closed conversation. The
	// store rejects such sends anyway; this keeps the composer honest without
	// a round trip.
	ErrConversationClosed = errors.New("livechat: conversation is closed")
)
