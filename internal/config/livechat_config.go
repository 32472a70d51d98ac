package config

import "time"

const (
	// Reconnect backoff
	ReconnectBaseDelay = 1 * time.Second
	ReconnectMaxDelay  = 30 * time.Second
	// ReconnectJitter is the fraction of the computed delay that is
	// randomized (+/-) to avoid thundering-herd reconnects after an outage.
	ReconnectJitter = 0.5

	// Socket
	HandshakeTimeout = 10 * time.Second
	WriteWait        = 10 * time.Second
	PongWait         = 60 * time.Second
	PingPeriod       = (PongWait * 9) / 10
	MaxMessageSize   = 4096
	SendBufferSize   = 64
	EventBufferSize  = 256

	// Typing indicator
	TypingStopDebounce = 500 * time.Millisecond
	TypingTTL          = 7 * time.Second

	// Message log
	MaxCachedConversations = 16
)
