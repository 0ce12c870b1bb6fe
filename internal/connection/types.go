package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrAlreadyStarted     = errors.New("already started")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// State is the connection lifecycle state. Exactly one state is active per
// manager at any time.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Config configures a connection manager.
type Config struct {
	URL                  string        // Full WebSocket endpoint URL
	MaxReconnectAttempts int           // Reconnect attempts before giving up
	ReconnectBaseDelay   time.Duration // Backoff base; delay = base * 2^attempt
	HeartbeatInterval    time.Duration // Ping cadence while connected
	HandshakeTimeout     time.Duration // Dial timeout
	WriteTimeout         time.Duration // Write deadline for sends
	BufferSize           int           // Inbound message channel buffer
}

// DefaultConfig returns the standard tunables.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   1 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		BufferSize:           256,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.BufferSize == 0 {
		c.BufferSize = def.BufferSize
	}
}
