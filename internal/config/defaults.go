package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL           = "ws://localhost:3001"
	DefaultDataPath          = "/ws"
	DefaultNotificationsPath = "/notifications"
	DefaultPresencePath      = "/presence"
	DefaultCollaborationPath = "/collaboration"

	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultBufferSize           = 256
)

func (c *Config) applyDefaults() {
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = DefaultBaseURL
	}
	if c.Server.DataPath == "" {
		c.Server.DataPath = DefaultDataPath
	}
	if c.Server.NotificationsPath == "" {
		c.Server.NotificationsPath = DefaultNotificationsPath
	}
	if c.Server.PresencePath == "" {
		c.Server.PresencePath = DefaultPresencePath
	}
	if c.Server.CollaborationPath == "" {
		c.Server.CollaborationPath = DefaultCollaborationPath
	}

	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}
}
