package config

import "time"

// Config is the root configuration for the real-time client.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Auth       AuthConfig       `yaml:"auth"`
	Sync       SyncConfig       `yaml:"sync"`
}

// ServerConfig locates the real-time server and its endpoint paths.
type ServerConfig struct {
	BaseURL           string `yaml:"base_url"`
	DataPath          string `yaml:"data_path"`
	NotificationsPath string `yaml:"notifications_path"`
	PresencePath      string `yaml:"presence_path"`
	CollaborationPath string `yaml:"collaboration_path"`
}

// ConnectionConfig holds the per-connection tunables.
type ConnectionConfig struct {
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
}

// AuthConfig identifies this user to the server.
type AuthConfig struct {
	UserID string `yaml:"user_id"`
	Token  string `yaml:"token"`
	Name   string `yaml:"name"`
	Avatar string `yaml:"avatar"`
}

// SyncConfig declares the collection the data synchronizer watches.
type SyncConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Events   []string `yaml:"events"`
}

// DataURL returns the full URL for the data synchronization endpoint.
func (s ServerConfig) DataURL() string { return s.BaseURL + s.DataPath }

// NotificationsURL returns the full URL for the notifications endpoint.
func (s ServerConfig) NotificationsURL() string { return s.BaseURL + s.NotificationsPath }

// PresenceURL returns the full URL for the presence endpoint.
func (s ServerConfig) PresenceURL() string { return s.BaseURL + s.PresencePath }

// CollaborationURL returns the full URL for the collaboration endpoint.
func (s ServerConfig) CollaborationURL() string { return s.BaseURL + s.CollaborationPath }
