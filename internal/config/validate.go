package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.BaseURL, "ws://") && !strings.HasPrefix(c.Server.BaseURL, "wss://") {
		return fmt.Errorf("server.base_url must start with ws:// or wss://, got %q", c.Server.BaseURL)
	}

	for name, path := range map[string]string{
		"server.data_path":          c.Server.DataPath,
		"server.notifications_path": c.Server.NotificationsPath,
		"server.presence_path":      c.Server.PresencePath,
		"server.collaboration_path": c.Server.CollaborationPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must start with /, got %q", name, path)
		}
	}

	if c.Connection.MaxReconnectAttempts < 1 {
		return errors.New("connection.max_reconnect_attempts must be >= 1")
	}
	if c.Connection.ReconnectBaseDelay <= 0 {
		return errors.New("connection.reconnect_base_delay must be > 0")
	}
	if c.Connection.HeartbeatInterval <= 0 {
		return errors.New("connection.heartbeat_interval must be > 0")
	}
	if c.Connection.BufferSize < 1 {
		return errors.New("connection.buffer_size must be >= 1")
	}

	if c.Sync.Endpoint != "" && len(c.Sync.Events) == 0 {
		return fmt.Errorf("sync.events is required when sync.endpoint is set")
	}

	return nil
}
