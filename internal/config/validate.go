package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Server.WSURL == "" {
		return errors.New("server.ws_url is required")
	}
	if !strings.HasPrefix(c.Server.WSURL, "ws://") && !strings.HasPrefix(c.Server.WSURL, "wss://") {
		return fmt.Errorf("server.ws_url must be a ws:// or wss:// URL, got %q", c.Server.WSURL)
	}

	if c.Auth.Token == "" {
		return errors.New("auth.token is required")
	}

	if c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("reconnect.base_delay must be positive, got %v", c.Reconnect.BaseDelay)
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return fmt.Errorf("reconnect.max_delay (%v) must be >= base_delay (%v)",
			c.Reconnect.MaxDelay, c.Reconnect.BaseDelay)
	}
	if c.Reconnect.MaxAttempts < 1 {
		return fmt.Errorf("reconnect.max_attempts must be >= 1, got %d", c.Reconnect.MaxAttempts)
	}

	if c.Chat.SendTimeout <= 0 {
		return fmt.Errorf("chat.send_timeout must be positive, got %v", c.Chat.SendTimeout)
	}
	if c.Chat.PendingLimit < 1 {
		return fmt.Errorf("chat.pending_limit must be >= 1, got %d", c.Chat.PendingLimit)
	}

	if c.Typing.TTL <= 0 {
		return fmt.Errorf("typing.ttl must be positive, got %v", c.Typing.TTL)
	}

	if c.Buffers.InboundSize < 1 {
		return fmt.Errorf("buffers.inbound_size must be >= 1, got %d", c.Buffers.InboundSize)
	}
	if c.Buffers.LocalSize < 1 {
		return fmt.Errorf("buffers.local_size must be >= 1, got %d", c.Buffers.LocalSize)
	}

	return nil
}
