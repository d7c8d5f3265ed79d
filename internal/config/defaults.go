package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultPingInterval      = 25 * time.Second
	DefaultPingTimeout       = 60 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultReconnectBase     = 1 * time.Second
	DefaultReconnectMax      = 30 * time.Second
	DefaultReconnectAttempts = 10
	DefaultSendTimeout       = 10 * time.Second
	DefaultPendingLimit      = 8
	DefaultTypingTTL         = 3 * time.Second
	DefaultInboundSize       = 256
	DefaultLocalSize         = 64
)

// Defaults returns a config with every optional field filled in. The
// endpoint and credential still have to be set by the caller.
func Defaults() ClientConfig {
	var c ClientConfig
	c.applyDefaults()
	return c
}

func (c *ClientConfig) applyDefaults() {
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultPingInterval
	}
	if c.Server.PingTimeout == 0 {
		c.Server.PingTimeout = DefaultPingTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}

	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultReconnectBase
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMax
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultReconnectAttempts
	}

	if c.Chat.SendTimeout == 0 {
		c.Chat.SendTimeout = DefaultSendTimeout
	}
	if c.Chat.PendingLimit == 0 {
		c.Chat.PendingLimit = DefaultPendingLimit
	}

	if c.Typing.TTL == 0 {
		c.Typing.TTL = DefaultTypingTTL
	}

	if c.Buffers.InboundSize == 0 {
		c.Buffers.InboundSize = DefaultInboundSize
	}
	if c.Buffers.LocalSize == 0 {
		c.Buffers.LocalSize = DefaultLocalSize
	}
}
