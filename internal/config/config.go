package config

import "time"

// ClientConfig is the root configuration for a sync client instance.
type ClientConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Chat      ChatConfig      `yaml:"chat"`
	Typing    TypingConfig    `yaml:"typing"`
	Buffers   BuffersConfig   `yaml:"buffers"`
}

// ServerConfig holds the realtime endpoint settings.
type ServerConfig struct {
	WSURL            string        `yaml:"ws_url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"` // max silence before the socket is treated as stale
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

// AuthConfig holds the handshake credential.
type AuthConfig struct {
	Token    string `yaml:"token"`     // usually ${HOBBYVERSE_TOKEN}
	ViewerID string `yaml:"viewer_id"` // optional; falls back to the token's sub claim
}

// ReconnectConfig holds backoff settings.
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"` // consecutive failures before giving up
}

// ChatConfig holds message-send settings.
type ChatConfig struct {
	SendTimeout  time.Duration `yaml:"send_timeout"`  // unconfirmed sends fail after this
	PendingLimit int           `yaml:"pending_limit"` // max unacknowledged sends per room
}

// TypingConfig holds typing-indicator settings.
type TypingConfig struct {
	TTL time.Duration `yaml:"ttl"` // matches the sender-side debounce
}

// BuffersConfig holds channel buffer sizes.
type BuffersConfig struct {
	InboundSize int `yaml:"inbound_size"` // manager -> router frame buffer
	LocalSize   int `yaml:"local_size"`   // locally published event buffer
}
