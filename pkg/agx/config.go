// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package agx

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/agxmon/pkg/socketio"
)

// Config is copied into the monitor at Init and never changes afterwards.
// Changing it requires Deinit followed by Init.
type Config struct {
	ServerHost string `mapstructure:"server_host" yaml:"server_host"`
	ServerPort int    `mapstructure:"server_port" yaml:"server_port"`
	UseSSL     bool   `mapstructure:"use_ssl" yaml:"use_ssl"`

	// Skip TLS certificate verification (self-signed AGX certificates)
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`

	// Optional HTTP Basic auth for the WebSocket upgrade
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"-"`

	ReconnectInterval time.Duration `mapstructure:"reconnect_interval" yaml:"reconnect_interval"`
	FastRetryCount    int           `mapstructure:"fast_retry_count" yaml:"fast_retry_count"`
	FastRetryInterval time.Duration `mapstructure:"fast_retry_interval" yaml:"fast_retry_interval"`

	// HeartbeatTimeout bounds the WebSocket handshake and every frame write
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout" yaml:"heartbeat_timeout"`

	StartupDelay time.Duration `mapstructure:"startup_delay" yaml:"startup_delay"`
	AutoStart    bool          `mapstructure:"auto_start" yaml:"auto_start"`

	// Worker sizing carried over from the carrier board firmware. They are
	// validated for compatibility with existing config files.
	TaskStackSize int `mapstructure:"task_stack_size" yaml:"task_stack_size"`
	TaskPriority  int `mapstructure:"task_priority" yaml:"task_priority"`

	MaxFrameSize int `mapstructure:"max_frame_size" yaml:"max_frame_size"`
}

// DefaultConfig returns the settings used by the robOS carrier board
func DefaultConfig() Config {
	return Config{
		ServerHost:        "10.10.99.99",
		ServerPort:        58090,
		ReconnectInterval: 3 * time.Second,
		FastRetryCount:    5,
		FastRetryInterval: 1 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
		StartupDelay:      45 * time.Second,
		AutoStart:         true,
		TaskStackSize:     8192,
		TaskPriority:      5,
		MaxFrameSize:      socketio.DefaultMaxFrameSize,
	}
}

// URL returns the Socket.IO endpoint for this config
func (c *Config) URL() string {
	return socketio.URL(c.ServerHost, c.ServerPort, c.UseSSL)
}

// Validate checks the config and returns a *ConfigError for the first bad field
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.ServerHost) == "":
		return invalid("server_host", "must not be empty")
	case c.ServerPort <= 0 || c.ServerPort > 65535:
		return invalid("server_port", "%d out of range (1-65535)", c.ServerPort)
	case c.TaskStackSize < MinTaskStackSize || c.TaskStackSize > MaxTaskStackSize:
		return invalid("task_stack_size", "%d out of range (%d-%d)", c.TaskStackSize, MinTaskStackSize, MaxTaskStackSize)
	case c.TaskPriority < MinTaskPriority || c.TaskPriority > MaxTaskPriority:
		return invalid("task_priority", "%d out of range (%d-%d)", c.TaskPriority, MinTaskPriority, MaxTaskPriority)
	case c.ReconnectInterval <= 0:
		return invalid("reconnect_interval", "must be positive")
	case c.FastRetryInterval <= 0:
		return invalid("fast_retry_interval", "must be positive")
	case c.FastRetryCount < 0:
		return invalid("fast_retry_count", "must not be negative")
	case c.HeartbeatTimeout <= 0:
		return invalid("heartbeat_timeout", "must be positive")
	case c.StartupDelay < 0:
		return invalid("startup_delay", "must not be negative")
	case c.MaxFrameSize < 0:
		return invalid("max_frame_size", "must not be negative")
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
