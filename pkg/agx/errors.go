// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package agx

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized     = errors.New("monitor not initialized")
	ErrAlreadyInitialized = errors.New("monitor already initialized")
	ErrAlreadyRunning     = errors.New("monitor already running")
	ErrNotRunning         = errors.New("monitor not running")

	// ErrLockTimeout means the monitor lock could not be acquired in time.
	// Callers should retry; it does not indicate corrupted state.
	ErrLockTimeout = errors.New("monitor lock timeout")

	ErrInvalidConfig = errors.New("invalid monitor config")
)

// ConfigError describes one invalid configuration field
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
