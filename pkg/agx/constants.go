// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package agx keeps a Socket.IO connection to an AGX compute module alive,
// parses the tegrastats telemetry it streams and exposes the latest reading
// through a lock-guarded Monitor.
package agx

import "time"

// Worker loop cadence
const (
	TickInterval     = 5 * time.Second
	StartupDelayStep = 1 * time.Second

	StatsLogEveryTicks = 12 // ~60s at 5s ticks
	WatchdogEveryTicks = 6  // ~30s at 5s ticks
)

// Idle watchdog thresholds. A socket that stays silent past IdleForceAfter
// is assumed half-open and is torn down.
const (
	IdleWarnAfter        = 30 * time.Second
	IdleForceAfter       = 45 * time.Second
	ForcedReconnectPause = 3 * time.Second
)

// FreshnessWindow is how long a valid snapshot is reported as usable
const FreshnessWindow = 30 * time.Second

// DefaultLockTimeout bounds every wait on the monitor lock
const DefaultLockTimeout = 200 * time.Millisecond

// MaxLastErrorLen caps the stored last error message
const MaxLastErrorLen = 128

// Worker sizing limits
const (
	MinTaskStackSize = 2048
	MaxTaskStackSize = 65536
	MinTaskPriority  = 1
	MaxTaskPriority  = 24
)

// Error messages recorded in LastError
const (
	msgAbnormalData     = "Abnormal data received"
	msgSuspiciousBinary = "Suspicious binary data received"
	msgDataTimeout      = "Data reception timeout"
	msgManualReconnect  = "Manual reconnect requested"
)
