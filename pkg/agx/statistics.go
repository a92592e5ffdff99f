// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package agx

import (
	"fmt"
	"time"
)

// Statistics tracks connection and message counters. Counters survive
// Stop/Start and are reset only by Deinit.
type Statistics struct {
	StartTime       time.Time
	LastMessageTime time.Time

	// Counters
	TotalReconnects   uint32 // reconnect attempts since the last successful connect
	ReconnectAttempts uint64 // lifetime reconnect attempts
	MessagesReceived  uint64
	ParseErrors       uint64
	ForcedDisconnects uint64

	ConnectedDuration time.Duration
	SessionID         string // identifier of the latest connect attempt

	// Rates (calculated)
	Uptime        time.Duration
	Reliability   float64 // percent of uptime spent connected
	MessageRate   float64 // messages/sec
	ReconnectRate float64 // reconnects/min
}

// CalculateRates fills the derived fields relative to now
func (s *Statistics) CalculateRates(now time.Time) {
	if s.StartTime.IsZero() {
		return
	}
	s.Uptime = now.Sub(s.StartTime)
	if s.Uptime <= 0 {
		s.Uptime = 0
		return
	}
	s.Reliability = float64(s.ConnectedDuration) / float64(s.Uptime) * 100.0
	if s.Reliability > 100.0 {
		s.Reliability = 100.0
	}
	s.MessageRate = float64(s.MessagesReceived) / s.Uptime.Seconds()
	s.ReconnectRate = float64(s.ReconnectAttempts) / s.Uptime.Minutes()
}

// SinceLastMessage returns the time since the last telemetry message, or
// false if none has arrived
func (s *Statistics) SinceLastMessage(now time.Time) (time.Duration, bool) {
	if s.LastMessageTime.IsZero() {
		return 0, false
	}
	return now.Sub(s.LastMessageTime), true
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	return fmt.Sprintf(
		"Uptime: %s | Connected: %s (%.1f%%) | Messages: %d (%.2f/s) | Parse errors: %d | Reconnects: %d (%.2f/min) | Forced: %d",
		s.Uptime.Truncate(time.Second),
		s.ConnectedDuration.Truncate(time.Second),
		s.Reliability,
		s.MessagesReceived,
		s.MessageRate,
		s.ParseErrors,
		s.ReconnectAttempts,
		s.ReconnectRate,
		s.ForcedDisconnects,
	)
}
