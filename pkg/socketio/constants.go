// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package socketio classifies Socket.IO v4 text frames received over a
// WebSocket and extracts the JSON payload of telemetry events.
package socketio

import "fmt"

// Frame limits
const (
	DefaultMaxFrameSize = 1024

	// Frames at or below this length are checked for stray control bytes
	AbnormalMaxLen = 2

	// Unrecognized frames shorter than this that start with a control
	// byte are treated as binary garbage
	SuspiciousMaxLen = 10
)

// TelemetryEvent is the event name carrying tegrastats documents
const TelemetryEvent = "tegrastats_update"

// Outbound frames
const (
	NamespaceConnect = "40"
	Pong             = "3"
)

// Inbound prefixes
const (
	prefixEvent      = "42"
	prefixConnectAck = "40"
	prefixOpen       = '0'
)

// Inbound heartbeat frames, matched whole
const (
	framePing       = "3"
	frameEnginePing = "2"
)

// Kind is the classification of one inbound frame
type Kind int

const (
	KindEmpty Kind = iota
	KindOversize
	KindOpen
	KindConnectAck
	KindPing
	KindEnginePing
	KindEvent
	KindOtherEvent
	KindMalformedEvent
	KindAbnormal
	KindSuspiciousBinary
	KindUnknown
)

var kindNames = map[Kind]string{
	KindEmpty:            "EMPTY",
	KindOversize:         "OVERSIZE",
	KindOpen:             "OPEN",
	KindConnectAck:       "CONNECT_ACK",
	KindPing:             "PING",
	KindEnginePing:       "ENGINE_PING",
	KindEvent:            "EVENT",
	KindOtherEvent:       "OTHER_EVENT",
	KindMalformedEvent:   "MALFORMED_EVENT",
	KindAbnormal:         "ABNORMAL",
	KindSuspiciousBinary: "SUSPICIOUS_BINARY",
	KindUnknown:          "UNKNOWN",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_KIND_%d", int(k))
}

// IntegrityViolation reports whether frames of this kind mean the
// connection itself can no longer be trusted
func (k Kind) IntegrityViolation() bool {
	return k == KindAbnormal || k == KindSuspiciousBinary
}
