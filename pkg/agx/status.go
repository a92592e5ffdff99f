// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package agx

import (
	"fmt"
	"time"
)

// ConnectionStatus is the monitor's connection state
type ConnectionStatus int

const (
	StatusUninitialized ConnectionStatus = iota
	StatusInitialized
	StatusConnecting
	StatusConnected
	StatusDisconnected
	StatusReconnecting
	StatusError
)

var statusNames = map[ConnectionStatus]string{
	StatusUninitialized: "Uninitialized",
	StatusInitialized:   "Initialized",
	StatusConnecting:    "Connecting",
	StatusConnected:     "Connected",
	StatusDisconnected:  "Disconnected",
	StatusReconnecting:  "Reconnecting",
	StatusError:         "Error",
}

func (s ConnectionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// EventType identifies a callback notification
type EventType int

const (
	// EventMonitoringStarted fires from Start, before any socket exists
	EventMonitoringStarted EventType = iota
	EventConnected
	EventDisconnected
	EventDataReceived
	EventError
	EventReconnecting
)

var eventNames = map[EventType]string{
	EventMonitoringStarted: "MonitoringStarted",
	EventConnected:         "Connected",
	EventDisconnected:      "Disconnected",
	EventDataReceived:      "DataReceived",
	EventError:             "Error",
	EventReconnecting:      "Reconnecting",
}

func (e EventType) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(e))
}

// Event is delivered to the registered callback
type Event struct {
	Type EventType
	At   time.Time
	Err  error // set for EventError and forced disconnects
}

// Callback receives monitor events. It runs on the goroutine that detected
// the event and must not block for long.
type Callback func(Event)
