// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package agx

// trigger drives a status transition. Both the worker loop and the
// transport handler go through the same table.
type trigger int

const (
	trigInit trigger = iota
	trigDeinit
	trigStart
	trigStop
	trigConnectAttempt
	trigConnectFailed
	trigTransportConnected
	trigTransportDisconnected
	trigTransportError
	trigForcedDisconnect
)

var triggerNames = map[trigger]string{
	trigInit:                  "init",
	trigDeinit:                "deinit",
	trigStart:                 "start",
	trigStop:                  "stop",
	trigConnectAttempt:        "connect_attempt",
	trigConnectFailed:         "connect_failed",
	trigTransportConnected:    "transport_connected",
	trigTransportDisconnected: "transport_disconnected",
	trigTransportError:        "transport_error",
	trigForcedDisconnect:      "forced_disconnect",
}

func (t trigger) String() string {
	return triggerNames[t]
}

type edge struct {
	from ConnectionStatus
	on   trigger
}

// transitions lists every allowed move. Anything missing is dropped, which
// is how callbacks from a connection the monitor already gave up on (after
// Stop or a forced disconnect) are absorbed.
var transitions = map[edge]ConnectionStatus{
	{StatusUninitialized, trigInit}: StatusInitialized,

	{StatusInitialized, trigStart}: StatusConnecting,

	{StatusConnecting, trigStop}:   StatusInitialized,
	{StatusConnected, trigStop}:    StatusInitialized,
	{StatusDisconnected, trigStop}: StatusInitialized,
	{StatusError, trigStop}:        StatusInitialized,

	{StatusConnecting, trigConnectAttempt}:   StatusConnecting,
	{StatusDisconnected, trigConnectAttempt}: StatusConnecting,
	{StatusError, trigConnectAttempt}:        StatusConnecting,

	{StatusConnecting, trigConnectFailed}: StatusError,

	// The worker may have given up on a connection moments before the
	// transport reports it up; the later event wins.
	{StatusConnecting, trigTransportConnected}:   StatusConnected,
	{StatusDisconnected, trigTransportConnected}: StatusConnected,
	{StatusError, trigTransportConnected}:        StatusConnected,

	{StatusConnecting, trigTransportDisconnected}: StatusDisconnected,
	{StatusConnected, trigTransportDisconnected}:  StatusDisconnected,
	{StatusError, trigTransportDisconnected}:      StatusDisconnected,

	{StatusConnecting, trigTransportError}:   StatusError,
	{StatusConnected, trigTransportError}:    StatusError,
	{StatusDisconnected, trigTransportError}: StatusError,

	{StatusConnecting, trigForcedDisconnect}: StatusDisconnected,
	{StatusConnected, trigForcedDisconnect}:  StatusDisconnected,
	{StatusError, trigForcedDisconnect}:      StatusDisconnected,
}

// next returns the status reached from s on t, and false if t is not
// allowed from s. Deinit is allowed from everywhere.
func next(s ConnectionStatus, t trigger) (ConnectionStatus, bool) {
	if t == trigDeinit {
		return StatusUninitialized, true
	}
	to, ok := transitions[edge{s, t}]
	return to, ok
}
