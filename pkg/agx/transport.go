// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package agx

import (
	"context"
	"time"
)

// TransportEventKind identifies a transport notification
type TransportEventKind int

const (
	TransportBeforeConnect TransportEventKind = iota
	TransportConnected
	TransportDisconnected
	TransportData
	TransportError
)

func (k TransportEventKind) String() string {
	switch k {
	case TransportBeforeConnect:
		return "BeforeConnect"
	case TransportConnected:
		return "Connected"
	case TransportDisconnected:
		return "Disconnected"
	case TransportData:
		return "Data"
	case TransportError:
		return "Error"
	}
	return "Unknown"
}

// TransportEvent is one asynchronous notification from a transport
type TransportEvent struct {
	Kind TransportEventKind
	Data []byte // TransportData only
	Err  error  // TransportError only
}

// TransportHandler receives transport events. For a single connection the
// transport delivers Connected, then Data, then Disconnected, all from one
// goroutine.
type TransportHandler func(TransportEvent)

// Transport is a WebSocket connection that can be reopened
type Transport interface {
	// Connect opens the connection. A nil return means the open was
	// accepted; Connected is reported through the handler.
	Connect(ctx context.Context, url string) error

	SendText(data []byte) error
	IsConnected() bool

	// Close sends a close frame and waits for the connection to end
	Close() error

	// Stop drops the connection without a close handshake. It must not wait
	// for event delivery since it may be called from the handler.
	Stop() error

	// Destroy releases the transport. No events are delivered afterwards.
	Destroy() error
}

// TransportOptions configures a transport created by a TransportFactory
type TransportOptions struct {
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	InsecureSkipVerify bool
	Username           string
	Password           string
}

// TransportFactory creates the monitor's transport during Init
type TransportFactory func(opts TransportOptions, handler TransportHandler) (Transport, error)
