// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package agx

import (
	"errors"

	"github.com/Thermoquad/agxmon/pkg/socketio"
	"github.com/Thermoquad/agxmon/pkg/tegrastats"
)

// handleTransportEvent is the TransportHandler given to the factory. It
// runs on the transport's goroutine.
func (m *Monitor) handleTransportEvent(ev TransportEvent) {
	switch ev.Kind {
	case TransportBeforeConnect:
		m.logger.Debug("transport about to connect")
	case TransportConnected:
		m.onConnected()
	case TransportDisconnected:
		m.onDisconnected()
	case TransportData:
		m.onData(ev.Data)
	case TransportError:
		m.onError(ev.Err)
	default:
		m.logger.Debug("unknown transport event", "kind", ev.Kind)
	}
}

func (m *Monitor) onConnected() {
	if !m.lock() {
		m.logger.Warn("lock timeout handling connect, update skipped")
		return
	}
	if !m.apply(trigTransportConnected) {
		m.unlock()
		return
	}
	m.stats.TotalReconnects = 0
	session := m.stats.SessionID
	cb := m.callback
	m.unlock()

	m.logger.Info("connected", "session", session)
	m.fire(cb, EventConnected, nil)

	if err := m.transport.SendText([]byte(socketio.NamespaceConnect)); err != nil {
		m.logger.Warn("failed to send namespace connect", "error", err)
	}
}

func (m *Monitor) onDisconnected() {
	if !m.lock() {
		m.logger.Warn("lock timeout handling disconnect, update skipped")
		return
	}
	if !m.apply(trigTransportDisconnected) {
		m.unlock()
		return
	}
	m.latest.Valid = false
	cb := m.callback
	m.unlock()

	m.logger.Info("disconnected")
	m.fire(cb, EventDisconnected, nil)
}

func (m *Monitor) onError(err error) {
	if err == nil {
		err = errors.New("transport error")
	}
	if !m.lock() {
		m.logger.Warn("lock timeout handling transport error, update skipped", "error", err)
		return
	}
	if !m.apply(trigTransportError) {
		m.unlock()
		return
	}
	m.recordError(err.Error())
	cb := m.callback
	m.unlock()

	m.logger.Warn("transport error", "error", err)
	m.fire(cb, EventError, err)
}

func (m *Monitor) onData(data []byte) {
	now := m.clock.Now()
	if m.observer != nil {
		m.observer(now, data)
	}

	f := m.codec.Classify(data)
	switch f.Kind {
	case socketio.KindEmpty:
		return
	case socketio.KindOversize:
		m.logger.Warn("rejecting oversized frame", "len", f.Len, "reason", f.Reason)
	case socketio.KindOpen:
		m.logger.Debug("engine handshake received")
	case socketio.KindConnectAck:
		m.logger.Debug("namespace connect acknowledged")
	case socketio.KindEnginePing:
		m.logger.Debug("engine ping received")
	case socketio.KindPing:
		if err := m.transport.SendText([]byte(socketio.Pong)); err != nil {
			m.logger.Warn("failed to send pong", "error", err)
		}
	case socketio.KindOtherEvent:
		m.logger.Debug("ignoring event", "event", f.Event)
	case socketio.KindMalformedEvent:
		m.logger.Warn("malformed event frame", "reason", f.Reason, "len", f.Len)
	case socketio.KindAbnormal:
		m.logger.Warn("abnormal frame", "bytes", data)
		m.forceDisconnect(msgAbnormalData)
	case socketio.KindSuspiciousBinary:
		m.logger.Warn("suspicious binary frame", "bytes", data)
		m.forceDisconnect(msgSuspiciousBinary)
	case socketio.KindEvent:
		m.onTelemetry(f.Payload)
	default:
		m.logger.Warn("unknown message type", "len", f.Len, "prefix", string(data[:min(len(data), 4)]))
	}
}

// onTelemetry parses a tegrastats document and swaps it in as the current
// snapshot. Invalid JSON keeps the previous snapshot; a document with bad
// sections replaces it but is marked invalid. Only a clean parse counts
// as activity for the idle watchdog.
func (m *Monitor) onTelemetry(payload []byte) {
	snap, err := m.parser.Parse(payload, m.clock.Now())

	invalidJSON := errors.Is(err, tegrastats.ErrInvalidJSON)
	if err != nil {
		m.logger.Warn("telemetry parse failed", "error", err)
	}

	if !m.lock() {
		m.logger.Warn("lock timeout storing telemetry, update skipped")
		return
	}
	if m.status != StatusConnected {
		m.unlock()
		m.logger.Debug("dropping telemetry received while not connected")
		return
	}
	if err != nil {
		m.stats.ParseErrors++
	}
	if !invalidJSON {
		m.latest = snap
	}
	if err == nil {
		m.stats.MessagesReceived++
		m.stats.LastMessageTime = snap.CapturedAt
	}
	cb := m.callback
	m.unlock()

	if err == nil {
		m.fire(cb, EventDataReceived, nil)
	}
}
