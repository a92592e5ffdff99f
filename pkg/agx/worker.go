// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package agx

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// run is the worker loop. It owns connect attempts, the reconnect policy
// and the idle watchdog. It exits when ctx is cancelled by Stop.
func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	start := m.clock.Now()
	attempted := false
	tick := 0

	m.logger.Debug("worker started",
		"startup_delay", m.cfg.StartupDelay, "fast_retry_count", m.cfg.FastRetryCount)

	for ctx.Err() == nil {
		// The AGX takes a while to boot; connecting early only burns the
		// fast retry budget
		if m.cfg.StartupDelay > 0 && m.clock.Now().Sub(start) < m.cfg.StartupDelay {
			if m.clock.Sleep(ctx, StartupDelayStep) != nil {
				break
			}
			continue
		}

		wait := TickInterval
		if status, ok := m.currentStatus(); ok {
			if !attempted || status == StatusDisconnected || status == StatusError {
				if !m.attemptConnect(ctx, attempted) {
					wait = m.retryDelay()
				}
				attempted = true
			}
		}

		tick++
		if tick%StatsLogEveryTicks == 0 {
			m.logStatistics()
		}
		if tick%WatchdogEveryTicks == 0 {
			m.checkIdle(ctx)
		}

		if m.clock.Sleep(ctx, wait) != nil {
			break
		}
	}

	if m.transport.IsConnected() {
		m.logger.Debug("closing connection")
		if err := m.transport.Close(); err != nil {
			m.logger.Warn("failed to close connection", "error", err)
		}
	}
	m.logger.Debug("worker exited")
}

func (m *Monitor) currentStatus() (ConnectionStatus, bool) {
	if !m.lock() {
		m.logger.Warn("lock timeout reading status, skipping tick")
		return StatusUninitialized, false
	}
	defer m.unlock()
	return m.status, true
}

// attemptConnect opens the transport. Any attempt after the first counts
// as a reconnect. Returns false if the open call failed.
func (m *Monitor) attemptConnect(ctx context.Context, reconnect bool) bool {
	sessionID := uuid.NewString()

	if !m.lock() {
		m.logger.Warn("lock timeout before connect attempt")
		return false
	}
	if reconnect {
		m.stats.TotalReconnects++
		m.stats.ReconnectAttempts++
	}
	attempt := m.stats.TotalReconnects
	m.stats.SessionID = sessionID
	m.apply(trigConnectAttempt)
	cb := m.callback
	m.unlock()

	if reconnect {
		m.fire(cb, EventReconnecting, nil)
	}

	url := m.cfg.URL()
	m.logger.Info("connecting", "url", url, "session", sessionID, "attempt", attempt)

	err := m.transport.Connect(ctx, url)
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return false
	}

	m.logger.Warn("connect failed", "url", url, "session", sessionID, "error", err)
	if !m.lock() {
		m.logger.Warn("lock timeout recording connect failure")
		return false
	}
	m.apply(trigConnectFailed)
	m.recordError("Connection failed: " + err.Error())
	m.unlock()
	return false
}

// retryDelay picks the wait after a failed attempt: the fast interval
// while the fast retry budget lasts, the regular interval afterwards
func (m *Monitor) retryDelay() (wait time.Duration) {
	wait = m.cfg.ReconnectInterval
	if !m.lock() {
		return wait
	}
	defer m.unlock()
	if int(m.stats.TotalReconnects) < m.cfg.FastRetryCount {
		wait = m.cfg.FastRetryInterval
	}
	return wait
}

func (m *Monitor) logStatistics() {
	stats, err := m.Statistics()
	if err != nil {
		m.logger.Debug("skipping statistics log", "error", err)
		return
	}
	status, _ := m.currentStatus()
	m.logger.Info("statistics",
		"status", status,
		"messages", stats.MessagesReceived,
		"parse_errors", stats.ParseErrors,
		"reconnects", stats.ReconnectAttempts,
		"forced_disconnects", stats.ForcedDisconnects,
		"reliability_pct", stats.Reliability,
		"session", stats.SessionID,
	)
}

type idleAction int

const (
	idleOK idleAction = iota
	idleWarn
	idleForce
)

func classifyIdle(idle time.Duration) idleAction {
	switch {
	case idle > IdleForceAfter:
		return idleForce
	case idle >= IdleWarnAfter:
		return idleWarn
	}
	return idleOK
}

// checkIdle is the data watchdog. Silence on a connected socket counts
// from the later of the last message and the connect time.
func (m *Monitor) checkIdle(ctx context.Context) {
	if !m.lock() {
		m.logger.Warn("lock timeout in idle watchdog")
		return
	}
	if m.status != StatusConnected {
		m.unlock()
		return
	}
	ref := m.connectedSince
	if m.stats.LastMessageTime.After(ref) {
		ref = m.stats.LastMessageTime
	}
	idle := m.clock.Now().Sub(ref)
	m.unlock()

	switch classifyIdle(idle) {
	case idleForce:
		m.logger.Warn("no telemetry received, forcing reconnect", "idle", idle)
		if !m.forceDisconnect(msgDataTimeout) {
			return
		}
		if m.clock.Sleep(ctx, ForcedReconnectPause) != nil {
			return
		}
		m.attemptConnect(ctx, true)
	case idleWarn:
		m.logger.Warn("telemetry is late", "idle", idle)
	default:
		m.logger.Debug("telemetry flowing", "idle", idle)
	}
}

// forceDisconnect marks the connection down, records reason and drops the
// transport. Safe to call from the transport handler.
func (m *Monitor) forceDisconnect(reason string) bool {
	if !m.lock() {
		m.logger.Warn("lock timeout forcing disconnect", "reason", reason)
		return false
	}
	if !m.apply(trigForcedDisconnect) {
		m.unlock()
		return false
	}
	m.latest.Valid = false
	m.stats.ForcedDisconnects++
	m.recordError(reason)
	transport := m.transport
	cb := m.callback
	m.unlock()

	if transport != nil {
		if err := transport.Stop(); err != nil {
			m.logger.Warn("failed to stop transport", "error", err)
		}
	}
	m.logger.Warn("connection dropped", "reason", reason)
	m.fire(cb, EventDisconnected, errors.New(reason))
	return true
}
