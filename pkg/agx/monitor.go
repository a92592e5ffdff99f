// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package agx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Thermoquad/agxmon/pkg/socketio"
	"github.com/Thermoquad/agxmon/pkg/tegrastats"
)

// FrameObserver sees every raw frame before it is classified
type FrameObserver func(at time.Time, frame []byte)

// Monitor owns one AGX connection and its latest telemetry snapshot
type Monitor struct {
	factory     TransportFactory
	clock       Clock
	logger      *slog.Logger
	thermal     tegrastats.ThermalReporter
	observer    FrameObserver
	lockTimeout time.Duration

	// lifecycle serializes Init, Start, Stop and Deinit
	lifecycle sync.Mutex

	// sem guards everything below
	sem            *semaphore.Weighted
	initialized    bool
	running        bool
	cfg            Config
	status         ConnectionStatus
	latest         tegrastats.Snapshot
	stats          Statistics
	lastError      string
	connectedSince time.Time
	callback       Callback

	// Set during Init, cleared in Deinit after the transport is destroyed
	transport Transport
	parser    *tegrastats.Parser
	codec     *socketio.Codec

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Monitor
type Option func(*Monitor)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithThermalReporter forwards every parsed AGX CPU temperature to r
func WithThermalReporter(r tegrastats.ThermalReporter) Option {
	return func(m *Monitor) { m.thermal = r }
}

// WithFrameObserver taps every inbound frame, e.g. for recording
func WithFrameObserver(o FrameObserver) Option {
	return func(m *Monitor) { m.observer = o }
}

func WithLockTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.lockTimeout = d }
}

// NewMonitor creates an uninitialized monitor
func NewMonitor(factory TransportFactory, opts ...Option) *Monitor {
	m := &Monitor{
		factory:     factory,
		clock:       realClock{},
		lockTimeout: DefaultLockTimeout,
		sem:         semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m.logger = m.logger.With("component", "agx")
	return m
}

//////////////////////////////////////////////////////////////
// Locking
//////////////////////////////////////////////////////////////

func (m *Monitor) lock() bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.lockTimeout)
	defer cancel()
	return m.sem.Acquire(ctx, 1) == nil
}

func (m *Monitor) unlock() {
	m.sem.Release(1)
}

// apply moves the status along the transition table. Caller holds the lock.
func (m *Monitor) apply(t trigger) bool {
	to, ok := next(m.status, t)
	if !ok {
		m.logger.Debug("ignoring trigger", "status", m.status, "trigger", t)
		return false
	}
	now := m.clock.Now()
	if m.status == StatusConnected && to != StatusConnected {
		m.stats.ConnectedDuration += now.Sub(m.connectedSince)
	}
	if to == StatusConnected && m.status != StatusConnected {
		m.connectedSince = now
	}
	if to != m.status {
		m.logger.Debug("status changed", "from", m.status, "to", to, "trigger", t)
	}
	m.status = to
	return true
}

// recordError stores msg as the last error. Caller holds the lock.
func (m *Monitor) recordError(msg string) {
	if len(msg) > MaxLastErrorLen {
		msg = msg[:MaxLastErrorLen]
	}
	m.lastError = msg
}

func (m *Monitor) fire(cb Callback, t EventType, err error) {
	if cb == nil {
		return
	}
	cb(Event{Type: t, At: m.clock.Now(), Err: err})
}

//////////////////////////////////////////////////////////////
// Lifecycle
//////////////////////////////////////////////////////////////

// Init validates cfg, creates the transport and, if cfg.AutoStart is set,
// starts monitoring. An invalid config leaves the monitor untouched.
func (m *Monitor) Init(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if !m.lock() {
		return ErrLockTimeout
	}
	initialized := m.initialized
	m.unlock()
	if initialized {
		return ErrAlreadyInitialized
	}

	transport, err := m.factory(TransportOptions{
		HandshakeTimeout:   cfg.HeartbeatTimeout,
		WriteTimeout:       cfg.HeartbeatTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Username:           cfg.Username,
		Password:           cfg.Password,
	}, m.handleTransportEvent)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	parser := tegrastats.NewParser(m.thermal, m.logger)

	if !m.lock() {
		_ = transport.Destroy()
		return ErrLockTimeout
	}
	m.cfg = cfg
	m.transport = transport
	m.parser = parser
	m.codec = socketio.NewCodec(cfg.MaxFrameSize)
	m.latest = tegrastats.Snapshot{}
	m.stats = Statistics{StartTime: m.clock.Now()}
	m.lastError = ""
	m.apply(trigInit)
	m.initialized = true
	m.unlock()

	m.logger.Info("monitor initialized", "url", cfg.URL(), "auto_start", cfg.AutoStart)

	if cfg.AutoStart {
		return m.startLocked()
	}
	return nil
}

// Start launches the worker loop. Returns ErrAlreadyRunning if it is
// already running.
func (m *Monitor) Start() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.startLocked()
}

func (m *Monitor) startLocked() error {
	if !m.lock() {
		return ErrLockTimeout
	}
	if !m.initialized {
		m.unlock()
		return ErrNotInitialized
	}
	if m.running {
		m.unlock()
		return ErrAlreadyRunning
	}
	m.apply(trigStart)
	m.running = true
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	cb := m.callback
	m.unlock()

	go m.run(ctx, m.done)

	m.logger.Info("monitoring started")
	m.fire(cb, EventMonitoringStarted, nil)
	return nil
}

// Stop ends the worker loop and closes the connection. Stopping a monitor
// that is not running does nothing.
func (m *Monitor) Stop() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.stopLocked()
}

func (m *Monitor) stopLocked() error {
	if !m.lock() {
		return ErrLockTimeout
	}
	if !m.running {
		m.unlock()
		return nil
	}
	m.apply(trigStop)
	m.running = false
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	cb := m.callback
	m.unlock()

	cancel()
	<-done

	m.logger.Info("monitoring stopped")
	m.fire(cb, EventDisconnected, nil)
	return nil
}

// Deinit stops the monitor, destroys the transport and resets all state
func (m *Monitor) Deinit() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if err := m.stopLocked(); err != nil {
		return err
	}

	if !m.lock() {
		return ErrLockTimeout
	}
	if !m.initialized {
		m.unlock()
		return nil
	}
	transport := m.transport
	m.unlock()

	if err := transport.Destroy(); err != nil {
		m.logger.Warn("failed to destroy transport", "error", err)
	}

	if !m.lock() {
		return ErrLockTimeout
	}
	m.apply(trigDeinit)
	m.initialized = false
	m.transport = nil
	m.parser = nil
	m.codec = nil
	m.cfg = Config{}
	m.latest = tegrastats.Snapshot{}
	m.stats = Statistics{}
	m.lastError = ""
	m.connectedSince = time.Time{}
	m.unlock()

	m.logger.Info("monitor deinitialized")
	return nil
}

// ForceReconnect drops the current connection. The worker reconnects on
// its next tick.
func (m *Monitor) ForceReconnect() error {
	if !m.lock() {
		return ErrLockTimeout
	}
	running := m.running
	m.unlock()
	if !running {
		return ErrNotRunning
	}
	m.forceDisconnect(msgManualReconnect)
	return nil
}

//////////////////////////////////////////////////////////////
// Accessors
//////////////////////////////////////////////////////////////

// Status returns the connection status
func (m *Monitor) Status() (ConnectionStatus, error) {
	if !m.lock() {
		return StatusUninitialized, ErrLockTimeout
	}
	defer m.unlock()
	if !m.initialized {
		return StatusUninitialized, ErrNotInitialized
	}
	return m.status, nil
}

// LatestData returns a copy of the current snapshot
func (m *Monitor) LatestData() (tegrastats.Snapshot, error) {
	if !m.lock() {
		return tegrastats.Snapshot{}, ErrLockTimeout
	}
	defer m.unlock()
	if !m.initialized {
		return tegrastats.Snapshot{}, ErrNotInitialized
	}
	return m.latest, nil
}

// IsDataValid reports whether the current snapshot parsed cleanly and was
// captured within FreshnessWindow
func (m *Monitor) IsDataValid() bool {
	if !m.lock() {
		return false
	}
	defer m.unlock()
	if !m.initialized || !m.latest.Valid {
		return false
	}
	return m.latest.Age(m.clock.Now()) <= FreshnessWindow
}

// LastUpdateTime returns when the current snapshot was captured
func (m *Monitor) LastUpdateTime() (time.Time, error) {
	if !m.lock() {
		return time.Time{}, ErrLockTimeout
	}
	defer m.unlock()
	if !m.initialized {
		return time.Time{}, ErrNotInitialized
	}
	return m.latest.CapturedAt, nil
}

// Statistics returns a copy of the counters with rates calculated
func (m *Monitor) Statistics() (Statistics, error) {
	if !m.lock() {
		return Statistics{}, ErrLockTimeout
	}
	defer m.unlock()
	if !m.initialized {
		return Statistics{}, ErrNotInitialized
	}
	now := m.clock.Now()
	stats := m.stats
	if m.status == StatusConnected {
		stats.ConnectedDuration += now.Sub(m.connectedSince)
	}
	stats.CalculateRates(now)
	return stats, nil
}

// Config returns the config supplied to Init
func (m *Monitor) Config() (Config, error) {
	if !m.lock() {
		return Config{}, ErrLockTimeout
	}
	defer m.unlock()
	if !m.initialized {
		return Config{}, ErrNotInitialized
	}
	return m.cfg, nil
}

// LastError returns the last recorded error message, empty if none
func (m *Monitor) LastError() (string, error) {
	if !m.lock() {
		return "", ErrLockTimeout
	}
	defer m.unlock()
	if !m.initialized {
		return "", ErrNotInitialized
	}
	return m.lastError, nil
}

func (m *Monitor) IsInitialized() bool {
	if !m.lock() {
		return false
	}
	defer m.unlock()
	return m.initialized
}

func (m *Monitor) IsRunning() bool {
	if !m.lock() {
		return false
	}
	defer m.unlock()
	return m.running
}

// RegisterCallback replaces the registered callback
func (m *Monitor) RegisterCallback(cb Callback) error {
	if !m.lock() {
		return ErrLockTimeout
	}
	m.callback = cb
	m.unlock()
	return nil
}

// UnregisterCallback clears the registered callback
func (m *Monitor) UnregisterCallback() error {
	return m.RegisterCallback(nil)
}
