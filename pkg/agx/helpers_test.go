// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package agx

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// ============================================================
// Fake Clock
// ============================================================

// fakeClock hands every worker sleep to the test. The worker blocks until
// the test calls release, which advances time by the slept duration.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending time.Duration
	sleeps  chan time.Duration
	wake    chan struct{}
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		sleeps: make(chan time.Duration),
		wake:   make(chan struct{}),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case c.sleeps <- d:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nextSleep waits for the worker to block in Sleep and returns the duration
func (c *fakeClock) nextSleep(t *testing.T) time.Duration {
	t.Helper()
	select {
	case d := <-c.sleeps:
		c.mu.Lock()
		c.pending = d
		c.mu.Unlock()
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("Worker did not reach its next sleep")
		return 0
	}
}

// release advances time by the pending sleep and wakes the worker
func (c *fakeClock) release() {
	c.mu.Lock()
	c.now = c.now.Add(c.pending)
	c.pending = 0
	c.mu.Unlock()
	c.wake <- struct{}{}
}

// ============================================================
// Fake Transport
// ============================================================

type fakeTransport struct {
	mu         sync.Mutex
	handler    TransportHandler
	opts       TransportOptions
	connectErr error
	connected  bool
	connects   int
	urls       []string
	sent       []string
	stops      int
	closes     int
	destroyed  bool
}

func (f *fakeTransport) factory(opts TransportOptions, handler TransportHandler) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = opts
	f.handler = handler
	f.destroyed = false
	return f, nil
}

func (f *fakeTransport) Connect(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.urls = append(f.urls, url)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) SendText(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, string(data))
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Close behaves like a real transport and reports the disconnect
func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.connected = false
	h := f.handler
	f.mu.Unlock()
	h(TransportEvent{Kind: TransportDisconnected})
	return nil
}

func (f *fakeTransport) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.connected = false
	return nil
}

func (f *fakeTransport) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
	return nil
}

// emit delivers an event as the transport goroutine would
func (f *fakeTransport) emit(ev TransportEvent) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(ev)
}

func (f *fakeTransport) data(frame []byte) {
	f.emit(TransportEvent{Kind: TransportData, Data: frame})
}

func (f *fakeTransport) counts() (connects, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.stops
}

func (f *fakeTransport) sentFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// ============================================================
// Event Recorder
// ============================================================

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]EventType, len(l.events))
	for i, e := range l.events {
		types[i] = e.Type
	}
	return types
}

func (l *eventLog) count(t EventType) int {
	n := 0
	for _, et := range l.types() {
		if et == t {
			n++
		}
	}
	return n
}

// ============================================================
// Monitor Setup
// ============================================================

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StartupDelay = 0
	cfg.AutoStart = false
	cfg.FastRetryCount = 3
	cfg.FastRetryInterval = 1 * time.Second
	cfg.ReconnectInterval = 3 * time.Second
	return cfg
}

type harness struct {
	m      *Monitor
	ft     *fakeTransport
	clk    *fakeClock
	events *eventLog
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		ft:     &fakeTransport{},
		clk:    newFakeClock(),
		events: &eventLog{},
	}
	opts = append([]Option{WithClock(h.clk)}, opts...)
	h.m = NewMonitor(h.ft.factory, opts...)
	if err := h.m.RegisterCallback(h.events.record); err != nil {
		t.Fatalf("RegisterCallback failed: %v", err)
	}
	t.Cleanup(func() {
		_ = h.m.Deinit()
	})
	return h
}

// startConnected initializes, starts, and reports the transport connected
// while the worker sits in its first tick sleep
func (h *harness) startConnected(t *testing.T) {
	t.Helper()
	if err := h.m.Init(testConfig()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := h.m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if d := h.clk.nextSleep(t); d != TickInterval {
		t.Fatalf("First sleep = %v, want %v", d, TickInterval)
	}
	h.ft.emit(TransportEvent{Kind: TransportConnected})
	h.expectStatus(t, StatusConnected)
}

func (h *harness) expectStatus(t *testing.T, want ConnectionStatus) {
	t.Helper()
	got, err := h.m.Status()
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if got != want {
		t.Fatalf("Status = %s, want %s", got, want)
	}
}

func (h *harness) stats(t *testing.T) Statistics {
	t.Helper()
	s, err := h.m.Statistics()
	if err != nil {
		t.Fatalf("Statistics error: %v", err)
	}
	return s
}

// telemetryFrame builds an event whose fields all carry k
func telemetryFrame(k int) []byte {
	return []byte(fmt.Sprintf(
		`42["tegrastats_update",{"timestamp":"t%d","cpu":{"cores":[{"id":0,"usage":%d,"freq":1000}]},"memory":{"ram":{"used":%d,"total":1000,"unit":"MB"}},"gpu":{"gr3d_freq":%d}}]`,
		k, k, k, k))
}
