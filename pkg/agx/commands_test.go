// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package agx

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type fakeRegistrar struct {
	handlers map[string]func(io.Writer, []string) error
}

func (r *fakeRegistrar) Register(name, usage string, handler func(w io.Writer, args []string) error) {
	if r.handlers == nil {
		r.handlers = map[string]func(io.Writer, []string) error{}
	}
	r.handlers[name] = handler
}

func (r *fakeRegistrar) run(t *testing.T, line string) (string, error) {
	t.Helper()
	fields := strings.Fields(line)
	handler, ok := r.handlers[fields[0]]
	if !ok {
		t.Fatalf("Command %q not registered", fields[0])
	}
	var buf bytes.Buffer
	err := handler(&buf, fields[1:])
	return buf.String(), err
}

func newCommandHarness(t *testing.T) (*harness, *fakeRegistrar, *slog.LevelVar) {
	h := newHarness(t)
	r := &fakeRegistrar{}
	level := &slog.LevelVar{}
	RegisterCommands(r, h.m, level)
	return h, r, level
}

func TestCommands_Registered(t *testing.T) {
	_, r, _ := newCommandHarness(t)
	for _, name := range []string{"status", "start", "stop", "data", "config", "stats", "debug"} {
		if _, ok := r.handlers[name]; !ok {
			t.Errorf("Command %s not registered", name)
		}
	}
}

func TestCommands_StatusUninitialized(t *testing.T) {
	_, r, _ := newCommandHarness(t)
	out, err := r.run(t, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "Initialized: no") {
		t.Errorf("Unexpected output:\n%s", out)
	}
}

func TestCommands_StatusAndData(t *testing.T) {
	h, r, _ := newCommandHarness(t)

	h.startConnected(t)
	out, _ := r.run(t, "data")
	if !strings.Contains(out, "No valid data") {
		t.Errorf("Expected no valid data, got:\n%s", out)
	}

	h.ft.data(telemetryFrame(12))
	out, err := r.run(t, "data")
	if err != nil {
		t.Fatalf("data failed: %v", err)
	}
	if !strings.Contains(out, "GPU: GR3D 12%") {
		t.Errorf("Snapshot not printed:\n%s", out)
	}

	out, err = r.run(t, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"Running:     yes", "Connection:  Connected", "Messages:    1", "Last message: 0s ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestCommands_StartStop(t *testing.T) {
	h, r, _ := newCommandHarness(t)
	if err := h.m.Init(testConfig()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	out, err := r.run(t, "start")
	if err != nil || !strings.Contains(out, "started") {
		t.Errorf("start: %q %v", out, err)
	}
	out, err = r.run(t, "start")
	if err != nil || !strings.Contains(out, "already running") {
		t.Errorf("second start: %q %v", out, err)
	}
	out, err = r.run(t, "stop")
	if err != nil || !strings.Contains(out, "stopped") {
		t.Errorf("stop: %q %v", out, err)
	}
}

func TestCommands_Config(t *testing.T) {
	h, r, _ := newCommandHarness(t)
	cfg := testConfig()
	cfg.Password = "hunter2"
	if err := h.m.Init(cfg); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	out, err := r.run(t, "config")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	for _, want := range []string{"server_host: 10.10.99.99", "server_port: 58090", "reconnect_interval:", "URL: ws://10.10.99.99:58090"} {
		if !strings.Contains(out, want) {
			t.Errorf("config output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hunter2") {
		t.Error("config output must not include the password")
	}
}

func TestCommands_Stats(t *testing.T) {
	h, r, _ := newCommandHarness(t)
	h.startConnected(t)
	out, err := r.run(t, "stats")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if !strings.Contains(out, "messages/sec") || !strings.Contains(out, "reconnects/min") {
		t.Errorf("Unexpected stats output:\n%s", out)
	}
}

func TestCommands_Debug(t *testing.T) {
	h, r, level := newCommandHarness(t)

	tests := []struct {
		mode string
		want slog.Level
	}{
		{"verbose", slog.LevelDebug},
		{"quiet", slog.LevelWarn},
		{"normal", slog.LevelInfo},
	}
	for _, tt := range tests {
		if _, err := r.run(t, "debug "+tt.mode); err != nil {
			t.Fatalf("debug %s failed: %v", tt.mode, err)
		}
		if level.Level() != tt.want {
			t.Errorf("debug %s: level = %v, want %v", tt.mode, level.Level(), tt.want)
		}
	}

	if _, err := r.run(t, "debug loud"); err == nil {
		t.Error("Unknown mode should fail")
	}
	if _, err := r.run(t, "debug"); err == nil {
		t.Error("Missing mode should fail")
	}

	h.startConnected(t)
	if _, err := r.run(t, "debug reconnect"); err != nil {
		t.Fatalf("debug reconnect failed: %v", err)
	}
	h.expectStatus(t, StatusDisconnected)
}
