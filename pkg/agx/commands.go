// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package agx

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/agxmon/pkg/tegrastats"
)

// CommandRegistrar is the console capability the monitor commands need
type CommandRegistrar interface {
	Register(name, usage string, handler func(w io.Writer, args []string) error)
}

// Commands implements the agx console commands against one monitor
type Commands struct {
	Monitor *Monitor

	// Level is adjusted by "debug verbose|quiet|normal"; may be nil
	Level *slog.LevelVar

	Now func() time.Time
}

// RegisterCommands registers status, start, stop, data, config, stats and
// debug on r
func RegisterCommands(r CommandRegistrar, m *Monitor, level *slog.LevelVar) *Commands {
	c := &Commands{Monitor: m, Level: level, Now: m.clock.Now}
	r.Register("status", "Show connection status and counters", c.Status)
	r.Register("start", "Start monitoring", c.Start)
	r.Register("stop", "Stop monitoring", c.Stop)
	r.Register("data", "Show the latest telemetry snapshot", c.Data)
	r.Register("config", "Show the monitor configuration", c.Config)
	r.Register("stats", "Show counters and rates", c.Stats)
	r.Register("debug", "debug <verbose|quiet|normal|reconnect>", c.Debug)
	return c
}

func (c *Commands) Status(w io.Writer, args []string) error {
	initialized := c.Monitor.IsInitialized()
	running := c.Monitor.IsRunning()
	fmt.Fprintf(w, "AGX Monitor Status\n")
	fmt.Fprintf(w, "  Initialized: %s\n", yesNo(initialized))
	fmt.Fprintf(w, "  Running:     %s\n", yesNo(running))
	if !initialized {
		return nil
	}

	status, err := c.Monitor.Status()
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	stats, err := c.Monitor.Statistics()
	if err != nil {
		return fmt.Errorf("failed to read statistics: %w", err)
	}
	lastErr, _ := c.Monitor.LastError()

	fmt.Fprintf(w, "  Connection:  %s\n", status)
	fmt.Fprintf(w, "  Uptime:      %s\n", stats.Uptime.Truncate(time.Second))
	fmt.Fprintf(w, "  Connected:   %s\n", stats.ConnectedDuration.Truncate(time.Second))
	fmt.Fprintf(w, "  Reliability: %.1f%%\n", stats.Reliability)
	fmt.Fprintf(w, "  Messages:    %d\n", stats.MessagesReceived)
	fmt.Fprintf(w, "  Parse errors: %d\n", stats.ParseErrors)
	fmt.Fprintf(w, "  Reconnects:  %d\n", stats.TotalReconnects)
	if since, ok := stats.SinceLastMessage(c.Now()); ok {
		fmt.Fprintf(w, "  Last message: %.0fs ago\n", since.Seconds())
	} else {
		fmt.Fprintf(w, "  Last message: never\n")
	}
	if lastErr != "" {
		fmt.Fprintf(w, "  Last error:  %s\n", lastErr)
	}
	return nil
}

func (c *Commands) Start(w io.Writer, args []string) error {
	err := c.Monitor.Start()
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		fmt.Fprintln(w, "AGX monitor is already running")
		return nil
	case err != nil:
		return fmt.Errorf("failed to start AGX monitor: %w", err)
	}
	fmt.Fprintln(w, "AGX monitor started")
	return nil
}

func (c *Commands) Stop(w io.Writer, args []string) error {
	if err := c.Monitor.Stop(); err != nil {
		return fmt.Errorf("failed to stop AGX monitor: %w", err)
	}
	fmt.Fprintln(w, "AGX monitor stopped")
	return nil
}

func (c *Commands) Data(w io.Writer, args []string) error {
	snap, err := c.Monitor.LatestData()
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}
	if !snap.Valid {
		fmt.Fprintln(w, "No valid data")
		return nil
	}
	if !c.Monitor.IsDataValid() {
		fmt.Fprintf(w, "Warning: data is stale (%.0fs old)\n", snap.Age(c.Now()).Seconds())
	}
	fmt.Fprint(w, tegrastats.FormatSnapshot(&snap))
	return nil
}

func (c *Commands) Config(w io.Writer, args []string) error {
	cfg, err := c.Monitor.Config()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	fmt.Fprintf(w, "AGX Monitor Configuration\n  URL: %s\n", cfg.URL())
	_, err = w.Write(out)
	return err
}

func (c *Commands) Stats(w io.Writer, args []string) error {
	stats, err := c.Monitor.Statistics()
	if err != nil {
		return fmt.Errorf("failed to read statistics: %w", err)
	}
	fmt.Fprintf(w, "AGX Monitor Statistics\n")
	fmt.Fprintf(w, "  Session:            %s\n", stats.SessionID)
	fmt.Fprintf(w, "  Messages received:  %d\n", stats.MessagesReceived)
	fmt.Fprintf(w, "  Parse errors:       %d\n", stats.ParseErrors)
	fmt.Fprintf(w, "  Reconnect attempts: %d\n", stats.ReconnectAttempts)
	fmt.Fprintf(w, "  Forced disconnects: %d\n", stats.ForcedDisconnects)
	fmt.Fprintf(w, "  Message rate:       %.2f messages/sec\n", stats.MessageRate)
	fmt.Fprintf(w, "  Reconnect rate:     %.2f reconnects/min\n", stats.ReconnectRate)
	fmt.Fprintf(w, "  Reliability:        %.1f%%\n", stats.Reliability)
	return nil
}

func (c *Commands) Debug(w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: debug <verbose|quiet|normal|reconnect>")
	}

	switch args[0] {
	case "verbose":
		c.setLevel(slog.LevelDebug)
	case "quiet":
		c.setLevel(slog.LevelWarn)
	case "normal":
		c.setLevel(slog.LevelInfo)
	case "reconnect":
		if err := c.Monitor.ForceReconnect(); err != nil {
			return fmt.Errorf("failed to force reconnect: %w", err)
		}
		fmt.Fprintln(w, "Forced reconnect, the worker will reconnect on its next tick")
		return nil
	default:
		return fmt.Errorf("unknown debug mode %q (verbose, quiet, normal, reconnect)", args[0])
	}
	fmt.Fprintf(w, "Log level set to %s\n", args[0])
	return nil
}

func (c *Commands) setLevel(l slog.Level) {
	if c.Level != nil {
		c.Level.Set(l)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
