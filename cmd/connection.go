// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/agxmon/pkg/agx"
	"github.com/Thermoquad/agxmon/pkg/fanlink"
	"github.com/Thermoquad/agxmon/pkg/recorder"
	"github.com/Thermoquad/agxmon/pkg/wsclient"
)

var (
	// Optional collaborators shared by monitor and dashboard
	fanPort    string
	fanBaud    int
	recordPath string
)

// addSessionFlags registers the flags for commands that run a full monitor
func addSessionFlags(c *cobra.Command) {
	c.Flags().StringVar(&fanPort, "fan-port", "", "Serial port of the fan controller (forwards AGX CPU temperature)")
	c.Flags().IntVar(&fanBaud, "fan-baud", fanlink.DefaultBaudRate, "Fan controller baud rate")
	c.Flags().StringVar(&recordPath, "record", "", "Write every received frame to a CBOR recording")
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("AGXMON_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// session is a monitor plus the optional collaborators it was built with
type session struct {
	Monitor  *agx.Monitor
	Config   agx.Config
	closers  []io.Closer
	fan      *fanlink.Reporter
	recorder *recorder.Writer
}

// openSession loads the config and builds an initialized (not started)
// monitor with the fan link and recorder attached when requested
func openSession(logger *slog.Logger) (*session, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	s := &session{Config: cfg}
	opts := []agx.Option{agx.WithLogger(logger)}

	if fanPort != "" {
		fan, err := fanlink.Open(fanPort, fanBaud)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, fan)
		s.fan = fan
		opts = append(opts, agx.WithThermalReporter(fan))
	}

	if recordPath != "" {
		f, err := os.Create(recordPath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create recording: %w", err)
		}
		s.closers = append(s.closers, f)
		w, err := recorder.NewWriter(f, cfg.URL(), time.Now())
		if err != nil {
			s.Close()
			return nil, err
		}
		s.recorder = w
		opts = append(opts, agx.WithFrameObserver(func(at time.Time, frame []byte) {
			if err := w.Write(at, frame); err != nil {
				logger.Warn("recording failed", "error", err)
			}
		}))
	}

	s.Monitor = agx.NewMonitor(wsclient.Factory(logger), opts...)
	if err := s.Monitor.Init(cfg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close deinitializes the monitor, then releases the collaborators
func (s *session) Close() {
	if s.Monitor != nil {
		s.Monitor.Deinit()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i].Close()
	}
	if s.fan != nil {
		fmt.Printf("Sent %d temperature readings to %s\n", s.fan.Sent(), fanPort)
	}
	if s.recorder != nil {
		fmt.Printf("Recorded %d frames to %s\n", s.recorder.Count(), recordPath)
	}
}
