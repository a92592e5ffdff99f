// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/agxmon/internal/logging"
	"github.com/Thermoquad/agxmon/pkg/agx"
	"github.com/Thermoquad/agxmon/pkg/console"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the AGX monitor with an interactive console",
	Long: `Start the AGX monitor and read console commands from stdin.

Available console commands:
  status                               Connection state and counters
  start / stop                         Start or stop the monitor worker
  data                                 Latest telemetry snapshot
  config                               Active configuration
  stats                                Detailed statistics
  debug verbose|quiet|normal|reconnect Log level, or force a reconnect
  help                                 List commands
  quit                                 Exit

Use --record to capture every received frame for the replay command, and
--fan-port to forward the AGX CPU temperature to the fan controller.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	addSessionFlags(monitorCmd)
}

var errQuit = errors.New("quit")

func runMonitor(cmd *cobra.Command, args []string) error {
	logger := logging.FromContext(cmd.Context())
	s, err := openSession(logger)
	if err != nil {
		return err
	}
	defer s.Close()

	s.Monitor.RegisterCallback(func(e agx.Event) {
		if e.Err != nil {
			logger.Info("monitor event", "event", e.Type, "error", e.Err)
			return
		}
		if e.Type != agx.EventDataReceived {
			logger.Info("monitor event", "event", e.Type)
		}
	})

	registry := newConsole(s.Monitor)

	fmt.Printf("agxmon - AGX Monitor\n")
	fmt.Printf("Server: %s\n", s.Config.URL())
	fmt.Printf("Type 'help' for commands, Ctrl+C to exit\n\n")

	if err := s.Monitor.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("agx> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := registry.Execute(line, os.Stdout)
			switch {
			case errors.Is(err, errQuit):
				return nil
			case errors.Is(err, console.ErrEmptyLine):
			case err != nil:
				fmt.Fprintf(os.Stdout, "Error: %v\n", err)
			}
		}
	}
}

// newConsole registers the monitor commands and quit
func newConsole(m *agx.Monitor) *console.Registry {
	registry := console.NewRegistry("agx")
	agx.RegisterCommands(registry, m, level)
	registry.Register("quit", "Exit agxmon", func(w io.Writer, args []string) error {
		return errQuit
	})
	return registry
}
