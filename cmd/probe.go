// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/agxmon/internal/logging"
	"github.com/Thermoquad/agxmon/pkg/agx"
	"github.com/Thermoquad/agxmon/pkg/socketio"
	"github.com/Thermoquad/agxmon/pkg/tegrastats"
	"github.com/Thermoquad/agxmon/pkg/wsclient"
)

var probeTimeout int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the AGX feed by waiting for one telemetry event",
	Long: `Open one Socket.IO connection to the AGX and wait for the Engine.IO open
frame and the first tegrastats_update event.

No reconnects are attempted. Integrity violations in received frames are
reported but do not end the probe.

Exit codes:
  0 - Telemetry received and parsed before timeout
  1 - Timeout reached, or the first telemetry event did not parse cleanly
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for telemetry")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("agxmon - Probe\n")
	fmt.Printf("Server: %s\n", cfg.URL())
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for telemetry...\n\n")

	logger := logging.FromContext(cmd.Context())
	events := make(chan agx.TransportEvent, 64)
	client := wsclient.New(agx.TransportOptions{
		HandshakeTimeout:   cfg.HeartbeatTimeout,
		WriteTimeout:       cfg.HeartbeatTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Username:           cfg.Username,
		Password:           cfg.Password,
	}, func(ev agx.TransportEvent) {
		select {
		case events <- ev:
		default:
		}
	}, logger)

	exit := func(code int) {
		client.Destroy()
		os.Exit(code)
	}

	start := time.Now()
	if err := client.Connect(context.Background(), cfg.URL()); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		exit(2)
	}

	codec := socketio.NewCodec(cfg.MaxFrameSize)
	parser := tegrastats.NewParser(nil, logger)
	deadline := time.After(time.Duration(probeTimeout) * time.Second)

	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case agx.TransportConnected:
				fmt.Printf("Connected after %v\n", time.Since(start).Round(time.Millisecond))
				if err := client.SendText([]byte(socketio.NamespaceConnect)); err != nil {
					fmt.Fprintf(os.Stderr, "Namespace connect failed: %v\n", err)
					exit(2)
				}

			case agx.TransportDisconnected:
				fmt.Fprintf(os.Stderr, "Connection closed by server\n")
				exit(2)

			case agx.TransportData:
				f := codec.Classify(ev.Data)
				switch {
				case f.Kind == socketio.KindOpen:
					fmt.Printf("Engine.IO open frame received (%d bytes)\n", f.Len)
				case f.Kind == socketio.KindConnectAck:
					fmt.Printf("Namespace connect acknowledged\n")
				case f.Kind == socketio.KindPing:
					client.SendText([]byte(socketio.Pong))
				case f.Kind.IntegrityViolation():
					fmt.Printf("WARNING: %s frame (%d bytes)\n", f.Kind, f.Len)
				case f.Kind == socketio.KindEvent:
					exit(reportTelemetry(os.Stdout, parser, f.Payload, time.Since(start)))
				}
			}

		case <-deadline:
			fmt.Fprintf(os.Stderr, "TIMEOUT: No telemetry received within %d seconds\n", probeTimeout)
			exit(1)
		}
	}
}

// reportTelemetry prints the first telemetry document and returns the exit
// code: 0 for a clean parse, 1 otherwise
func reportTelemetry(w io.Writer, parser *tegrastats.Parser, payload []byte, elapsed time.Duration) int {
	snap, err := parser.Parse(payload, time.Now())
	code := 0
	if err != nil {
		fmt.Fprintf(w, "FAILED: Telemetry received but did not parse cleanly: %v\n\n", err)
		code = 1
	} else {
		fmt.Fprintf(w, "SUCCESS: Telemetry received after %v\n\n", elapsed.Round(time.Millisecond))
	}
	fmt.Fprint(w, tegrastats.FormatSnapshot(&snap))
	return code
}
