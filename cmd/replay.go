// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/agxmon/internal/logging"
	"github.com/Thermoquad/agxmon/pkg/recorder"
	"github.com/Thermoquad/agxmon/pkg/socketio"
	"github.com/Thermoquad/agxmon/pkg/tegrastats"
)

var (
	replayShowAll   bool
	replayMaxFrame  int
	replaySnapshots bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <recording>",
	Short: "Decode a frame recording made with --record",
	Long: `Run every frame of a CBOR recording through the Socket.IO codec and the
tegrastats parser, printing each decoded snapshot and a summary of frame
kinds at the end.

Recordings are created by the monitor and dashboard commands with --record.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayShowAll, "show-all", false, "Print every frame, not only telemetry")
	replayCmd.Flags().BoolVar(&replaySnapshots, "snapshots", true, "Print decoded snapshots")
	replayCmd.Flags().IntVar(&replayMaxFrame, "max-frame-bytes", socketio.DefaultMaxFrameSize, "Largest accepted frame")
}

// replaySummary counts what a recording contained
type replaySummary struct {
	Frames      int
	Kinds       map[socketio.Kind]int
	Snapshots   int
	ParseErrors int
	First       time.Time
	Last        time.Time
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	r, err := recorder.NewReader(f)
	if err != nil {
		return err
	}

	h := r.Header()
	fmt.Printf("agxmon - Replay\n")
	fmt.Printf("Recording: %s\n", args[0])
	fmt.Printf("Source: %s\n", h.Source)
	fmt.Printf("Started: %s\n\n", h.Started().Format(time.RFC3339))

	summary, err := replay(r, cmd.OutOrStdout(), socketio.NewCodec(replayMaxFrame), tegrastats.NewParser(nil, logging.FromContext(cmd.Context())))
	printReplaySummary(cmd.OutOrStdout(), summary)
	return err
}

// replay decodes records until the end of the recording
func replay(r *recorder.Reader, w io.Writer, codec *socketio.Codec, parser *tegrastats.Parser) (replaySummary, error) {
	s := replaySummary{Kinds: make(map[socketio.Kind]int)}

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return s, err
		}

		at := rec.At()
		if s.Frames == 0 {
			s.First = at
		}
		s.Last = at
		s.Frames++

		frame := codec.Classify(rec.Frame)
		s.Kinds[frame.Kind]++
		stamp := at.Format("15:04:05.000")

		switch {
		case frame.Kind == socketio.KindEvent:
			snap, err := parser.Parse(frame.Payload, at)
			if err != nil {
				s.ParseErrors++
				fmt.Fprintf(w, "%s [ERROR] %v\n", stamp, err)
				if errors.Is(err, tegrastats.ErrInvalidJSON) {
					continue
				}
			} else {
				s.Snapshots++
			}
			if replaySnapshots {
				fmt.Fprintf(w, "%s\n%s\n", stamp, tegrastats.FormatSnapshot(&snap))
			}
		case frame.Kind.IntegrityViolation():
			fmt.Fprintf(w, "%s [INTEGRITY] %s (%d bytes)\n", stamp, frame.Kind, frame.Len)
		case frame.Kind == socketio.KindMalformedEvent:
			fmt.Fprintf(w, "%s [MALFORMED] %s\n", stamp, frame.Reason)
		case replayShowAll:
			fmt.Fprintf(w, "%s %s (%d bytes)\n", stamp, frame.Kind, frame.Len)
		}
	}
}

func printReplaySummary(w io.Writer, s replaySummary) {
	fmt.Fprintf(w, "\n--- Replay statistics ---\n")
	fmt.Fprintf(w, "%d frames over %v, %d snapshots, %d parse errors\n",
		s.Frames, s.Last.Sub(s.First).Round(time.Millisecond), s.Snapshots, s.ParseErrors)

	kinds := make([]socketio.Kind, 0, len(s.Kinds))
	for k := range s.Kinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-18s %d\n", k.String()+":", s.Kinds[k])
	}
}
