// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/yncastat/pkg/ynca"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print a trace recorded with monitor --record",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	stats, err := replayTrace(cmd.OutOrStdout(), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d events, %d sent, %d received\n", stats.events, stats.sent, stats.received)
	return nil
}

type replayStats struct {
	events   int
	sent     int
	received int
}

// replayTrace prints every event of a CBOR trace
func replayTrace(w io.Writer, r io.Reader) (replayStats, error) {
	var stats replayStats
	reader := ynca.NewTraceReader(r)
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		stats.events++
		arrow := "<-"
		if event.Direction == ynca.DirectionOut {
			arrow = "->"
			stats.sent++
		} else {
			stats.received++
		}

		fmt.Fprintf(w, "[%s] %s %-12s %s\n",
			event.Time.Format("15:04:05.000"), arrow, event.Kind, event.Line)
	}
}
