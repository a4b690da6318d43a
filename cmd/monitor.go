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
	"time"

	"github.com/Thermoquad/yncastat/pkg/ynca"
	"github.com/spf13/cobra"
)

var (
	recordPath string
	showStats  bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display every frame the receiver reports",
	Long: `Connect to the receiver and display each frame as it arrives.

The receiver reports every state change on its own (power, volume, input,
tuner, ...), so this shows what the remote control or front panel is doing
as well as replies to commands. @UNDEFINED and @RESTRICTED replies are
highlighted.

With --record, every line sent and received is written to a CBOR trace that
can be printed later with the replay command.

Press Ctrl+C to exit. Statistics are printed on exit.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVarP(&recordPath, "record", "r", "", "Record a CBOR trace to this file")
	monitorCmd.Flags().BoolVar(&showStats, "stats", true, "Print statistics on exit")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	lost := make(chan error, 1)
	opts := ynca.Options{
		Name: "monitor",
		OnFrame: func(subunit, function, value string) {
			fmt.Print(ynca.FormatFrame(ynca.NewFrame(subunit, function, value)))
		},
		OnError:      printProtocolError,
		OnDisconnect: func(err error) { lost <- err },
	}

	var rec *recording
	if recordPath != "" {
		f, err := os.Create(recordPath)
		if err != nil {
			return fmt.Errorf("create trace file: %w", err)
		}
		defer f.Close()

		rec = newRecording(f)
		opts.Tracer = rec.trace
	}

	session, connInfo, err := NewSession(config, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Connect(ctx); err != nil {
		return err
	}

	fmt.Printf("yncastat - Frame Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if recordPath != "" {
		fmt.Printf("Recording: %s\n", recordPath)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var lostErr error
	select {
	case <-ctx.Done():
		disconnect(session)
	case lostErr = <-lost:
		fmt.Printf("\nConnection closed: %v\n", lostErr)
	}

	if showStats {
		fmt.Printf("\n%s", session.Stats().Snapshot())
	}
	if rec != nil {
		if err := rec.finish(); err != nil {
			return err
		}
	}
	return lostErr
}

// recording buffers a CBOR trace on its way to the trace file
type recording struct {
	w     *bufio.Writer
	trace *ynca.TraceWriter
}

func newRecording(out io.Writer) *recording {
	w := bufio.NewWriter(out)
	return &recording{w: w, trace: ynca.NewTraceWriter(w)}
}

// finish flushes the buffered trace and reports the first write error,
// whether it came from an event or from the flush itself.
func (r *recording) finish() error {
	flushErr := r.w.Flush()
	if err := r.trace.Err(); err != nil {
		return fmt.Errorf("recording trace: %w", err)
	}
	if flushErr != nil {
		return fmt.Errorf("flush trace: %w", flushErr)
	}
	return nil
}

// printProtocolError prints an @UNDEFINED/@RESTRICTED reply in highlighted format
func printProtocolError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	var perr *ynca.ProtocolError
	if errors.As(err, &perr) {
		fmt.Printf("[%s] \033[1;31m%s\033[0m", timestamp, ynca.FormatProtocolError(perr))
		return
	}
	fmt.Printf("[%s] \033[1;31mERROR:\033[0m %v\n", timestamp, err)
}

// disconnect closes the session, giving the workers a moment to finish
func disconnect(session *ynca.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := session.Disconnect(ctx); err != nil && !errors.Is(err, ynca.ErrNotConnected) {
		logger.Warn().Err(err).Msg("disconnect")
	}
}
