// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/yncastat/pkg/receiver"
	"github.com/Thermoquad/yncastat/pkg/ynca"
	"github.com/spf13/cobra"
)

var statusWait time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of a zone",
	Long: `Connect, ask the receiver for the zone basics and the input names, and print
what it reported after --wait.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().DurationVarP(&statusWait, "wait", "w", 2*time.Second, "How long to collect replies")
}

func runStatus(cmd *cobra.Command, args []string) error {
	var rx *receiver.Receiver
	lost := make(chan error, 1)

	session, connInfo, err := NewSession(config, ynca.Options{
		Name:         "status",
		OnFrame:      func(subunit, function, value string) { rx.HandleFrame(subunit, function, value) },
		OnError:      printProtocolError,
		OnDisconnect: func(err error) { lost <- err },
	})
	if err != nil {
		return err
	}

	opts := config.ReceiverOptions(config.Zone)
	opts.Logger = logger
	rx = receiver.New(session, opts)

	if err := session.Connect(cmd.Context()); err != nil {
		return err
	}
	rx.Refresh()

	select {
	case <-time.After(statusWait):
		disconnect(session)
	case err := <-lost:
		return err
	}

	fmt.Printf("Connection: %s\n", connInfo)
	printStatus(os.Stdout, rx)
	return nil
}

func printStatus(w io.Writer, rx *receiver.Receiver) {
	state := rx.State()

	power := "Standby"
	if state.Power {
		power = "On"
	}
	mute := "Off"
	if state.Muted {
		mute = "On"
	}

	fmt.Fprintf(w, "Name:   %s\n", rx.Name())
	fmt.Fprintf(w, "Zone:   %s\n", ynca.FormatSubunit(rx.Zone()))
	fmt.Fprintf(w, "Power:  %s\n", power)
	fmt.Fprintf(w, "Volume: %.1f dB (%.0f%%)\n", state.Volume, rx.VolumeLevel()*100)
	fmt.Fprintf(w, "Mute:   %s\n", mute)
	fmt.Fprintf(w, "Input:  %s\n", rx.DisplayName(state.Input))

	sources := rx.SourceList()
	if len(sources) == 0 {
		return
	}
	fmt.Fprintf(w, "Sources:\n")
	for _, id := range sources {
		marker := " "
		if id == state.Input {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %-10s %s\n", marker, id, rx.DisplayName(id))
	}
}
