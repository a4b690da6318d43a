// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/yncastat/pkg/ynca"
	"github.com/spf13/cobra"
)

var (
	pingTimeout time.Duration
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link by querying the model name",
	Long: `Send @SYS:MODELNAME=? and wait for the reply, like the keep-alive does.

This is useful for verifying:
  - the serial port or WebSocket bridge opens
  - HTTP Basic authentication works
  - the receiver answers (RS-232 control enabled, correct baud rate)
  - bidirectional traffic works

The first query after connecting also wakes a receiver from standby and is
not timed.`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().DurationVarP(&pingTimeout, "timeout", "t", 2*time.Second, "Timeout for each ping")
	pingCmd.Flags().IntVarP(&pingCount, "count", "n", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	replies := make(chan string, 8)
	session, connInfo, err := NewSession(config, ynca.Options{
		Name: "ping",
		OnFrame: func(subunit, function, value string) {
			if subunit == ynca.SubunitSystem && function == ynca.FuncModelName {
				select {
				case replies <- value:
				default:
				}
			}
		},
		OnError: printProtocolError,
	})
	if err != nil {
		return err
	}

	if err := session.Connect(cmd.Context()); err != nil {
		return err
	}
	defer disconnect(session)

	fmt.Printf("yncastat - Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %s per ping\n", pingTimeout)

	// Reply to the keep-alive Connect sends first
	select {
	case model := <-replies:
		fmt.Printf("Receiver: %s\n\n", model)
	case <-time.After(pingTimeout):
		return fmt.Errorf("no reply from the receiver in %s", pingTimeout)
	}

	successCount := 0
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		session.Send(ynca.KeepAliveQuery())

		select {
		case model := <-replies:
			fmt.Printf("reply from %s, rtt=%v\n", model, time.Since(startTime).Round(time.Millisecond))
			successCount++
		case <-time.After(pingTimeout):
			fmt.Printf("TIMEOUT (no response in %s)\n", pingTimeout)
		}
	}

	failCount := pingCount - successCount
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(max(pingCount, 1))*100)

	if failCount > 0 {
		return fmt.Errorf("%d of %d pings failed", failCount, pingCount)
	}
	return nil
}
