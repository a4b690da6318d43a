// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/yncastat/pkg/ynca"
	"github.com/spf13/cobra"
)

var waitDuration time.Duration

var getCmd = &cobra.Command{
	Use:   "get SUBUNIT FUNCTION",
	Short: "Query one value from the receiver",
	Long: `Send @SUBUNIT:FUNCTION=? and print every frame received for --wait.

Example:
  yncastat get MAIN VOL
  yncastat get SYS INPNAME`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(cmd, ynca.Query(strings.ToUpper(args[0]), strings.ToUpper(args[1])))
	},
}

var putCmd = &cobra.Command{
	Use:   "put SUBUNIT FUNCTION PARAMETER",
	Short: "Send one command to the receiver",
	Long: `Send @SUBUNIT:FUNCTION=PARAMETER and print every frame received for --wait.

The receiver answers a command it does not know with @UNDEFINED and one it
cannot carry out right now with @RESTRICTED.

Example:
  yncastat put MAIN VOL -40.0
  yncastat put SYS PWR On`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShot(cmd, ynca.Command{
			Subunit:   strings.ToUpper(args[0]),
			Function:  strings.ToUpper(args[1]),
			Parameter: args[2],
		})
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	for _, c := range []*cobra.Command{getCmd, putCmd} {
		c.Flags().DurationVarP(&waitDuration, "wait", "w", time.Second, "How long to print replies")
	}
}

func runOneShot(cmd *cobra.Command, command ynca.Command) error {
	if err := command.Validate(); err != nil {
		return err
	}

	var rejected atomic.Int32
	lost := make(chan error, 1)
	session, _, err := NewSession(config, ynca.Options{
		Name: "oneshot",
		OnFrame: func(subunit, function, value string) {
			fmt.Print(ynca.FormatFrame(ynca.NewFrame(subunit, function, value)))
		},
		OnError: func(err error) {
			rejected.Add(1)
			printProtocolError(err)
		},
		OnDisconnect: func(err error) { lost <- err },
	})
	if err != nil {
		return err
	}

	if err := session.Connect(cmd.Context()); err != nil {
		return err
	}

	session.Send(command)
	logger.Debug().Str("line", command.Line()).Msg("queued")

	select {
	case <-time.After(waitDuration):
		disconnect(session)
	case err := <-lost:
		return err
	}

	if n := rejected.Load(); n > 0 {
		return fmt.Errorf("receiver rejected %d command(s)", n)
	}
	return nil
}
