// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/yncastat/pkg/receiver"
	"github.com/Thermoquad/yncastat/pkg/ynca"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the receiver",
	Long: `Control a Yamaha receiver via an interactive terminal UI.

Features:
  - Power, mute and volume for every zone not listed in zone_ignore
  - Input selection from the names the receiver reports
  - Raw command entry (e.g. @MAIN:SOUNDPRG=Standard or MAIN:VOL=?)
  - Statistics and event log
  - Automatic reconnection on connection loss

Keys: p=power m=mute +/-=volume [/]=volume 5% z=zone r=refresh
Tab switches between the input list and the command entry.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// connectionManager handles session lifecycle and reconnection
type connectionManager struct {
	session   *ynca.Session
	receivers []*receiver.Receiver
	connInfo  string
	p         *tea.Program
	done      chan struct{}
	lost      chan error
}

func runControl(cmd *cobra.Command, args []string) error {
	cm := &connectionManager{
		done: make(chan struct{}),
		lost: make(chan error, 1),
	}

	// Logging to stderr would tear the alt screen; the event log shows
	// protocol errors and connection changes instead
	logger = zerolog.Nop()

	session, connInfo, err := NewSession(config, ynca.Options{
		Name:    "control",
		OnFrame: cm.handleFrame,
		OnError: func(err error) {
			cm.p.Send(protocolErrorMsg{err: err})
		},
		OnDisconnect: func(err error) {
			if err == nil {
				return
			}
			select {
			case cm.lost <- err:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	cm.session = session
	cm.connInfo = connInfo

	for _, zone := range config.Zones() {
		opts := config.ReceiverOptions(zone)
		opts.OnUpdate = func(state receiver.State) {
			cm.p.Send(zoneUpdateMsg{zone: zone, state: state})
		}
		cm.receivers = append(cm.receivers, receiver.New(session, opts))
	}

	// The program exists before the first frame can arrive
	cm.p = tea.NewProgram(initialControlModel(cm, connInfo), tea.WithAltScreen())

	if err := session.Connect(cmd.Context()); err != nil {
		return err
	}

	go cm.supervise()
	cm.refreshAll()

	_, runErr := cm.p.Run()
	close(cm.done)
	disconnect(session)
	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}

// handleFrame fans a frame out to every zone's receiver
func (cm *connectionManager) handleFrame(subunit, function, value string) {
	for _, rx := range cm.receivers {
		rx.HandleFrame(subunit, function, value)
	}
}

func (cm *connectionManager) refreshAll() {
	for _, rx := range cm.receivers {
		rx.Refresh()
	}
}

// supervise waits for connection loss and reconnects
func (cm *connectionManager) supervise() {
	for {
		select {
		case <-cm.done:
			return
		case err := <-cm.lost:
			cm.p.Send(connectionLostMsg{err: err})
			if !cm.reconnect() {
				return // Shutdown requested during reconnect
			}
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		err := cm.session.Connect(ctx)
		cancel()
		if err == nil {
			cm.p.Send(reconnectedMsg{connInfo: cm.connInfo})
			cm.refreshAll()
			return true
		}
		logger.Debug().Err(err).Dur("backoff", backoff).Msg("reconnect failed")

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
