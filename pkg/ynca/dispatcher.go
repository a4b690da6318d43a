// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ynca

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DispatcherState is the position of the send loop
type DispatcherState int32

const (
	DispatcherIdle DispatcherState = iota
	DispatcherSending
	DispatcherAwaitingNext
	DispatcherStopped
)

func (s DispatcherState) String() string {
	switch s {
	case DispatcherIdle:
		return "idle"
	case DispatcherSending:
		return "sending"
	case DispatcherAwaitingNext:
		return "awaiting-next"
	case DispatcherStopped:
		return "stopped"
	default:
		return fmt.Sprintf("DispatcherState(%d)", int32(s))
	}
}

// DispatcherConfig configures a Dispatcher. Zero durations select the defaults.
type DispatcherConfig struct {
	CommandInterval   time.Duration
	KeepAliveInterval time.Duration
	ConnectionID      string
	// KeepAliveFirst writes a keep-alive before the first queued command
	KeepAliveFirst bool
	Logger         zerolog.Logger
	Stats          *Statistics
	Tracer         Tracer
}

// Dispatcher is the single writer of a link. It drains a CommandQueue in
// order, keeps CommandInterval between writes and sends a keep-alive
// whenever the queue stays empty for KeepAliveInterval.
type Dispatcher struct {
	writer LineWriter
	queue  *CommandQueue
	config DispatcherConfig
	logger zerolog.Logger

	keepAliveLine string
	lastWrite     time.Time
	state         atomic.Int32
}

// NewDispatcher creates a dispatcher writing lines from queue to writer
func NewDispatcher(writer LineWriter, queue *CommandQueue, config DispatcherConfig) *Dispatcher {
	if config.CommandInterval <= 0 {
		config.CommandInterval = DefaultCommandInterval
	}
	if config.KeepAliveInterval <= 0 {
		config.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if config.Stats == nil {
		config.Stats = NewStatistics()
	}

	return &Dispatcher{
		writer:        writer,
		queue:         queue,
		config:        config,
		logger:        config.Logger.With().Str("component", "dispatcher").Logger(),
		keepAliveLine: KeepAliveQuery().Line(),
	}
}

// State returns the current loop state
func (d *Dispatcher) State() DispatcherState {
	return DispatcherState(d.state.Load())
}

// Run processes the queue until it is closed, ctx is cancelled or a write
// fails. A closed queue is a clean stop and returns nil. Write errors are
// returned as-is and never retried.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.setState(DispatcherStopped)

	if d.config.KeepAliveFirst {
		if err := d.write(ctx, d.keepAliveLine, true); err != nil {
			return err
		}
		d.setState(DispatcherAwaitingNext)
		if !d.sleep(ctx, d.config.CommandInterval) {
			return ctx.Err()
		}
	}

	for {
		d.setState(DispatcherIdle)

		line, err := d.queue.Pop(ctx, d.config.KeepAliveInterval)
		switch {
		case errors.Is(err, ErrQueueTimeout):
			// The keep-alive is the idle action itself, no spacing sleep after it
			if err := d.write(ctx, d.keepAliveLine, true); err != nil {
				return err
			}
			continue
		case errors.Is(err, ErrQueueClosed):
			d.logger.Debug().Msg("queue closed, stopping")
			return nil
		case err != nil:
			return err
		}

		if err := d.write(ctx, line, false); err != nil {
			return err
		}

		d.setState(DispatcherAwaitingNext)
		if !d.sleep(ctx, d.config.CommandInterval) {
			return ctx.Err()
		}
	}
}

// write sends one line, first waiting out whatever is left of the command
// interval since the previous write.
func (d *Dispatcher) write(ctx context.Context, line string, keepAlive bool) error {
	if !d.lastWrite.IsZero() {
		if wait := d.config.CommandInterval - time.Since(d.lastWrite); wait > 0 {
			if !d.sleep(ctx, wait) {
				return ctx.Err()
			}
		}
	}
	// Nothing may reach the wire after a disconnect
	if d.queue.Closed() {
		if !keepAlive {
			d.config.Stats.RecordDropped(1)
		}
		return nil
	}

	d.setState(DispatcherSending)
	err := d.writer.WriteLine(line)
	d.lastWrite = time.Now()
	d.config.Stats.RecordWrite(keepAlive, err)
	if err != nil {
		d.logger.Error().Err(err).Str("line", line).Msg("write failed")
		return fmt.Errorf("write %q: %w", line, err)
	}

	kind := TraceCommand
	if keepAlive {
		kind = TraceKeepAlive
		d.logger.Debug().Str("line", line).Msg("keep-alive sent")
	} else {
		d.logger.Debug().Str("line", line).Msg("command sent")
	}
	if d.config.Tracer != nil {
		d.config.Tracer.Record(TraceEvent{
			ConnectionID: d.config.ConnectionID,
			Time:         d.lastWrite,
			Direction:    DirectionOut,
			Kind:         kind,
			Line:         line,
		})
	}
	return nil
}

// sleep blocks for duration. It returns early and true when the queue is
// closed, so the loop observes the close on its next Pop, and false when ctx
// is cancelled.
func (d *Dispatcher) sleep(ctx context.Context, duration time.Duration) bool {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-d.queue.Done():
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) setState(s DispatcherState) {
	d.state.Store(int32(s))
}
