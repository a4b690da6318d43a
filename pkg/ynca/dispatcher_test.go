// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ynca

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// recordingWriter captures every line with the time it was written
type recordingWriter struct {
	mu    sync.Mutex
	lines []string
	times []time.Time
	err   error
}

func (w *recordingWriter) WriteLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.lines = append(w.lines, line)
	w.times = append(w.times, time.Now())
	return nil
}

func (w *recordingWriter) snapshot() ([]string, []time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...), append([]time.Time(nil), w.times...)
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.lines)
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func startDispatcher(t *testing.T, w LineWriter, q *CommandQueue, cfg DispatcherConfig) (*Dispatcher, chan error) {
	t.Helper()
	cfg.Logger = zerolog.Nop()
	d := NewDispatcher(w, q, cfg)
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(context.Background()) }()
	t.Cleanup(func() { q.Close() })
	return d, errCh
}

func TestDispatcher_OrderAndSpacing(t *testing.T) {
	const interval = 20 * time.Millisecond
	w := &recordingWriter{}
	q := NewCommandQueue()

	const n = 6
	for i := 0; i < n; i++ {
		q.Push(fmt.Sprintf("@MAIN:VOL=-%d.0", 40+i))
	}

	startDispatcher(t, w, q, DispatcherConfig{CommandInterval: interval, KeepAliveInterval: time.Minute})
	waitFor(t, 2*time.Second, func() bool { return w.count() == n })

	lines, times := w.snapshot()
	for i := 0; i < n; i++ {
		if want := fmt.Sprintf("@MAIN:VOL=-%d.0", 40+i); lines[i] != want {
			t.Errorf("line %d = %q, want %q", i, lines[i], want)
		}
	}
	for i := 1; i < n; i++ {
		if gap := times[i].Sub(times[i-1]); gap < interval {
			t.Errorf("gap between write %d and %d = %v, want >= %v", i-1, i, gap, interval)
		}
	}
}

func TestDispatcher_KeepAliveWhenIdle(t *testing.T) {
	const keepAlive = 80 * time.Millisecond
	w := &recordingWriter{}
	q := NewCommandQueue()

	startDispatcher(t, w, q, DispatcherConfig{CommandInterval: 5 * time.Millisecond, KeepAliveInterval: keepAlive})

	time.Sleep(keepAlive + keepAlive/2)
	lines, _ := w.snapshot()
	if len(lines) != 1 {
		t.Fatalf("expected exactly 1 keep-alive after one idle interval, got %d: %v", len(lines), lines)
	}
	if lines[0] != "@SYS:MODELNAME=?" {
		t.Errorf("keep-alive = %q, want @SYS:MODELNAME=?", lines[0])
	}

	waitFor(t, 2*keepAlive, func() bool { return w.count() == 2 })
}

func TestDispatcher_KeepAliveResetByTraffic(t *testing.T) {
	const keepAlive = 100 * time.Millisecond
	w := &recordingWriter{}
	q := NewCommandQueue()

	startDispatcher(t, w, q, DispatcherConfig{CommandInterval: 5 * time.Millisecond, KeepAliveInterval: keepAlive})

	// Keep the link busy at less than the keep-alive interval
	for i := 0; i < 4; i++ {
		time.Sleep(keepAlive / 2)
		q.Push("@MAIN:PWR=?")
	}

	lines, _ := w.snapshot()
	for _, line := range lines {
		if line == "@SYS:MODELNAME=?" {
			t.Fatalf("unexpected keep-alive while traffic was flowing: %v", lines)
		}
	}
}

func TestDispatcher_KeepAliveDoesNotBreakSpacing(t *testing.T) {
	const interval = 40 * time.Millisecond
	const keepAlive = 30 * time.Millisecond
	w := &recordingWriter{}
	q := NewCommandQueue()

	startDispatcher(t, w, q, DispatcherConfig{CommandInterval: interval, KeepAliveInterval: keepAlive})

	waitFor(t, time.Second, func() bool { return w.count() >= 1 })
	q.Push("@MAIN:PWR=On")
	waitFor(t, time.Second, func() bool { return w.count() >= 2 })

	_, times := w.snapshot()
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < interval {
			t.Errorf("gap %d = %v, want >= %v", i, gap, interval)
		}
	}
}

func TestDispatcher_StopsOnClose(t *testing.T) {
	w := &recordingWriter{}
	q := NewCommandQueue()
	q.Push("@MAIN:PWR=On")

	d, errCh := startDispatcher(t, w, q, DispatcherConfig{CommandInterval: 50 * time.Millisecond, KeepAliveInterval: time.Minute})
	waitFor(t, time.Second, func() bool { return w.count() == 1 })

	for i := 0; i < 10; i++ {
		q.Push("@MAIN:VOL=Up")
	}
	q.Close()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after Close")
	}

	if w.count() != 1 {
		t.Errorf("writes after close: got %d lines, want 1", w.count())
	}
	if d.State() != DispatcherStopped {
		t.Errorf("State() = %v, want stopped", d.State())
	}
}

func TestDispatcher_WriteErrorStops(t *testing.T) {
	boom := errors.New("boom")
	w := &recordingWriter{err: boom}
	q := NewCommandQueue()
	stats := NewStatistics()
	q.Push("@MAIN:PWR=On")

	_, errCh := startDispatcher(t, w, q, DispatcherConfig{KeepAliveInterval: time.Minute, Stats: stats})

	select {
	case err := <-errCh:
		if !errors.Is(err, boom) {
			t.Errorf("Run returned %v, want wrapped boom", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after write error")
	}
	if got := stats.Snapshot().WriteErrors; got != 1 {
		t.Errorf("WriteErrors = %d, want 1", got)
	}
}

func TestDispatcher_TracesWrites(t *testing.T) {
	w := &recordingWriter{}
	q := NewCommandQueue()
	tr := &memoryTracer{}
	q.Push("@MAIN:INP=HDMI1")

	startDispatcher(t, w, q, DispatcherConfig{KeepAliveInterval: time.Minute, Tracer: tr, ConnectionID: "c1"})
	waitFor(t, time.Second, func() bool { return len(tr.all()) == 1 })

	ev := tr.all()[0]
	if ev.Direction != DirectionOut || ev.Kind != TraceCommand || ev.Line != "@MAIN:INP=HDMI1" || ev.ConnectionID != "c1" {
		t.Errorf("unexpected trace event %+v", ev)
	}
}

func TestDispatcher_QueuedModelNameIsCommand(t *testing.T) {
	w := &recordingWriter{}
	q := NewCommandQueue()
	tr := &memoryTracer{}
	stats := NewStatistics()

	// A caller asking for the model name sends the same line as the keep-alive
	q.Push(KeepAliveQuery().Line())

	startDispatcher(t, w, q, DispatcherConfig{
		CommandInterval:   5 * time.Millisecond,
		KeepAliveInterval: time.Minute,
		KeepAliveFirst:    true,
		Stats:             stats,
		Tracer:            tr,
	})
	waitFor(t, time.Second, func() bool { return len(tr.all()) == 2 })

	events := tr.all()
	if events[0].Kind != TraceKeepAlive || events[1].Kind != TraceCommand {
		t.Errorf("trace kinds = %v, %v, want KEEPALIVE, COMMAND", events[0].Kind, events[1].Kind)
	}
	snap := stats.Snapshot()
	if snap.KeepAlivesSent != 1 || snap.CommandsSent != 1 {
		t.Errorf("KeepAlivesSent = %d, CommandsSent = %d, want 1 and 1", snap.KeepAlivesSent, snap.CommandsSent)
	}
}

func TestDispatcherState_String(t *testing.T) {
	tests := map[DispatcherState]string{
		DispatcherIdle:         "idle",
		DispatcherSending:      "sending",
		DispatcherAwaitingNext: "awaiting-next",
		DispatcherStopped:      "stopped",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int32(s), s.String(), want)
		}
	}
}

// memoryTracer keeps trace events in memory
type memoryTracer struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (m *memoryTracer) Record(event TraceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *memoryTracer) all() []TraceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TraceEvent(nil), m.events...)
}
