// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ynca

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeDevice is the receiver end of an in-memory link
type fakeDevice struct {
	conn  net.Conn
	lines chan string
}

func (d *fakeDevice) send(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(d.conn, line+"\r\n"); err != nil {
		t.Fatalf("device write: %v", err)
	}
}

func (d *fakeDevice) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got, ok := <-d.lines:
		if !ok {
			t.Fatalf("link closed, expected %q", want)
		}
		if got != want {
			t.Fatalf("device received %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

// collector records session callbacks
type collector struct {
	mu           sync.Mutex
	frames       []string
	errs         []error
	disconnects  []error
	disconnected chan struct{}
}

func newCollector() *collector {
	return &collector{disconnected: make(chan struct{}, 4)}
}

func (c *collector) options() Options {
	return Options{
		Name: "pipe",
		OnFrame: func(subunit, function, value string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.frames = append(c.frames, FormatCommand(subunit, function, value))
		},
		OnError: func(err error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.errs = append(c.errs, err)
		},
		OnDisconnect: func(err error) {
			c.mu.Lock()
			c.disconnects = append(c.disconnects, err)
			c.mu.Unlock()
			c.disconnected <- struct{}{}
		},
		Logger: zerolog.Nop(),
	}
}

func (c *collector) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *collector) waitDisconnect(t *testing.T) error {
	t.Helper()
	select {
	case <-c.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect was not called")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects[len(c.disconnects)-1]
}

func pipeDialer() (DialFunc, func() *fakeDevice) {
	devices := make(chan *fakeDevice, 4)
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		client, server := net.Pipe()
		dev := &fakeDevice{conn: server, lines: make(chan string, 64)}
		go func() {
			defer close(dev.lines)
			scanner := bufio.NewScanner(server)
			for scanner.Scan() {
				dev.lines <- scanner.Text()
			}
		}()
		devices <- dev
		return client, nil
	}
	next := func() *fakeDevice {
		select {
		case d := <-devices:
			return d
		case <-time.After(time.Second):
			return nil
		}
	}
	return dial, next
}

func connectPipe(t *testing.T, opts Options) (*Session, *fakeDevice) {
	t.Helper()
	dial, next := pipeDialer()
	s := NewSession(dial, opts)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dev := next()
	if dev == nil {
		t.Fatal("dialer was not called")
	}
	t.Cleanup(func() {
		if s.State() != StateDisconnected {
			_ = s.Disconnect(context.Background())
		}
		dev.conn.Close()
	})
	return s, dev
}

func TestSession_ConnectSendsKeepAliveFirst(t *testing.T) {
	c := newCollector()
	opts := c.options()
	opts.CommandInterval = 5 * time.Millisecond
	s, dev := connectPipe(t, opts)

	if s.State() != StateConnected {
		t.Errorf("State() = %v, want connected", s.State())
	}
	if s.ConnectionID() == "" {
		t.Error("ConnectionID() should be set while connected")
	}

	s.Put("MAIN", "PWR", "On")
	s.Get("MAIN", "VOL")
	s.Send(InputCommand("MAIN", "HDMI2"))

	dev.expect(t, "@SYS:MODELNAME=?")
	dev.expect(t, "@MAIN:PWR=On")
	dev.expect(t, "@MAIN:VOL=?")
	dev.expect(t, "@MAIN:INP=HDMI2")
}

func TestSession_InboundDispatch(t *testing.T) {
	c := newCollector()
	stats := NewStatistics()
	opts := c.options()
	opts.Stats = stats
	s, dev := connectPipe(t, opts)
	dev.expect(t, "@SYS:MODELNAME=?")

	dev.send(t, "@SYS:MODELNAME=RX-V671")
	dev.send(t, "garbage from another device")
	dev.send(t, "@UNDEFINED")
	dev.send(t, "@MAIN:VOL=-35.5")
	dev.send(t, "@RESTRICTED")
	dev.send(t, "")

	waitFor(t, time.Second, func() bool { return stats.Snapshot().LinesReceived == 5 })

	c.mu.Lock()
	frames := append([]string(nil), c.frames...)
	errs := append([]error(nil), c.errs...)
	c.mu.Unlock()

	if len(frames) != 2 || frames[0] != "@SYS:MODELNAME=RX-V671" || frames[1] != "@MAIN:VOL=-35.5" {
		t.Errorf("frames = %v", frames)
	}
	if len(errs) != 2 {
		t.Fatalf("errors = %v, want 2", errs)
	}
	if !IsProtocolError(errs[0], UndefinedCommand) || !IsProtocolError(errs[1], RestrictedCommand) {
		t.Errorf("errors = %v", errs)
	}

	snap := stats.Snapshot()
	if snap.Frames != 2 || snap.UnrecognizedLines != 1 || snap.UndefinedErrors != 1 || snap.RestrictedErrors != 1 {
		t.Errorf("unexpected statistics %+v", snap)
	}
	if s.State() != StateConnected {
		t.Errorf("error frames must not end the connection, state = %v", s.State())
	}
}

func TestSession_DisconnectDropsPending(t *testing.T) {
	c := newCollector()
	stats := NewStatistics()
	opts := c.options()
	opts.Stats = stats
	opts.CommandInterval = 300 * time.Millisecond
	s, dev := connectPipe(t, opts)

	// The keep-alive is on the wire, the dispatcher now sleeps out the interval
	dev.expect(t, "@SYS:MODELNAME=?")
	for i := 0; i < 5; i++ {
		s.Put("MAIN", "VOL", "Up")
	}

	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := c.waitDisconnect(t); err != nil {
		t.Errorf("OnDisconnect(%v), want nil for a requested disconnect", err)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", s.State())
	}

	for line := range dev.lines {
		t.Errorf("unexpected write after disconnect: %q", line)
	}

	snap := stats.Snapshot()
	if snap.CommandsDropped != 5 {
		t.Errorf("CommandsDropped = %d, want 5", snap.CommandsDropped)
	}
	if snap.CommandsSent != 0 {
		t.Errorf("CommandsSent = %d, want 0", snap.CommandsSent)
	}
}

func TestSession_ConnectionLost(t *testing.T) {
	c := newCollector()
	stats := NewStatistics()
	opts := c.options()
	opts.Stats = stats
	s, dev := connectPipe(t, opts)
	dev.expect(t, "@SYS:MODELNAME=?")

	dev.send(t, "@MAIN:PWR=On")
	waitFor(t, time.Second, func() bool { return c.frameCount() == 1 })
	dev.conn.Close()

	err := c.waitDisconnect(t)
	if !errors.Is(err, ErrConnectionLost) {
		t.Errorf("OnDisconnect(%v), want ErrConnectionLost", err)
	}
	waitFor(t, time.Second, func() bool { return s.State() == StateDisconnected })

	// Calls on a dead session are dropped, never block
	s.Put("MAIN", "PWR", "On")
	if got := stats.Snapshot().CommandsDropped; got != 1 {
		t.Errorf("CommandsDropped = %d, want 1", got)
	}
	if err := s.Disconnect(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Disconnect after loss = %v, want ErrNotConnected", err)
	}
}

func TestSession_OverlongLineIsIgnored(t *testing.T) {
	c := newCollector()
	stats := NewStatistics()
	opts := c.options()
	opts.Stats = stats
	s, dev := connectPipe(t, opts)
	dev.expect(t, "@SYS:MODELNAME=?")

	if _, err := io.WriteString(dev.conn, strings.Repeat("x", 5000)+"\r\n@MAIN:PWR=On\r\n"); err != nil {
		t.Fatalf("device write: %v", err)
	}
	waitFor(t, time.Second, func() bool { return c.frameCount() == 1 })

	if s.State() != StateConnected {
		t.Errorf("State() = %v, want connected", s.State())
	}
	snap := stats.Snapshot()
	if snap.UnrecognizedLines != 1 || snap.Frames != 1 {
		t.Errorf("UnrecognizedLines = %d, Frames = %d, want 1 and 1", snap.UnrecognizedLines, snap.Frames)
	}
}

func TestSession_ConnectFailure(t *testing.T) {
	cause := errors.New("permission denied")
	s := NewSession(func(ctx context.Context) (io.ReadWriteCloser, error) {
		return nil, cause
	}, Options{Name: "/dev/ttyUSB9", Logger: zerolog.Nop()})

	err := s.Connect(context.Background())
	if !errors.Is(err, ErrTransportOpen) {
		t.Errorf("Connect error %v should wrap ErrTransportOpen", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Connect error %v should wrap the cause", err)
	}
	var oe *OpenError
	if !errors.As(err, &oe) || oe.Target != "/dev/ttyUSB9" {
		t.Errorf("expected OpenError for /dev/ttyUSB9, got %#v", err)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", s.State())
	}
}

func TestSession_ConnectTwice(t *testing.T) {
	s, dev := connectPipe(t, newCollector().options())
	dev.expect(t, "@SYS:MODELNAME=?")

	if err := s.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect = %v, want ErrAlreadyConnected", err)
	}
}

func TestSession_Reconnect(t *testing.T) {
	c := newCollector()
	dial, next := pipeDialer()
	s := NewSession(dial, c.options())

	for round := 0; round < 2; round++ {
		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("round %d Connect: %v", round, err)
		}
		dev := next()
		dev.expect(t, "@SYS:MODELNAME=?")
		if err := s.Disconnect(context.Background()); err != nil {
			t.Fatalf("round %d Disconnect: %v", round, err)
		}
		c.waitDisconnect(t)
		dev.conn.Close()
	}
}

func TestSessionState_String(t *testing.T) {
	tests := map[SessionState]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateClosing:      "closing",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int32(s), s.String(), want)
		}
	}
}
