// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ynca

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionState is the connection lifecycle state
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// FrameHandler receives every parsed frame. It runs on the reader goroutine
// and must return quickly.
type FrameHandler func(subunit, function, value string)

// Options configures a Session
type Options struct {
	// Name describes the link in logs and errors (e.g. the port path)
	Name string

	OnFrame FrameHandler

	// OnError receives *ProtocolError values for @UNDEFINED/@RESTRICTED
	OnError func(err error)

	// OnDisconnect is called once per connection when it ends. err is nil
	// after Disconnect and wraps ErrConnectionLost otherwise.
	OnDisconnect func(err error)

	CommandInterval   time.Duration
	KeepAliveInterval time.Duration

	Logger zerolog.Logger
	Stats  *Statistics
	Tracer Tracer
}

// Session owns one YNCA link: the transport, the dispatcher goroutine and
// the reader goroutine. Handlers are fixed at construction so no line can
// arrive before they are in place.
type Session struct {
	dial   DialFunc
	opts   Options
	logger zerolog.Logger
	stats  *Statistics

	state atomic.Int32

	mu   sync.Mutex
	link *link
}

// link is the per-connection state
type link struct {
	id         string
	transport  LineTransport
	queue      *CommandQueue
	dispatcher *Dispatcher
	cancel     context.CancelFunc
	logger     zerolog.Logger

	closing  atomic.Bool
	lostOnce sync.Once
	wg       sync.WaitGroup
}

// NewSession creates a disconnected session that opens its link with dial
func NewSession(dial DialFunc, opts Options) *Session {
	if opts.CommandInterval <= 0 {
		opts.CommandInterval = DefaultCommandInterval
	}
	if opts.KeepAliveInterval <= 0 {
		opts.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if opts.Stats == nil {
		opts.Stats = NewStatistics()
	}

	logger := opts.Logger
	if opts.Name != "" {
		logger = logger.With().Str("link", opts.Name).Logger()
	}

	return &Session{
		dial:   dial,
		opts:   opts,
		logger: logger,
		stats:  opts.Stats,
	}
}

// State returns the lifecycle state
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Stats returns the session's traffic counters
func (s *Session) Stats() *Statistics {
	return s.stats
}

// ConnectionID returns the id of the current connection, or "" when disconnected
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == nil {
		return ""
	}
	return s.link.id
}

// Connect opens the transport and starts the reader and dispatcher.
//
// A receiver in standby drops the first command it gets after waking, so a
// keep-alive is written ahead of anything the caller sends.
func (s *Session) Connect(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	conn, err := s.dial(ctx)
	if err != nil {
		s.state.Store(int32(StateDisconnected))
		return &OpenError{Target: s.opts.Name, Err: err}
	}

	id := uuid.NewString()
	logger := s.logger.With().Str("conn", id).Logger()
	workerCtx, cancel := context.WithCancel(context.Background())

	l := &link{
		id:        id,
		transport: NewLineTransport(conn),
		queue:     NewCommandQueue(),
		cancel:    cancel,
		logger:    logger,
	}
	l.dispatcher = NewDispatcher(l.transport, l.queue, DispatcherConfig{
		CommandInterval:   s.opts.CommandInterval,
		KeepAliveInterval: s.opts.KeepAliveInterval,
		ConnectionID:      id,
		Logger:            logger,
		Stats:             s.stats,
		Tracer:            s.opts.Tracer,
		KeepAliveFirst:    true,
	})

	s.mu.Lock()
	s.link = l
	s.mu.Unlock()
	s.state.Store(int32(StateConnected))

	l.wg.Add(2)
	go s.runDispatcher(workerCtx, l)
	go s.readLoop(l)

	logger.Info().Msg("port opened")
	return nil
}

// Disconnect closes the link. Pending commands are discarded and nothing
// further is written. It waits for both goroutines to exit or ctx to expire,
// so it must not be called from a FrameHandler.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	l := s.link
	s.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}

	s.state.CompareAndSwap(int32(StateConnected), int32(StateClosing))
	l.closing.Store(true)
	s.connectionLost(l, nil)

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Put queues a set command. It never blocks; when no link is up the
// command is dropped and counted.
func (s *Session) Put(subunit, function, parameter string) {
	s.enqueue(FormatCommand(subunit, function, parameter))
}

// Get queues a query for the current value of function
func (s *Session) Get(subunit, function string) {
	s.Put(subunit, function, QueryParameter)
}

// Send queues a prepared Command
func (s *Session) Send(cmd Command) {
	s.enqueue(cmd.Line())
}

func (s *Session) enqueue(line string) {
	s.mu.Lock()
	l := s.link
	s.mu.Unlock()

	if l == nil || !l.queue.Push(line) {
		s.stats.RecordDropped(1)
		s.logger.Debug().Str("line", line).Msg("not connected, command dropped")
	}
}

func (s *Session) runDispatcher(ctx context.Context, l *link) {
	defer l.wg.Done()
	if err := l.dispatcher.Run(ctx); err != nil {
		s.connectionLost(l, err)
	}
}

func (s *Session) readLoop(l *link) {
	defer l.wg.Done()
	for {
		line, err := l.transport.ReadLine()
		if errors.Is(err, ErrLineTooLong) {
			// Garbage from other equipment on the link, not a failure
			s.stats.RecordInbound(nil, nil)
			l.logger.Debug().Msg("ignoring overlong line")
			continue
		}
		if err != nil {
			s.connectionLost(l, err)
			return
		}
		s.handleLine(l, line)
	}
}

func (s *Session) handleLine(l *link, line string) {
	frame, err := ParseLine(line)
	s.stats.RecordInbound(frame, err)

	if s.opts.Tracer != nil {
		s.opts.Tracer.Record(TraceEvent{
			ConnectionID: l.id,
			Time:         time.Now(),
			Direction:    DirectionIn,
			Kind:         traceKindOf(frame, err),
			Line:         line,
		})
	}

	switch {
	case err != nil:
		l.logger.Warn().Err(err).Msg("receiver rejected a command")
		if s.opts.OnError != nil {
			s.opts.OnError(err)
		}
	case frame != nil:
		l.logger.Trace().
			Str("subunit", frame.Subunit()).
			Str("function", frame.Function()).
			Str("value", frame.Value()).
			Msg("frame")
		if s.opts.OnFrame != nil {
			s.opts.OnFrame(frame.Subunit(), frame.Function(), frame.Value())
		}
	default:
		l.logger.Debug().Str("line", line).Msg("ignoring unrecognized line")
	}
}

// connectionLost tears the link down exactly once, whichever goroutine
// notices first. The queue is closed before the transport so the dispatcher
// cannot write another line.
func (s *Session) connectionLost(l *link, cause error) {
	l.lostOnce.Do(func() {
		dropped := l.queue.Close()
		s.stats.RecordDropped(dropped)
		l.cancel()
		_ = l.transport.Close()

		s.mu.Lock()
		if s.link == l {
			s.link = nil
		}
		s.mu.Unlock()
		s.state.Store(int32(StateDisconnected))

		var notify error
		if l.closing.Load() {
			l.logger.Info().Int("dropped", dropped).Msg("port closed")
		} else {
			notify = fmt.Errorf("%w: %v", ErrConnectionLost, cause)
			l.logger.Error().Err(cause).Int("dropped", dropped).Msg("connection lost")
		}

		if s.opts.OnDisconnect != nil {
			s.opts.OnDisconnect(notify)
		}
	})
}
