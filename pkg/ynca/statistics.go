// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ynca

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics counts link traffic. It is updated from both the reader and the
// dispatcher goroutine and is safe for concurrent use.
type Statistics struct {
	mu        sync.Mutex
	startTime time.Time

	linesReceived     atomic.Uint64
	frames            atomic.Uint64
	undefinedErrors   atomic.Uint64
	restrictedErrors  atomic.Uint64
	unrecognizedLines atomic.Uint64
	commandsSent      atomic.Uint64
	keepAlivesSent    atomic.Uint64
	commandsDropped   atomic.Uint64
	writeErrors       atomic.Uint64
}

// StatisticsSnapshot is a point-in-time copy of Statistics
type StatisticsSnapshot struct {
	Elapsed           time.Duration
	LinesReceived     uint64
	Frames            uint64
	UndefinedErrors   uint64
	RestrictedErrors  uint64
	UnrecognizedLines uint64
	CommandsSent      uint64
	KeepAlivesSent    uint64
	CommandsDropped   uint64
	WriteErrors       uint64

	// Rates (calculated)
	ReceiveRate float64 // lines/sec
	SendRate    float64 // writes/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// RecordInbound accounts for one received line and how it was classified
func (s *Statistics) RecordInbound(frame *Frame, err error) {
	s.linesReceived.Add(1)
	switch {
	case IsProtocolError(err, UndefinedCommand):
		s.undefinedErrors.Add(1)
	case IsProtocolError(err, RestrictedCommand):
		s.restrictedErrors.Add(1)
	case frame != nil:
		s.frames.Add(1)
	default:
		s.unrecognizedLines.Add(1)
	}
}

// RecordWrite accounts for one line written to the transport
func (s *Statistics) RecordWrite(keepAlive bool, err error) {
	if err != nil {
		s.writeErrors.Add(1)
		return
	}
	if keepAlive {
		s.keepAlivesSent.Add(1)
		return
	}
	s.commandsSent.Add(1)
}

// RecordDropped accounts for commands discarded on disconnect
func (s *Statistics) RecordDropped(n int) {
	if n > 0 {
		s.commandsDropped.Add(uint64(n))
	}
}

// Snapshot copies the counters and calculates rates
func (s *Statistics) Snapshot() StatisticsSnapshot {
	s.mu.Lock()
	elapsed := time.Since(s.startTime)
	s.mu.Unlock()

	snap := StatisticsSnapshot{
		Elapsed:           elapsed,
		LinesReceived:     s.linesReceived.Load(),
		Frames:            s.frames.Load(),
		UndefinedErrors:   s.undefinedErrors.Load(),
		RestrictedErrors:  s.restrictedErrors.Load(),
		UnrecognizedLines: s.unrecognizedLines.Load(),
		CommandsSent:      s.commandsSent.Load(),
		KeepAlivesSent:    s.keepAlivesSent.Load(),
		CommandsDropped:   s.commandsDropped.Load(),
		WriteErrors:       s.writeErrors.Load(),
	}
	snap.CalculateRates()
	return snap
}

// CalculateRates calculates receive and send rates
func (s *StatisticsSnapshot) CalculateRates() {
	elapsed := s.Elapsed.Seconds()
	if elapsed > 0 {
		s.ReceiveRate = float64(s.LinesReceived) / elapsed
		s.SendRate = float64(s.CommandsSent+s.KeepAlivesSent) / elapsed
	}
}

// ErrorFrames returns the number of @UNDEFINED and @RESTRICTED replies
func (s StatisticsSnapshot) ErrorFrames() uint64 {
	return s.UndefinedErrors + s.RestrictedErrors
}

// String returns a formatted statistics summary
func (s StatisticsSnapshot) String() string {
	var framePercent float64
	if s.LinesReceived > 0 {
		framePercent = float64(s.Frames) * 100.0 / float64(s.LinesReceived)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", s.Elapsed.Seconds())
	result += fmt.Sprintf("Lines Received:  %8d\n", s.LinesReceived)
	result += fmt.Sprintf("Frames:          %8d (%.1f%%)\n", s.Frames, framePercent)

	if s.ErrorFrames() > 0 {
		result += fmt.Sprintf("Error Frames:    %8d\n", s.ErrorFrames())
		if s.UndefinedErrors > 0 {
			result += fmt.Sprintf("  Undefined:        %5d\n", s.UndefinedErrors)
		}
		if s.RestrictedErrors > 0 {
			result += fmt.Sprintf("  Restricted:       %5d\n", s.RestrictedErrors)
		}
	}
	if s.UnrecognizedLines > 0 {
		result += fmt.Sprintf("Unrecognized:    %8d\n", s.UnrecognizedLines)
	}

	result += fmt.Sprintf("Commands Sent:   %8d\n", s.CommandsSent)
	result += fmt.Sprintf("Keep-alives:     %8d\n", s.KeepAlivesSent)
	if s.CommandsDropped > 0 {
		result += fmt.Sprintf("Dropped:         %8d\n", s.CommandsDropped)
	}
	if s.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d\n", s.WriteErrors)
	}

	result += fmt.Sprintf("Receive Rate:    %8.1f lines/sec\n", s.ReceiveRate)
	result += fmt.Sprintf("Send Rate:       %8.1f lines/sec\n", s.SendRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	s.startTime = time.Now()
	s.mu.Unlock()

	s.linesReceived.Store(0)
	s.frames.Store(0)
	s.undefinedErrors.Store(0)
	s.restrictedErrors.Store(0)
	s.unrecognizedLines.Store(0)
	s.commandsSent.Store(0)
	s.keepAlivesSent.Store(0)
	s.commandsDropped.Store(0)
	s.writeErrors.Store(0)
}
