// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ynca

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction of a traced line
type Direction uint8

const (
	DirectionIn Direction = iota + 1
	DirectionOut
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "?"
	}
}

// TraceKind classifies a traced line
type TraceKind uint8

const (
	TraceCommand TraceKind = iota + 1
	TraceKeepAlive
	TraceFrame
	TraceError
	TraceUnrecognized
)

func (k TraceKind) String() string {
	switch k {
	case TraceCommand:
		return "COMMAND"
	case TraceKeepAlive:
		return "KEEPALIVE"
	case TraceFrame:
		return "FRAME"
	case TraceError:
		return "ERROR"
	case TraceUnrecognized:
		return "UNRECOGNIZED"
	default:
		return "UNKNOWN"
	}
}

// TraceEvent is one line that crossed the link
type TraceEvent struct {
	ConnectionID string    `cbor:"1,keyasint"`
	Time         time.Time `cbor:"2,keyasint"`
	Direction    Direction `cbor:"3,keyasint"`
	Kind         TraceKind `cbor:"4,keyasint"`
	Line         string    `cbor:"5,keyasint"`
}

// Tracer receives every line the session reads or writes.
// Record is called from the reader and dispatcher goroutines.
type Tracer interface {
	Record(event TraceEvent)
}

var (
	traceEncMode cbor.EncMode
	traceDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	traceEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create trace CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}
	traceDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create trace CBOR decoder mode: %v", err))
	}
}

// TraceWriter appends trace events to w as a CBOR sequence
type TraceWriter struct {
	mu      sync.Mutex
	encoder *cbor.Encoder
	err     error
}

// NewTraceWriter creates a tracer writing to w
func NewTraceWriter(w io.Writer) *TraceWriter {
	return &TraceWriter{encoder: traceEncMode.NewEncoder(w)}
}

// Record encodes the event. After the first write error further events are
// dropped; Err reports it.
func (t *TraceWriter) Record(event TraceEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err != nil {
		return
	}
	t.err = t.encoder.Encode(event)
}

// Err returns the first encoding error, if any
func (t *TraceWriter) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// TraceReader decodes a CBOR sequence written by TraceWriter
type TraceReader struct {
	decoder *cbor.Decoder
}

// NewTraceReader creates a reader over r
func NewTraceReader(r io.Reader) *TraceReader {
	return &TraceReader{decoder: traceDecMode.NewDecoder(r)}
}

// Next returns the next event, or io.EOF at the end of the trace
func (r *TraceReader) Next() (TraceEvent, error) {
	var event TraceEvent
	if err := r.decoder.Decode(&event); err != nil {
		if errors.Is(err, io.EOF) {
			return TraceEvent{}, io.EOF
		}
		return TraceEvent{}, fmt.Errorf("decode trace event: %w", err)
	}
	return event, nil
}

// traceKindOf classifies a received line for tracing
func traceKindOf(frame *Frame, err error) TraceKind {
	switch {
	case err != nil:
		return TraceError
	case frame != nil:
		return TraceFrame
	default:
		return TraceUnrecognized
	}
}
