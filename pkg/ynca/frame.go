// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ynca

import (
	"strings"
	"time"
)

// Frame is one parsed @SUBUNIT:FUNCTION=VALUE message received from the device
type Frame struct {
	subunit   string
	function  string
	value     string
	timestamp time.Time
}

// NewFrame creates a frame stamped with the current time
func NewFrame(subunit, function, value string) *Frame {
	return &Frame{
		subunit:   subunit,
		function:  function,
		value:     value,
		timestamp: time.Now(),
	}
}

// Subunit returns the addressed device partition (MAIN, SYS, ...)
func (f *Frame) Subunit() string {
	return f.subunit
}

// Function returns the property name
func (f *Frame) Function() string {
	return f.function
}

// Value returns everything after the first '=' of the line
func (f *Frame) Value() string {
	return f.value
}

// Timestamp returns the parse time
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Line re-serializes the frame in wire form (without terminator)
func (f *Frame) Line() string {
	return FormatCommand(f.subunit, f.function, f.value)
}

func (f *Frame) String() string {
	return f.Line()
}

// ParseLine parses one received line.
//
// It returns a Frame for @SUBUNIT:FUNCTION=VALUE, a *ProtocolError for the
// @UNDEFINED and @RESTRICTED replies, and (nil, nil) for anything else.
// Unrecognized lines are not errors: other equipment may share the link.
func ParseLine(line string) (*Frame, error) {
	switch line {
	case lineUndefined:
		return nil, &ProtocolError{Kind: UndefinedCommand, Line: line}
	case lineRestricted:
		return nil, &ProtocolError{Kind: RestrictedCommand, Line: line}
	}

	if len(line) == 0 || line[0] != FramePrefix {
		return nil, nil
	}
	rest := line[1:]

	sep := strings.IndexByte(rest, SubunitSep)
	if sep <= 0 {
		return nil, nil
	}
	subunit := rest[:sep]
	rest = rest[sep+1:]

	eq := strings.IndexByte(rest, ValueSep)
	if eq <= 0 {
		return nil, nil
	}

	return NewFrame(subunit, rest[:eq], rest[eq+1:]), nil
}

// FormatCommand serializes a command to @SUBUNIT:FUNCTION=PARAMETER.
//
// No escaping is done. Fields must not contain '@', ':', '=' or line
// terminators; see Command.Validate for a checked variant.
func FormatCommand(subunit, function, parameter string) string {
	var b strings.Builder
	b.Grow(len(subunit) + len(function) + len(parameter) + 3)
	b.WriteByte(FramePrefix)
	b.WriteString(subunit)
	b.WriteByte(SubunitSep)
	b.WriteString(function)
	b.WriteByte(ValueSep)
	b.WriteString(parameter)
	return b.String()
}

// FormatQuery serializes a query for the current value of function
func FormatQuery(subunit, function string) string {
	return FormatCommand(subunit, function, QueryParameter)
}
