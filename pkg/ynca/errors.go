// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ynca

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportOpen is wrapped by every error returned from Connect when
	// the underlying link could not be established.
	ErrTransportOpen = errors.New("ynca: cannot open transport")

	// ErrConnectionLost is passed to OnDisconnect when the transport closed
	// or failed without a Disconnect call.
	ErrConnectionLost = errors.New("ynca: connection lost")

	ErrNotConnected     = errors.New("ynca: not connected")
	ErrAlreadyConnected = errors.New("ynca: already connected")

	ErrQueueClosed  = errors.New("ynca: command queue closed")
	ErrQueueTimeout = errors.New("ynca: command queue wait timed out")

	// ErrLineTooLong is returned by ReadLine for a line longer than the
	// read buffer. The line has been discarded and the transport is still
	// usable.
	ErrLineTooLong = errors.New("ynca: line too long")
)

// OpenError reports a failed connection attempt
type OpenError struct {
	Target string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrTransportOpen, e.Target, e.Err)
}

// Unwrap exposes both ErrTransportOpen and the cause to errors.Is
func (e *OpenError) Unwrap() []error {
	return []error{ErrTransportOpen, e.Err}
}

// ErrorKind classifies an error frame sent by the receiver
type ErrorKind int

const (
	UndefinedCommand ErrorKind = iota + 1
	RestrictedCommand
)

func (k ErrorKind) String() string {
	switch k {
	case UndefinedCommand:
		return "undefined command"
	case RestrictedCommand:
		return "restricted command"
	default:
		return fmt.Sprintf("unknown error kind %d", int(k))
	}
}

// ProtocolError is raised when the receiver rejects a command.
//
// YNCA does not tag responses, so the error cannot be tied to the command
// that caused it. Callers only know that some recently sent command failed.
type ProtocolError struct {
	Kind ErrorKind
	Line string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ynca: %s (%s)", e.Kind, e.Line)
}

// IsProtocolError reports whether err is a ProtocolError of the given kind
func IsProtocolError(err error, kind ErrorKind) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Kind == kind
}
