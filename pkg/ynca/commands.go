// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ynca

import (
	"fmt"
	"strings"
)

// Command is a caller intent to set or query one function of a subunit
type Command struct {
	Subunit   string
	Function  string
	Parameter string
}

// Query creates a command that asks for the current value of function
func Query(subunit, function string) Command {
	return Command{Subunit: subunit, Function: function, Parameter: QueryParameter}
}

// Line returns the wire form without terminator
func (c Command) Line() string {
	return FormatCommand(c.Subunit, c.Function, c.Parameter)
}

// IsQuery reports whether the command is a get rather than a put
func (c Command) IsQuery() bool {
	return c.Parameter == QueryParameter
}

func (c Command) String() string {
	return c.Line()
}

// Validate checks the fields against the wire delimiters.
// Session.Put does not call this; it is meant for untrusted input.
func (c Command) Validate() error {
	if c.Subunit == "" {
		return fmt.Errorf("empty subunit")
	}
	if c.Function == "" {
		return fmt.Errorf("empty function")
	}
	if strings.ContainsAny(c.Subunit, lineDelimiters) {
		return fmt.Errorf("subunit %q contains a reserved character", c.Subunit)
	}
	if strings.ContainsAny(c.Function, lineDelimiters) {
		return fmt.Errorf("function %q contains a reserved character", c.Function)
	}
	if strings.ContainsAny(c.Parameter, "\r\n") {
		return fmt.Errorf("parameter %q contains a line terminator", c.Parameter)
	}
	if len(c.Line()) > MaxLineLength {
		return fmt.Errorf("command exceeds %d bytes", MaxLineLength)
	}
	return nil
}

// KeepAliveQuery is the query sent on idle links. MODELNAME is always
// present and has no side effects.
func KeepAliveQuery() Command {
	return Query(SubunitSystem, FuncModelName)
}

// BasicQuery asks a zone for PWR, SLEEP, VOL, MUTE, INP, STRAIGHT, ENHANCER
// and SOUNDPRG in one round trip.
func BasicQuery(zone string) Command {
	return Query(zone, FuncBasic)
}

// InputNameQuery asks for the user-assigned names of all inputs
func InputNameQuery() Command {
	return Query(SubunitSystem, FuncInputName)
}

// PowerCommand switches a subunit on or to standby
func PowerCommand(subunit string, on bool) Command {
	value := ValueStandby
	if on {
		value = ValueOn
	}
	return Command{Subunit: subunit, Function: FuncPower, Parameter: value}
}

// MuteCommand mutes or unmutes a zone
func MuteCommand(zone string, mute bool) Command {
	value := ValueOff
	if mute {
		value = ValueOn
	}
	return Command{Subunit: zone, Function: FuncMute, Parameter: value}
}

// VolumeCommand sets an absolute volume in device units (dB).
// The value should already be on the receiver's 0.5 step grid.
func VolumeCommand(zone string, db float64) Command {
	return Command{Subunit: zone, Function: FuncVolume, Parameter: fmt.Sprintf("%.1f", db)}
}

// VolumeStepCommand moves the volume one step up or down
func VolumeStepCommand(zone string, up bool) Command {
	value := ValueDown
	if up {
		value = ValueUp
	}
	return Command{Subunit: zone, Function: FuncVolume, Parameter: value}
}

// InputCommand selects the input of a zone by its identifier (HDMI1, AV2, ...)
func InputCommand(zone, input string) Command {
	return Command{Subunit: zone, Function: FuncInput, Parameter: input}
}
