// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ynca implements the YNCA line protocol used by Yamaha receivers.
//
// YNCA is an ASCII, line-oriented, half-duplex protocol. Every message has the
// form @SUBUNIT:FUNCTION=VALUE and the receiver pushes unsolicited status
// updates on the same channel that carries command responses. This package
// provides the frame codec, a rate-limited command dispatcher with idle
// keep-alives, and a Session that owns the transport lifecycle.
package ynca

import "time"

// Link parameters
const (
	DefaultBaudRate = 9600

	// Minimum spacing between two transmitted lines
	DefaultCommandInterval = 100 * time.Millisecond

	// The receiver drops into standby after StandbyTimeout of silence and
	// swallows the next command, so send a keep-alive well before that.
	DefaultKeepAliveInterval = 30 * time.Second
	StandbyTimeout           = 40 * time.Second
)

// Wire delimiters
const (
	FramePrefix    = '@'
	SubunitSep     = ':'
	ValueSep       = '='
	LineTerminator = "\r\n"
	QueryParameter = "?"
	MaxLineLength  = 256
	lineUndefined  = "@UNDEFINED"
	lineRestricted = "@RESTRICTED"
	lineDelimiters = "@:=\r\n"
)

// Subunits
const (
	SubunitSystem = "SYS"
	SubunitMain   = "MAIN"
	SubunitZone2  = "ZONE2"
	SubunitZone3  = "ZONE3"
	SubunitZone4  = "ZONE4"
	SubunitTuner  = "TUN"
)

// Functions
const (
	FuncPower     = "PWR"
	FuncInput     = "INP"
	FuncMute      = "MUTE"
	FuncVolume    = "VOL"
	FuncInputName = "INPNAME"
	FuncModelName = "MODELNAME"
	FuncVersion   = "VERSION"
	FuncBasic     = "BASIC"
	FuncSleep     = "SLEEP"
	FuncStraight  = "STRAIGHT"
	FuncEnhancer  = "ENHANCER"
	FuncSoundPrg  = "SOUNDPRG"
	FuncZoneName  = "ZONENAME"
)

// Well-known values
const (
	ValueOn      = "On"
	ValueOff     = "Off"
	ValueStandby = "Standby"
	ValueUp      = "Up"
	ValueDown    = "Down"
)
