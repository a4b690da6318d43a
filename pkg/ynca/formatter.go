// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ynca

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")
	return fmt.Sprintf("[%s] %-6s %-14s = %s\n",
		timestamp, f.subunit, FormatFunction(f.function), FormatValue(f.function, f.value))
}

// FormatProtocolError formats a rejected-command reply
func FormatProtocolError(err *ProtocolError) string {
	return fmt.Sprintf("%s: the receiver rejected a recent command\n", strings.ToUpper(err.Kind.String()))
}

// FormatSubunit returns the human-readable name for a subunit
func FormatSubunit(subunit string) string {
	switch subunit {
	case SubunitSystem:
		return "System"
	case SubunitMain:
		return "Main Zone"
	case SubunitZone2:
		return "Zone 2"
	case SubunitZone3:
		return "Zone 3"
	case SubunitZone4:
		return "Zone 4"
	case SubunitTuner:
		return "Tuner"
	default:
		return subunit
	}
}

// FormatFunction returns the human-readable name for a function
func FormatFunction(function string) string {
	switch function {
	case FuncPower:
		return "Power"
	case FuncInput:
		return "Input"
	case FuncMute:
		return "Mute"
	case FuncVolume:
		return "Volume"
	case FuncModelName:
		return "Model"
	case FuncVersion:
		return "Firmware"
	case FuncSleep:
		return "Sleep"
	case FuncStraight:
		return "Straight"
	case FuncEnhancer:
		return "Enhancer"
	case FuncSoundPrg:
		return "Sound Program"
	case FuncZoneName:
		return "Zone Name"
	}

	if id, ok := strings.CutPrefix(function, FuncInputName); ok && id != "" {
		return "Input Name " + id
	}
	return function
}

// FormatValue decorates values with units where the function has one
func FormatValue(function, value string) string {
	if function == FuncVolume && value != ValueUp && value != ValueDown {
		return value + " dB"
	}
	return value
}
