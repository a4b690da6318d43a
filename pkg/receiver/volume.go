// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package receiver

import "math"

// Volume range in device units (dB)
const (
	DefaultMinVolume = -80.5
	DefaultMaxVolume = -20.0

	// The receiver only accepts half-dB steps
	VolumeStep = 0.5
)

// ToNormalized maps a device volume onto 0..1 for the given range
func ToNormalized(value, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return (value - min) / (max - min)
}

// ToDevice maps a 0..1 level onto the device range and snaps it to the
// nearest VolumeStep.
func ToDevice(level, min, max float64) float64 {
	raw := min + level*(max-min)
	return math.Round(raw/VolumeStep) * VolumeStep
}

// clampLevel keeps a UI level inside 0..1
func clampLevel(level float64) float64 {
	return math.Max(0, math.Min(1, level))
}
