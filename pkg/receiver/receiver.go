// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package receiver keeps a state projection of a YNCA receiver zone and
// turns high level actions into YNCA commands.
package receiver

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/Thermoquad/yncastat/pkg/ynca"
	"github.com/rs/zerolog"
)

// Sender queues commands on a link. *ynca.Session implements it.
type Sender interface {
	Send(cmd ynca.Command)
}

// State is a snapshot of what the receiver last reported
type State struct {
	Power      bool
	Muted      bool
	Volume     float64 // device units
	Input      string
	InputNames map[string]string // input id -> device-reported name

	ModelName string // from @SYS:MODELNAME
	ZoneName  string // user-assigned name of this zone
}

// Options configures a Receiver
type Options struct {
	// Zone is the subunit this receiver controls (default MAIN)
	Zone string

	// Name replaces the model name in Name()
	Name string

	MinVolume float64
	MaxVolume float64

	// SourceNames overrides display names per input id
	SourceNames map[string]string
	// SourceIgnore hides inputs from SourceList
	SourceIgnore []string

	// OnUpdate is called after every received frame with the new state.
	// It runs on the session's reader goroutine.
	OnUpdate func(State)

	Logger zerolog.Logger
}

// Receiver is the consumer of a session's frames
type Receiver struct {
	sender Sender
	opts   Options
	logger zerolog.Logger
	ignore map[string]bool

	mu    sync.RWMutex
	state State
}

// New creates a receiver client that sends its commands through sender
func New(sender Sender, opts Options) *Receiver {
	if opts.Zone == "" {
		opts.Zone = ynca.SubunitMain
	}
	if opts.MinVolume == 0 && opts.MaxVolume == 0 {
		opts.MinVolume = DefaultMinVolume
		opts.MaxVolume = DefaultMaxVolume
	}

	ignore := make(map[string]bool, len(opts.SourceIgnore))
	for _, id := range opts.SourceIgnore {
		ignore[id] = true
	}

	return &Receiver{
		sender: sender,
		opts:   opts,
		logger: opts.Logger.With().Str("zone", opts.Zone).Logger(),
		ignore: ignore,
		state: State{
			Volume:     opts.MinVolume,
			InputNames: make(map[string]string),
		},
	}
}

// Zone returns the controlled subunit
func (r *Receiver) Zone() string {
	return r.opts.Zone
}

// Refresh asks the receiver for the zone basics, the input names and the
// zone name
func (r *Receiver) Refresh() {
	r.sender.Send(ynca.BasicQuery(r.opts.Zone))
	r.sender.Send(ynca.InputNameQuery())
	r.sender.Send(ynca.Query(r.opts.Zone, ynca.FuncZoneName))
}

// Name is the configured name or the model name, followed by the zone
// name, e.g. "RX-V671 Living Room"
func (r *Receiver) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device := r.opts.Name
	if device == "" {
		device = r.state.ModelName
	}
	zone := r.state.ZoneName
	if zone == "" {
		zone = ynca.FormatSubunit(r.opts.Zone)
	}
	if device == "" {
		return zone
	}
	return device + " " + zone
}

// HandleFrame updates the state projection from one frame and notifies
// OnUpdate. Its signature matches ynca.FrameHandler.
func (r *Receiver) HandleFrame(subunit, function, value string) {
	r.logger.Trace().Str("subunit", subunit).Str("function", function).Str("value", value).Msg("update")

	r.mu.Lock()
	r.apply(subunit, function, value)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if r.opts.OnUpdate != nil {
		r.opts.OnUpdate(snapshot)
	}
}

// apply folds one frame into the state. Caller holds mu.
func (r *Receiver) apply(subunit, function, value string) {
	ownZone := subunit == r.opts.Zone

	switch {
	case function == ynca.FuncPower:
		if ownZone || subunit == ynca.SubunitSystem {
			r.state.Power = value == ynca.ValueOn
		}
	case function == ynca.FuncInput:
		if ownZone {
			r.state.Input = value
		}
	case function == ynca.FuncMute:
		// Attenuation levels (Att -20dB, ...) count as muted
		if ownZone {
			r.state.Muted = value != ynca.ValueOff
		}
	case function == ynca.FuncVolume:
		if !ownZone {
			return
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			r.logger.Warn().Err(err).Str("value", value).Msg("unparseable volume")
			return
		}
		r.state.Volume = v
	case function == ynca.FuncModelName:
		if subunit == ynca.SubunitSystem {
			r.state.ModelName = value
		}
	case function == ynca.FuncZoneName:
		if ownZone {
			r.state.ZoneName = value
		}
	case strings.HasPrefix(function, ynca.FuncInputName):
		id := strings.TrimPrefix(function, ynca.FuncInputName)
		if id != "" {
			r.state.InputNames[id] = value
		}
	}
}

// State returns a copy of the current state
func (r *Receiver) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Receiver) snapshotLocked() State {
	s := r.state
	s.InputNames = maps.Clone(r.state.InputNames)
	return s
}

// VolumeLevel returns the current volume on a 0..1 scale
func (r *Receiver) VolumeLevel() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ToNormalized(r.state.Volume, r.opts.MinVolume, r.opts.MaxVolume)
}

// SourceList returns the known input ids, sorted, without ignored ones
func (r *Receiver) SourceList() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.state.InputNames))
	for id := range r.state.InputNames {
		if !r.ignore[id] {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// DisplayName returns the configured name for an input, then the name the
// receiver reported, then the id itself.
func (r *Receiver) DisplayName(id string) string {
	if name, ok := r.opts.SourceNames[id]; ok && name != "" {
		return name
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name := r.state.InputNames[id]; name != "" {
		return name
	}
	return id
}

// TurnOn powers the receiver on
func (r *Receiver) TurnOn() {
	r.sender.Send(ynca.PowerCommand(ynca.SubunitSystem, true))
}

// TurnOff puts the receiver in standby
func (r *Receiver) TurnOff() {
	r.sender.Send(ynca.PowerCommand(ynca.SubunitSystem, false))
}

// SetVolumeLevel sets the volume from a 0..1 level
func (r *Receiver) SetVolumeLevel(level float64) {
	db := ToDevice(clampLevel(level), r.opts.MinVolume, r.opts.MaxVolume)
	r.sender.Send(ynca.VolumeCommand(r.opts.Zone, db))
}

// VolumeUp raises the volume one receiver step
func (r *Receiver) VolumeUp() {
	r.sender.Send(ynca.VolumeStepCommand(r.opts.Zone, true))
}

// VolumeDown lowers the volume one receiver step
func (r *Receiver) VolumeDown() {
	r.sender.Send(ynca.VolumeStepCommand(r.opts.Zone, false))
}

// Mute mutes (true) or unmutes (false) the zone
func (r *Receiver) Mute(mute bool) {
	r.sender.Send(ynca.MuteCommand(r.opts.Zone, mute))
}

// SelectSource switches input. source may be an input id or a display name.
func (r *Receiver) SelectSource(source string) error {
	id, ok := r.resolveSource(source)
	if !ok {
		return fmt.Errorf("unknown source %q", source)
	}
	r.sender.Send(ynca.InputCommand(r.opts.Zone, id))
	return nil
}

func (r *Receiver) resolveSource(source string) (string, bool) {
	for _, id := range r.SourceList() {
		if id == source || r.DisplayName(id) == source {
			return id, true
		}
	}
	// Inputs the receiver never named can still be selected by id
	if source != "" && !r.ignore[source] && !strings.ContainsAny(source, "@:=\r\n") {
		return source, true
	}
	return "", false
}
