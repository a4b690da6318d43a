// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Thermoquad/yncastat/pkg/receiver"
	"github.com/Thermoquad/yncastat/pkg/ynca"
)

// Config is the resolved CLI configuration: defaults, then the config
// file, then command line flags.
type Config struct {
	// Name replaces the model name in the status and TUI headers
	Name string

	Port     string
	Baud     int
	URL      string
	Username string

	Zone      string
	MinVolume float64
	MaxVolume float64

	CommandInterval   time.Duration
	KeepAliveInterval time.Duration

	LogLevel string

	SourceNames  map[string]string
	SourceIgnore []string
	ZoneIgnore   []string
}

type fileConfig struct {
	Name              string            `toml:"name"`
	Port              string            `toml:"port"`
	Baud              int               `toml:"baud"`
	URL               string            `toml:"url"`
	Username          string            `toml:"username"`
	Zone              string            `toml:"zone"`
	MinVolume         float64           `toml:"min_volume"`
	MaxVolume         float64           `toml:"max_volume"`
	CommandInterval   string            `toml:"command_interval"`
	KeepAliveInterval string            `toml:"keep_alive_interval"`
	LogLevel          string            `toml:"log_level"`
	SourceNames       map[string]string `toml:"source_names"`
	SourceIgnore      []string          `toml:"source_ignore"`
	ZoneIgnore        []string          `toml:"zone_ignore"`
}

// knownZones are the subunits the control TUI can switch between
var knownZones = []string{ynca.SubunitMain, ynca.SubunitZone2, ynca.SubunitZone3, ynca.SubunitZone4}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() Config {
	return Config{
		Baud:              ynca.DefaultBaudRate,
		Zone:              ynca.SubunitMain,
		MinVolume:         receiver.DefaultMinVolume,
		MaxVolume:         receiver.DefaultMaxVolume,
		CommandInterval:   ynca.DefaultCommandInterval,
		KeepAliveInterval: ynca.DefaultKeepAliveInterval,
		LogLevel:          "warn",
		SourceNames:       map[string]string{},
	}
}

// LoadConfig reads a TOML config file over the defaults
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("username") {
		cfg.Username = strings.TrimSpace(raw.Username)
	}
	if meta.IsDefined("zone") {
		cfg.Zone = strings.ToUpper(strings.TrimSpace(raw.Zone))
	}
	if meta.IsDefined("min_volume") {
		cfg.MinVolume = raw.MinVolume
	}
	if meta.IsDefined("max_volume") {
		cfg.MaxVolume = raw.MaxVolume
	}

	if meta.IsDefined("command_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.CommandInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse command_interval: %w", err)
		}
		cfg.CommandInterval = d
	}

	if meta.IsDefined("keep_alive_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.KeepAliveInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse keep_alive_interval: %w", err)
		}
		cfg.KeepAliveInterval = d
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("source_names") {
		for id, name := range raw.SourceNames {
			cfg.SourceNames[strings.TrimSpace(id)] = strings.TrimSpace(name)
		}
	}
	if meta.IsDefined("source_ignore") {
		cfg.SourceIgnore = normalizeList(raw.SourceIgnore, false)
	}
	if meta.IsDefined("zone_ignore") {
		cfg.ZoneIgnore = normalizeList(raw.ZoneIgnore, true)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside a session
func (c Config) Validate() error {
	if c.Baud <= 0 {
		return fmt.Errorf("baud must be positive, got %d", c.Baud)
	}
	if c.MinVolume >= c.MaxVolume {
		return fmt.Errorf("min_volume (%.1f) must be below max_volume (%.1f)", c.MinVolume, c.MaxVolume)
	}
	if c.CommandInterval <= 0 {
		return fmt.Errorf("command_interval must be positive")
	}
	if c.KeepAliveInterval <= 0 || c.KeepAliveInterval >= ynca.StandbyTimeout {
		return fmt.Errorf("keep_alive_interval must be between 0 and %s, got %s", ynca.StandbyTimeout, c.KeepAliveInterval)
	}
	if c.Zone == "" {
		return fmt.Errorf("zone must not be empty")
	}
	if slices.Contains(c.ZoneIgnore, c.Zone) {
		return fmt.Errorf("zone %s is listed in zone_ignore", c.Zone)
	}
	return nil
}

// Zones returns the zones the TUI offers, configured zone first
func (c Config) Zones() []string {
	zones := []string{c.Zone}
	for _, z := range knownZones {
		if z != c.Zone && !slices.Contains(c.ZoneIgnore, z) {
			zones = append(zones, z)
		}
	}
	return zones
}

// ReceiverOptions builds receiver options for one zone
func (c Config) ReceiverOptions(zone string) receiver.Options {
	return receiver.Options{
		Zone:         zone,
		Name:         c.Name,
		MinVolume:    c.MinVolume,
		MaxVolume:    c.MaxVolume,
		SourceNames:  c.SourceNames,
		SourceIgnore: c.SourceIgnore,
	}
}

func normalizeList(in []string, upper bool) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if upper {
			v = strings.ToUpper(v)
		}
		out = append(out, v)
	}
	return out
}
