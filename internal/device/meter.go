// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

// EnergyZone represents a measurable energy zone exposed by a meter, e.g. a
// RAPL package or dram domain.
type EnergyZone interface {
	// Name returns the zone name
	Name() string

	// Index returns the index of the zone
	Index() int

	// Path returns the path from which the energy usage value is being read
	Path() string

	// Energy returns the cumulative energy counter of the zone
	Energy() (Energy, error)

	// MaxEnergy returns the value at which Energy wraps around to zero
	MaxEnergy() Energy
}

// Meter provides the zones whose energy counters a Tracker integrates.
// The zones returned must not overlap so that their energy can be summed.
type Meter interface {
	// Name returns a string identifying the meter
	Name() string

	// Init checks that the meter can be read
	Init() error

	// Zones returns the zones to integrate
	Zones() ([]EnergyZone, error)
}

const (
	ZonePackage = "package"
	ZoneDRAM    = "dram"
	ZonePSys    = "psys"
)
