// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"path/filepath"
	"sync"
)

// NOTE: the fake meter is meant for development and tests only

const fakeRaplPath = "/sys/class/powercap/intel-rapl"

// fakeEnergyZone advances its counter by a fixed increment on every read
type fakeEnergyZone struct {
	name      string
	index     int
	path      string
	increment Energy
	maxEnergy Energy

	mu     sync.Mutex
	energy Energy
}

var _ EnergyZone = (*fakeEnergyZone)(nil)

func (z *fakeEnergyZone) Name() string {
	return z.name
}

func (z *fakeEnergyZone) Index() int {
	return z.index
}

func (z *fakeEnergyZone) Path() string {
	return z.path
}

func (z *fakeEnergyZone) Energy() (Energy, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	z.energy = (z.energy + z.increment) % z.maxEnergy
	return z.energy, nil
}

func (z *fakeEnergyZone) MaxEnergy() Energy {
	return z.maxEnergy
}

type fakeMeter struct {
	zones []EnergyZone
}

var _ Meter = (*fakeMeter)(nil)

// FakeOptFn configures the fake meter
type FakeOptFn func(*fakeMeter)

// WithFakeIncrement sets the energy every zone advances by per read
func WithFakeIncrement(e Energy) FakeOptFn {
	return func(m *fakeMeter) {
		for _, z := range m.zones {
			if fz, ok := z.(*fakeEnergyZone); ok {
				fz.increment = e
			}
		}
	}
}

// WithFakeMaxEnergy sets the counter value at which zones wrap around
func WithFakeMaxEnergy(e Energy) FakeOptFn {
	return func(m *fakeMeter) {
		for _, z := range m.zones {
			if fz, ok := z.(*fakeEnergyZone); ok {
				fz.maxEnergy = e
			}
		}
	}
}

// NewFakeMeter returns a meter with a package and a dram zone
func NewFakeMeter(opts ...FakeOptFn) Meter {
	m := &fakeMeter{}
	for i, name := range []string{ZonePackage, ZoneDRAM} {
		m.zones = append(m.zones, &fakeEnergyZone{
			name:      name,
			index:     i,
			path:      filepath.Join(fakeRaplPath, fmt.Sprintf("energy_%s", name)),
			increment: 5 * Joule,
			maxEnergy: 262143328850,
		})
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *fakeMeter) Name() string {
	return "fake"
}

func (m *fakeMeter) Init() error {
	return nil
}

func (m *fakeMeter) Zones() ([]EnergyZone, error) {
	return m.zones, nil
}
