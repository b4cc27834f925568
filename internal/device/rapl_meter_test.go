// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockZone struct {
	name   string
	index  int
	energy Energy
	err    error
}

func (z mockZone) Name() string            { return z.name }
func (z mockZone) Index() int              { return z.index }
func (z mockZone) Path() string            { return "/sys/class/powercap/intel-rapl:" + z.name }
func (z mockZone) Energy() (Energy, error) { return z.energy, z.err }
func (z mockZone) MaxEnergy() Energy       { return 1_000_000 }

type mockZoneReader struct {
	mock.Mock
}

func (m *mockZoneReader) Zones() ([]EnergyZone, error) {
	args := m.Called()
	zones, _ := args.Get(0).([]EnergyZone)
	return zones, args.Error(1)
}

func zoneNames(zones []EnergyZone) []string {
	names := make([]string, 0, len(zones))
	for _, z := range zones {
		names = append(names, z.Name())
	}
	return names
}

func TestRaplMeter_Zones(t *testing.T) {
	tests := []struct {
		name  string
		zones []EnergyZone
		want  []string
	}{{
		name: "psys wins over package",
		zones: []EnergyZone{
			mockZone{name: "package"}, mockZone{name: "core"}, mockZone{name: "psys"},
		},
		want: []string{"psys"},
	}, {
		name: "package and dram of every socket",
		zones: []EnergyZone{
			mockZone{name: "package", index: 0}, mockZone{name: "core", index: 0},
			mockZone{name: "dram", index: 0}, mockZone{name: "package", index: 1},
		},
		want: []string{"package", "dram", "package"},
	}, {
		name:  "unknown zones are used as is",
		zones: []EnergyZone{mockZone{name: "core"}, mockZone{name: "uncore"}},
		want:  []string{"core", "uncore"},
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reader := &mockZoneReader{}
			reader.On("Zones").Return(tc.zones, nil).Once()
			m := &raplMeter{reader: reader, logger: discardLogger()}

			zones, err := m.Zones()
			require.NoError(t, err)
			assert.Equal(t, tc.want, zoneNames(zones))

			// cached on second call
			zones, err = m.Zones()
			require.NoError(t, err)
			assert.Equal(t, tc.want, zoneNames(zones))
			reader.AssertExpectations(t)
		})
	}
}

func TestRaplMeter_Init(t *testing.T) {
	t.Run("no zones", func(t *testing.T) {
		reader := &mockZoneReader{}
		reader.On("Zones").Return([]EnergyZone{}, nil)
		m := &raplMeter{reader: reader, logger: discardLogger()}
		assert.Error(t, m.Init())
	})

	t.Run("reader error", func(t *testing.T) {
		reader := &mockZoneReader{}
		reader.On("Zones").Return(nil, errors.New("permission denied"))
		m := &raplMeter{reader: reader, logger: discardLogger()}
		assert.Error(t, m.Init())
	})

	t.Run("unreadable zone", func(t *testing.T) {
		reader := &mockZoneReader{}
		reader.On("Zones").Return([]EnergyZone{mockZone{name: "package", err: errors.New("EACCES")}}, nil)
		m := &raplMeter{reader: reader, logger: discardLogger()}
		assert.Error(t, m.Init())
	})

	t.Run("readable zone", func(t *testing.T) {
		reader := &mockZoneReader{}
		reader.On("Zones").Return([]EnergyZone{mockZone{name: "package", energy: 42}}, nil)
		m := WithZoneReader(reader)
		meter := &raplMeter{logger: discardLogger()}
		m(meter)
		assert.NoError(t, meter.Init())
		assert.Equal(t, "rapl", meter.Name())
	})
}

func TestNewRaplMeter_MissingSysfs(t *testing.T) {
	_, err := NewRaplMeter("/does/not/exist")
	assert.Error(t, err)
}

func TestFakeMeter(t *testing.T) {
	m := NewFakeMeter(WithFakeIncrement(10), WithFakeMaxEnergy(25))
	require.NoError(t, m.Init())
	assert.Equal(t, "fake", m.Name())

	zones, err := m.Zones()
	require.NoError(t, err)
	require.Len(t, zones, 2)

	pkg := zones[0]
	assert.Equal(t, ZonePackage, pkg.Name())
	assert.Equal(t, Energy(25), pkg.MaxEnergy())

	readings := []Energy{}
	for range 3 {
		e, err := pkg.Energy()
		require.NoError(t, err)
		readings = append(readings, e)
	}
	assert.Equal(t, []Energy{10, 20, 5}, readings)
}

func TestShareOf(t *testing.T) {
	assert.Equal(t, 0.0, shareOf(1, 0))
	assert.Equal(t, 0.0, shareOf(-1, 10))
	assert.InDelta(t, 0.25, shareOf(1, 4), 1e-12)
	assert.Equal(t, 1.0, shareOf(5, 4))
}
