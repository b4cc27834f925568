// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/procfs/sysfs"
)

// raplMeter implements Meter using the powercap RAPL zones exposed in sysfs
type raplMeter struct {
	reader      zoneReader
	logger      *slog.Logger
	cachedZones []EnergyZone
}

var _ Meter = (*raplMeter)(nil)

// zoneReader lists the zones of a meter; it allows sysfs to be mocked in tests
type zoneReader interface {
	Zones() ([]EnergyZone, error)
}

type RaplOptionFn func(*raplMeter)

// WithZoneReader sets the reader used to enumerate zones
func WithZoneReader(r zoneReader) RaplOptionFn {
	return func(m *raplMeter) {
		m.reader = r
	}
}

// WithRaplLogger sets the logger of the meter
func WithRaplLogger(logger *slog.Logger) RaplOptionFn {
	return func(m *raplMeter) {
		m.logger = logger.With("meter", "rapl")
	}
}

// NewRaplMeter creates a meter reading RAPL zones under sysfsPath
func NewRaplMeter(sysfsPath string, opts ...RaplOptionFn) (*raplMeter, error) {
	fs, err := sysfs.NewFS(sysfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs %s: %w", sysfsPath, err)
	}

	m := &raplMeter{
		reader: sysfsRaplReader{fs: fs},
		logger: slog.Default().With("meter", "rapl"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *raplMeter) Name() string {
	return "rapl"
}

func (m *raplMeter) Init() error {
	zones, err := m.Zones()
	if err != nil {
		return err
	}
	// try reading the first zone and return the error
	_, err = zones[0].Energy()
	return err
}

// Zones returns psys when the platform exposes it, otherwise the package and
// dram zones of every socket. Core and uncore are sub-domains of package and
// are never summed alongside it.
func (m *raplMeter) Zones() ([]EnergyZone, error) {
	if len(m.cachedZones) != 0 {
		return m.cachedZones, nil
	}

	zones, err := m.reader.Zones()
	if err != nil {
		return nil, err
	} else if len(zones) == 0 {
		return nil, fmt.Errorf("no RAPL zones found")
	}

	m.cachedZones = selectZones(zones)
	names := make([]string, 0, len(m.cachedZones))
	for _, z := range m.cachedZones {
		names = append(names, fmt.Sprintf("%s-%d", z.Name(), z.Index()))
	}
	m.logger.Debug("Selected RAPL zones", "zones", names)
	return m.cachedZones, nil
}

func selectZones(zones []EnergyZone) []EnergyZone {
	var psys, pkgDram []EnergyZone
	for _, z := range zones {
		name := strings.ToLower(z.Name())
		switch {
		case strings.HasPrefix(name, ZonePSys):
			psys = append(psys, z)
		case strings.HasPrefix(name, ZonePackage), strings.HasPrefix(name, ZoneDRAM):
			pkgDram = append(pkgDram, z)
		}
	}

	switch {
	case len(psys) != 0:
		return psys
	case len(pkgDram) != 0:
		return pkgDram
	default:
		return zones
	}
}

type sysfsRaplReader struct {
	fs sysfs.FS
}

func (r sysfsRaplReader) Zones() ([]EnergyZone, error) {
	raplZones, err := sysfs.GetRaplZones(r.fs)
	if err != nil {
		return nil, fmt.Errorf("failed to read rapl zones: %w", err)
	}

	energyZones := make([]EnergyZone, 0, len(raplZones))
	for _, zone := range raplZones {
		energyZones = append(energyZones, sysfsRaplZone{zone})
	}
	return energyZones, nil
}

// sysfsRaplZone adapts sysfs.RaplZone to EnergyZone
type sysfsRaplZone struct {
	zone sysfs.RaplZone
}

func (s sysfsRaplZone) Name() string {
	return s.zone.Name
}

func (s sysfsRaplZone) Index() int {
	return s.zone.Index
}

func (s sysfsRaplZone) Path() string {
	return s.zone.Path
}

func (s sysfsRaplZone) Energy() (Energy, error) {
	mj, err := s.zone.GetEnergyMicrojoules()
	return Energy(mj), err
}

func (s sysfsRaplZone) MaxEnergy() Energy {
	return Energy(s.zone.MaxMicrojoules)
}
