// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

var (
	ErrAlreadyStarted = errors.New("tracker already started")
	ErrNotStarted     = errors.New("tracker not started")
	ErrAlreadyStopped = errors.New("tracker already stopped")
)

// Config describes one measurement session handed to a Factory
type Config struct {
	ProjectName string
	OutputDir   string
	OutputFile  string
	Interval    time.Duration
	Mode        string
}

// Tracker accumulates energy and emissions between Start and Stop. A
// Tracker is good for a single session: it can be started once and stopped
// once.
type Tracker interface {
	Start() error

	// Stop ends the session, persists the raw measurement record and returns
	// the cumulative emissions in kg CO2e
	Stop() (float64, error)
}

// Factory creates a Tracker for a session
type Factory interface {
	New(cfg Config) (Tracker, error)
}

// FactoryFn adapts a function to a Factory
type FactoryFn func(cfg Config) (Tracker, error)

func (f FactoryFn) New(cfg Config) (Tracker, error) {
	return f(cfg)
}

type TrackerOpts struct {
	logger         *slog.Logger
	clock          clock.WithTicker
	emissionFactor float64
	share          ShareReader
}

// TrackerOptionFn sets one or more options in TrackerOpts
type TrackerOptionFn func(*TrackerOpts)

// WithLogger sets the logger of the trackers
func WithLogger(logger *slog.Logger) TrackerOptionFn {
	return func(o *TrackerOpts) {
		o.logger = logger
	}
}

// WithClock sets the clock driving sampling
func WithClock(c clock.WithTicker) TrackerOptionFn {
	return func(o *TrackerOpts) {
		o.clock = c
	}
}

// WithEmissionFactor sets the carbon intensity in kg CO2e per kWh
func WithEmissionFactor(f float64) TrackerOptionFn {
	return func(o *TrackerOpts) {
		o.emissionFactor = f
	}
}

// WithShareReader sets the reader used for "process" tracking mode
func WithShareReader(r ShareReader) TrackerOptionFn {
	return func(o *TrackerOpts) {
		o.share = r
	}
}

// MeterFactory creates trackers integrating the energy of a Meter
type MeterFactory struct {
	meter Meter
	opts  TrackerOpts
}

var _ Factory = (*MeterFactory)(nil)

const defaultEmissionFactor = 0.475

// NewMeterFactory returns a Factory whose trackers sample meter
func NewMeterFactory(meter Meter, applyOpts ...TrackerOptionFn) *MeterFactory {
	opts := TrackerOpts{
		logger:         slog.Default(),
		clock:          clock.RealClock{},
		emissionFactor: defaultEmissionFactor,
	}
	for _, apply := range applyOpts {
		apply(&opts)
	}
	return &MeterFactory{meter: meter, opts: opts}
}

func (f *MeterFactory) New(cfg Config) (Tracker, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("invalid sampling interval: %s", cfg.Interval)
	}
	if cfg.OutputFile == "" {
		return nil, fmt.Errorf("output file not set")
	}

	var share ShareReader
	if cfg.Mode == "process" {
		if f.opts.share == nil {
			return nil, fmt.Errorf("process tracking mode requires a share reader")
		}
		share = f.opts.share
	}

	return &energyTracker{
		cfg:    cfg,
		meter:  f.meter,
		share:  share,
		factor: f.opts.emissionFactor,
		clock:  f.opts.clock,
		logger: f.opts.logger.With("tracker", cfg.ProjectName),
		last:   map[zoneKey]Energy{},
		done:   make(chan struct{}),
	}, nil
}

type zoneKey struct {
	name  string
	index int
}

// energyTracker integrates zone counters on every tick
type energyTracker struct {
	cfg    Config
	meter  Meter
	share  ShareReader
	factor float64
	clock  clock.WithTicker
	logger *slog.Logger

	wg   sync.WaitGroup
	done chan struct{}

	mu        sync.Mutex
	started   bool
	stopped   bool
	startedAt time.Time
	last      map[zoneKey]Energy
	joules    float64
}

func (t *energyTracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return ErrAlreadyStarted
	}
	if err := t.meter.Init(); err != nil {
		return fmt.Errorf("failed to initialize %s meter: %w", t.meter.Name(), err)
	}
	// baseline readings
	if err := t.sampleLocked(); err != nil {
		return err
	}

	t.started = true
	t.startedAt = t.clock.Now()
	ticker := t.clock.NewTicker(t.cfg.Interval)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				t.mu.Lock()
				if err := t.sampleLocked(); err != nil {
					t.logger.Warn("Failed to sample energy", "error", err)
				}
				t.mu.Unlock()
			case <-t.done:
				return
			}
		}
	}()

	t.logger.Debug("Tracker started", "meter", t.meter.Name(), "interval", t.cfg.Interval, "mode", t.cfg.Mode)
	return nil
}

func (t *energyTracker) Stop() (float64, error) {
	t.mu.Lock()
	switch {
	case !t.started:
		t.mu.Unlock()
		return 0, ErrNotStarted
	case t.stopped:
		t.mu.Unlock()
		return 0, ErrAlreadyStopped
	}
	t.stopped = true
	t.mu.Unlock()

	close(t.done)
	t.wg.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.sampleLocked(); err != nil {
		t.logger.Warn("Failed to take final energy sample", "error", err)
	}

	now := t.clock.Now()
	duration := now.Sub(t.startedAt).Seconds()
	energyKWh := JoulesToKWh(t.joules)
	emissions := energyKWh * t.factor

	rate := 0.0
	if duration > 0 {
		rate = emissions / duration
	}

	record := Record{
		Timestamp:      now.UTC().Format("2006-01-02T15:04:05"),
		ProjectName:    t.cfg.ProjectName,
		Duration:       duration,
		Emissions:      emissions,
		EmissionsRate:  rate,
		EnergyConsumed: energyKWh,
		TrackingMode:   t.cfg.Mode,
	}
	path := filepath.Join(t.cfg.OutputDir, t.cfg.OutputFile)
	if err := AppendRecord(path, record); err != nil {
		return emissions, fmt.Errorf("failed to persist measurement record %s: %w", path, err)
	}

	t.logger.Debug("Tracker stopped", "energy_kwh", energyKWh, "co2e_kg", emissions, "record", path)
	return emissions, nil
}

// sampleLocked reads every zone and adds the energy consumed since the
// previous reading. The first reading of a zone only sets its baseline.
func (t *energyTracker) sampleLocked() error {
	zones, err := t.meter.Zones()
	if err != nil {
		return fmt.Errorf("failed to read zones: %w", err)
	}

	var consumed Energy
	for _, zone := range zones {
		cur, err := zone.Energy()
		if err != nil {
			return fmt.Errorf("failed to read zone %s: %w", zone.Name(), err)
		}
		key := zoneKey{zone.Name(), zone.Index()}
		if prev, ok := t.last[key]; ok {
			consumed += delta(prev, cur, zone.MaxEnergy())
		}
		t.last[key] = cur
	}

	ratio := 1.0
	if t.share != nil {
		if ratio, err = t.share.Share(); err != nil {
			return fmt.Errorf("failed to read process cpu share: %w", err)
		}
	}
	t.joules += consumed.Joules() * ratio
	return nil
}
