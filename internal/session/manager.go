// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sustainable-computing-io/carbon-tracker/config"
	"github.com/sustainable-computing-io/carbon-tracker/internal/device"
	"github.com/sustainable-computing-io/carbon-tracker/internal/service"
	"k8s.io/utils/clock"
	"k8s.io/utils/ptr"
)

// Manager owns the single measurement session of the process
type Manager struct {
	logger  *slog.Logger
	clock   clock.Clock
	env     config.Env
	devices device.Factory
	waiter  *Waiter
	pid     int

	// mu guards everything below; slow work is never done while holding it
	mu      sync.Mutex
	tracker device.Tracker
	state   *State
	last    *Summary
}

var (
	_ service.Service    = (*Manager)(nil)
	_ service.Shutdowner = (*Manager)(nil)
)

// NewManager creates a Manager starting trackers from devices
func NewManager(devices device.Factory, applyOpts ...OptionFn) *Manager {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	logger := opts.logger.With("service", "session")
	waiter := NewWaiter(opts.clock, logger)
	waiter.stat = opts.stat

	return &Manager{
		logger:  logger,
		clock:   opts.clock,
		env:     opts.env,
		devices: devices,
		waiter:  waiter,
		pid:     opts.pid,
	}
}

func (m *Manager) Name() string {
	return "session"
}

// Shutdown stops a running session
func (m *Manager) Shutdown() error {
	m.logger.Info("shutting down session manager")
	_, err := m.Stop(StopOptions{Reason: ReasonAtExit})
	return err
}

// Running reports whether a session is active
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracker != nil
}

// Start begins a session. When one is already running it is left alone and
// reported, unless opts.Force is set, in which case it is stopped first.
func (m *Manager) Start(opts StartOptions) (*StartResult, error) {
	for {
		m.mu.Lock()
		if m.tracker == nil {
			break
		}
		if !opts.Force {
			state := m.state.Clone()
			m.mu.Unlock()
			return &StartResult{Status: StatusAlreadyRunning, State: state}, nil
		}
		m.mu.Unlock()

		m.logger.Info("Restarting running session")
		if _, err := m.Stop(StopOptions{Reason: ReasonForceRestart}); err != nil {
			m.logger.Warn("Failed to stop session before restart", "error", err)
		}
	}
	defer m.mu.Unlock()

	scenario := firstNonEmpty(opts.Scenario, m.env.Scenario())
	resultsDir := firstNonEmpty(opts.ResultsDir, m.env.ResultsDir())
	interval := opts.MeasureInterval
	if interval <= 0 {
		interval = m.env.MeasureInterval()
	}

	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory %s: %w", resultsDir, err)
	}

	now := m.clock.Now()
	outputFile := fmt.Sprintf("emissions_%s_%d_%d.csv", fileSafe(scenario), m.pid, now.Unix())

	tracker, err := m.devices.New(device.Config{
		ProjectName: m.env.ProjectName() + "-" + scenario,
		OutputDir:   resultsDir,
		OutputFile:  outputFile,
		Interval:    interval,
		Mode:        m.env.TrackingMode(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker: %w", err)
	}
	if err := tracker.Start(); err != nil {
		return nil, fmt.Errorf("failed to start tracker: %w", err)
	}

	m.tracker = tracker
	m.state = (&State{
		Scenario:        scenario,
		ResultsDir:      resultsDir,
		OutputFile:      outputFile,
		StartedAt:       now,
		MeasureInterval: interval.Seconds(),
		Metadata:        opts.Metadata,
	}).Clone()

	m.logger.Info("Session started",
		"scenario", scenario, "output", filepath.Join(resultsDir, outputFile), "interval", interval)
	return &StartResult{Status: StatusStarted, State: m.state.Clone()}, nil
}

// Stop ends the running session and returns its summary, or nil when no
// session is running. The session is no longer running once Stop is entered,
// even if stopping the tracker fails.
func (m *Manager) Stop(opts StopOptions) (*Summary, error) {
	m.mu.Lock()
	tracker, state := m.tracker, m.state
	m.tracker, m.state = nil, nil
	m.mu.Unlock()

	if tracker == nil {
		return nil, nil
	}

	reason := firstNonEmpty(opts.Reason, ReasonManual)
	co2e, err := tracker.Stop()
	ended := m.clock.Now()
	if err != nil {
		return nil, fmt.Errorf("failed to stop tracker of scenario %s: %w", state.Scenario, err)
	}

	var emissionsCSV *string
	var energy *float64
	if state.OutputFile != "" {
		path := filepath.Join(state.ResultsDir, state.OutputFile)
		emissionsCSV = ptr.To(path)
		energy = ParseEnergyKWh(path)
	}

	var summaryCSV *string
	var requests *int64
	if opts.SummaryCSV != "" {
		window := m.env.StabilityWindow()
		if opts.StabilityWindow != nil {
			window = *opts.StabilityWindow
		}
		m.waiter.Wait(opts.SummaryCSV, window, opts.WaitTimeout)
		if n := ParseTotalRequests(opts.SummaryCSV); n > 0 {
			requests = ptr.To(n)
		}
		summaryCSV = ptr.To(opts.SummaryCSV)
	}

	co2eKg := ptr.To(co2e)
	summary := &Summary{
		Scenario:            state.Scenario,
		CO2eKg:              co2eKg,
		TotalEnergyKWh:      energy,
		DurationSeconds:     ended.Sub(state.StartedAt).Seconds(),
		StartedAt:           state.StartedAt.UTC().Format(isoFormat),
		EndedAt:             ended.UTC().Format(isoFormat),
		Timestamp:           ended.UTC().Format(isoFormat),
		TotalRequests:       requests,
		EnergyPerRequestKWh: EnergyPerRequest(energy, requests),
		MeasureInterval:     state.MeasureInterval,
		EmissionsCSV:        emissionsCSV,
		SummaryCSV:          summaryCSV,
		Reason:              reason,
		Readable:            NewReadable(energy, co2eKg, requests),
	}

	if opts.WriteJSON != "" {
		if err := WriteJSON(opts.WriteJSON, summary); err != nil {
			m.logger.Warn("Failed to persist summary", "error", err)
		}
	}

	m.mu.Lock()
	m.last = summary
	m.mu.Unlock()

	m.logger.Info("Session stopped",
		"scenario", summary.Scenario, "reason", reason, "duration", summary.DurationSeconds)
	return summary.Clone(), nil
}

// Status returns a snapshot of the manager
func (m *Manager) Status() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Report{
		Running:     m.tracker != nil,
		State:       m.state.Clone(),
		LastSummary: m.last.Clone(),
	}
}

// LastSummary returns the most recent summary or nil
func (m *Manager) LastSummary() *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.Clone()
}

// Clone returns a copy of s; the pointed to values of a Summary are never
// modified so they are shared
func (s *Summary) Clone() *Summary {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func fileSafe(s string) string {
	return strings.NewReplacer(" ", "_", "/", "_", `\`, "_").Replace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
