// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"maps"
	"time"
)

// Start outcomes
const (
	StatusStarted        = "started"
	StatusAlreadyRunning = "already-running"
)

// Stop reasons
const (
	ReasonManual       = "manual-stop"
	ReasonForceRestart = "force-restart"
	ReasonAtExit       = "atexit"
)

// isoFormat is the UTC layout of every timestamp in a Summary
const isoFormat = "2006-01-02T15:04:05Z"

// State describes the running session
type State struct {
	Scenario        string         `json:"scenario"`
	ResultsDir      string         `json:"results_dir"`
	OutputFile      string         `json:"output_file"`
	StartedAt       time.Time      `json:"started_at"`
	MeasureInterval float64        `json:"measure_interval"`
	Metadata        map[string]any `json:"metadata"`
}

// Clone returns a copy of s that shares nothing mutable with it
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Metadata = maps.Clone(s.Metadata)
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return &c
}

// Summary is the immutable result of a completed session. Optional values
// are nil when they could not be determined.
type Summary struct {
	Scenario            string   `json:"scenario"`
	CO2eKg              *float64 `json:"co2e_kg"`
	TotalEnergyKWh      *float64 `json:"total_energy_kwh"`
	DurationSeconds     float64  `json:"duration_seconds"`
	StartedAt           string   `json:"started_at"`
	EndedAt             string   `json:"ended_at"`
	Timestamp           string   `json:"timestamp"`
	TotalRequests       *int64   `json:"total_requests"`
	EnergyPerRequestKWh *float64 `json:"energy_per_request_kwh"`
	MeasureInterval     float64  `json:"measure_interval"`
	EmissionsCSV        *string  `json:"emissions_csv"`
	SummaryCSV          *string  `json:"summary_csv"`
	Reason              string   `json:"reason"`
	Readable            Readable `json:"readable"`
}

// Readable holds human friendly renderings of a Summary
type Readable struct {
	EnergyWh      *string `json:"energy_wh"`
	EnergyKJ      *string `json:"energy_kj"`
	EnergyKWh     *string `json:"energy_kwh"`
	CO2e          *string `json:"co2e"`
	PerRequestMWh *string `json:"per_request_mwh"`
	PerRequestUWh *string `json:"per_request_uwh"`
}

// StartOptions are the caller supplied parameters of a session. Zero values
// fall back to the configured defaults.
type StartOptions struct {
	Scenario        string
	ResultsDir      string
	MeasureInterval time.Duration
	Force           bool
	Metadata        map[string]any
}

// StartResult is returned by Manager.Start
type StartResult struct {
	Status string `json:"status"`
	State  *State `json:"state"`
}

// StopOptions are the caller supplied parameters of a stop
type StopOptions struct {
	// SummaryCSV is the workload summary to wait for and read requests from
	SummaryCSV string

	// StabilityWindow overrides the configured quiet period when set
	StabilityWindow *time.Duration

	// WaitTimeout bounds the stabilization wait; nil waits indefinitely
	WaitTimeout *time.Duration

	// WriteJSON persists the summary to this path when set
	WriteJSON string

	Reason string
}

// Report is a snapshot of the manager
type Report struct {
	Running     bool     `json:"running"`
	State       *State   `json:"state"`
	LastSummary *Summary `json:"last_summary"`
}

// MarshalJSON renders a missing state as an empty object
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	out := struct {
		plain
		State any `json:"state"`
	}{plain: plain(r), State: struct{}{}}
	if r.State != nil {
		out.State = r.State
	}
	return json.Marshal(out)
}

// ParseTime parses a summary timestamp
func ParseTime(s string) (time.Time, error) {
	return time.Parse(isoFormat, s)
}
