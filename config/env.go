// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"k8s.io/utils/ptr"
)

// Environment variables understood by the session control plane
const (
	EnvResultsDir      = "CODECARBON_RESULTS_DIR"
	EnvMeasureInterval = "CODECARBON_MEASURE_INTERVAL"
	EnvStability       = "SUMMARY_STABILITY_SECONDS"
	EnvProjectName     = "CODECARBON_PROJECT_NAME"
	EnvScenario        = "CODECARBON_SCENARIO"
	EnvK6Service       = "K6_SERVICE"
	EnvTrackingMode    = "CODECARBON_TRACKING_MODE"
	EnvAutoStart       = "CODECARBON_ENABLED"
	EnvControlURL      = "CODECARBON_CONTROL_URL"
	EnvControlTimeout  = "CODECARBON_CONTROL_TIMEOUT"
	EnvControlToken    = "CODECARBON_CONTROL_TOKEN"
	EnvHTTPControl     = "CODECARBON_HTTP_CONTROL"
)

// LookupFn has the signature of os.LookupEnv
type LookupFn func(key string) (string, bool)

// Env resolves session settings from environment variables, falling back to
// a Config. Variables are looked up on every call so that changes made after
// start-up are honoured.
type Env struct {
	cfg    *Config
	lookup LookupFn
}

// NewEnv returns an Env reading the process environment
func NewEnv(cfg *Config) Env {
	return NewEnvWithLookup(cfg, os.LookupEnv)
}

// NewEnvWithLookup returns an Env using lookup instead of os.LookupEnv
func NewEnvWithLookup(cfg *Config, lookup LookupFn) Env {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	return Env{cfg: cfg, lookup: lookup}
}

// MapLookup adapts a map to a LookupFn
func MapLookup(m map[string]string) LookupFn {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// Config returns the underlying configuration
func (e Env) Config() *Config {
	return e.cfg
}

// str returns the trimmed value of key when it is set to a non-empty value
func (e Env) str(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e Env) seconds(key string) (time.Duration, bool) {
	v, ok := e.str(key)
	if !ok {
		return 0, false
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// ResultsDir is the directory raw emission records are written to
func (e Env) ResultsDir() string {
	if v, ok := e.str(EnvResultsDir); ok {
		return v
	}
	return firstNonEmpty(e.cfg.Session.ResultsDir, DefaultResultsDir)
}

// MeasureInterval is the sampling interval handed to the energy tracker
func (e Env) MeasureInterval() time.Duration {
	if d, ok := e.seconds(EnvMeasureInterval); ok && d > 0 {
		return d
	}
	if e.cfg.Session.MeasureInterval > 0 {
		return e.cfg.Session.MeasureInterval
	}
	return DefaultMeasureInterval
}

// StabilityWindow is the quiet period a workload summary must not grow for
func (e Env) StabilityWindow() time.Duration {
	if v, ok := e.str(EnvStability); ok {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if e.cfg.Session.StabilityWindow >= 0 {
		return e.cfg.Session.StabilityWindow
	}
	return DefaultStabilityWindow
}

// ProjectName is the label prefix reported to the tracker
func (e Env) ProjectName() string {
	if v, ok := e.str(EnvProjectName); ok {
		return v
	}
	return firstNonEmpty(e.cfg.Session.ProjectName, DefaultProjectName)
}

// Scenario is the label used when a caller does not name one
func (e Env) Scenario() string {
	if v, ok := e.str(EnvScenario); ok {
		return v
	}
	if v, ok := e.str(EnvK6Service); ok {
		return v
	}
	return firstNonEmpty(e.cfg.Session.Scenario, DefaultScenario)
}

// TrackingMode returns the tracker mode; without an explicit setting it is
// "process" when the HTTP control surface is in use and "machine" otherwise
func (e Env) TrackingMode() string {
	if v, ok := e.str(EnvTrackingMode); ok {
		return strings.ToLower(v)
	}
	if e.cfg.Session.TrackingMode != "" {
		return e.cfg.Session.TrackingMode
	}
	if e.ControlEnabled() {
		return TrackingModeProcess
	}
	return TrackingModeMachine
}

// AutoStartEnabled reports whether a session starts on the first request
func (e Env) AutoStartEnabled() bool {
	if v, ok := e.lookup(EnvAutoStart); ok {
		return IsTrue(v)
	}
	return ptr.Deref(e.cfg.AutoStart.Enabled, false)
}

// AutoStartScenario returns the configured auto-start scenario; empty means
// the regular scenario default applies
func (e Env) AutoStartScenario() string {
	return e.cfg.AutoStart.Scenario
}

// AutoStartInterval returns the configured auto-start interval; zero means
// the regular interval default applies
func (e Env) AutoStartInterval() time.Duration {
	return e.cfg.AutoStart.MeasureInterval
}

// ControlURL is the base URL of the remote control surface, without a
// trailing slash. An empty result means no remote is configured.
func (e Env) ControlURL() string {
	if v, ok := e.lookup(EnvControlURL); ok {
		return strings.TrimRight(strings.TrimSpace(v), "/")
	}
	return strings.TrimRight(e.cfg.Control.URL, "/")
}

// ControlTimeout bounds every relayed control request
func (e Env) ControlTimeout() time.Duration {
	if d, ok := e.seconds(EnvControlTimeout); ok && d > 0 {
		return d
	}
	if e.cfg.Control.Timeout > 0 {
		return e.cfg.Control.Timeout
	}
	return DefaultControlTimeout
}

// ControlToken is the shared secret of the control surface; empty disables
// authorization
func (e Env) ControlToken() string {
	if v, ok := e.str(EnvControlToken); ok {
		return v
	}
	return e.cfg.Control.Token
}

// ControlEnabled reports whether commands should be relayed to the remote
// control surface
func (e Env) ControlEnabled() bool {
	if v, ok := e.lookup(EnvHTTPControl); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "off", "false", "no":
			return false
		}
	} else if !ptr.Deref(e.cfg.Control.Enabled, true) {
		return false
	}
	return e.ControlURL() != ""
}

// IsTrue reports whether s is one of the accepted truthy spellings
func IsTrue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "on":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
