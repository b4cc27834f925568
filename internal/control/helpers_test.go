// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/sustainable-computing-io/carbon-tracker/config"
	"github.com/sustainable-computing-io/carbon-tracker/internal/device"
	"github.com/sustainable-computing-io/carbon-tracker/internal/session"
	testingclock "k8s.io/utils/clock/testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEnv(t *testing.T, vars map[string]string) config.Env {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Session.ResultsDir = t.TempDir()
	return config.NewEnvWithLookup(cfg, config.MapLookup(vars))
}

// newTestManager returns a manager measuring a fake meter on a fake clock
func newTestManager(t *testing.T, env config.Env) *session.Manager {
	t.Helper()
	clk := testingclock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	factory := device.NewMeterFactory(device.NewFakeMeter(),
		device.WithClock(clk),
		device.WithLogger(discardLogger()),
		device.WithShareReader(constShare(1)),
	)
	m := session.NewManager(factory,
		session.WithClock(clk),
		session.WithEnv(env),
		session.WithLogger(discardLogger()),
	)
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

type constShare float64

func (c constShare) Share() (float64, error) { return float64(c), nil }

// recordingAPI collects registered handlers
type recordingAPI struct {
	mux *http.ServeMux
}

func newRecordingAPI() *recordingAPI {
	return &recordingAPI{mux: http.NewServeMux()}
}

func (r *recordingAPI) Name() string { return "recording-api" }

func (r *recordingAPI) Register(endpoint, _, _ string, handler http.Handler) error {
	r.mux.Handle(endpoint, handler)
	return nil
}
