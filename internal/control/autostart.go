// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/sustainable-computing-io/carbon-tracker/config"
	"github.com/sustainable-computing-io/carbon-tracker/internal/session"
)

// AutoStarter starts a session on the first request served when auto-start
// is enabled. Once a session has been started it never starts another, even
// after that session is stopped. Failures are logged and retried on the next
// request.
type AutoStarter struct {
	logger   *slog.Logger
	sessions Sessions
	env      config.Env

	mu   sync.Mutex
	done bool
}

// NewAutoStarter returns an AutoStarter for sessions
func NewAutoStarter(sessions Sessions, env config.Env, logger *slog.Logger) *AutoStarter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoStarter{
		logger:   logger.With("service", "auto-start"),
		sessions: sessions,
		env:      env,
	}
}

// Ensure starts the session unless it has been started already or
// auto-start is disabled
func (a *AutoStarter) Ensure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done || !a.env.AutoStartEnabled() {
		return
	}

	res, err := a.sessions.Start(session.StartOptions{
		Scenario:        a.env.AutoStartScenario(),
		MeasureInterval: a.env.AutoStartInterval(),
	})
	if err != nil {
		a.logger.Error("Failed to auto-start measurement session", "error", err)
		return
	}
	a.done = true
	a.logger.Info("Auto-started measurement session", "status", res.Status, "scenario", res.State.Scenario)
}

// Middleware calls Ensure before every request
func (a *AutoStarter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.Ensure()
		next.ServeHTTP(w, r)
	})
}
