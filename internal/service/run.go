// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"

	"github.com/oklog/run"
)

// Run runs all Runners until the first one returns or ctx is done. Each
// Runner that is also a Shutdowner is shut down when the group is
// interrupted. Shutdowners that do not run, like the session manager, are
// shut down last so that they outlive the services using them.
func Run(outer context.Context, logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(outer)
	defer cancel()

	var g run.Group
	idle := make([]Service, 0, len(services))
	for _, svc := range services {
		runner, ok := svc.(Runner)
		if !ok {
			idle = append(idle, svc)
			continue
		}

		g.Add(
			func() error {
				logger.Info("Running service", "service", svc.Name())
				return runner.Run(ctx)
			},
			func(err error) {
				cancel()
				if err != nil {
					logger.Warn("service terminated", "service", svc.Name(), "reason", err)
				}
				if s, ok := svc.(Shutdowner); ok {
					logger.Info("shutting down", "service", svc.Name())
					if err := s.Shutdown(); err != nil {
						logger.Warn("service shutdown failed with error", "service", svc.Name(), "error", err)
					}
				}
			},
		)
	}

	err := g.Run()
	if shutdownErr := shutdownAll(logger, idle); shutdownErr != nil {
		logger.Warn("cleanup after run failed", "error", shutdownErr)
	}
	return err
}
