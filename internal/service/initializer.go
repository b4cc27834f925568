// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Init initializes services in order. When one fails, the services already
// initialized are shut down in reverse order and the initialization error is
// returned joined with any shutdown errors.
func Init(logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.Default()
	}

	initialized := make([]Service, 0, len(services))
	for _, s := range services {
		srv, ok := s.(Initializer)
		if !ok {
			continue
		}

		logger.Info("Initializing service", "service", s.Name())
		if err := srv.Init(); err != nil {
			initErr := fmt.Errorf("failed to initialize service %s: %w", s.Name(), err)
			return errors.Join(initErr, shutdownAll(logger, initialized))
		}
		initialized = append(initialized, s)
	}
	return nil
}

// shutdownAll shuts down every Shutdowner of services, last one first
func shutdownAll(logger *slog.Logger, services []Service) error {
	var errs []error
	for _, s := range slices.Backward(services) {
		srv, ok := s.(Shutdowner)
		if !ok {
			continue
		}
		logger.Info("shutting down", "service", s.Name())
		if err := srv.Shutdown(); err != nil {
			logger.Error("failed to shutdown service", "service", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("failed to shutdown service %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
