// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"
	"syscall"

	"github.com/sustainable-computing-io/carbon-tracker/config"
	"github.com/sustainable-computing-io/carbon-tracker/internal/control"
	"github.com/sustainable-computing-io/carbon-tracker/internal/exporter/prometheus"
	"github.com/sustainable-computing-io/carbon-tracker/internal/exporter/stdout"
	"github.com/sustainable-computing-io/carbon-tracker/internal/server"
	"github.com/sustainable-computing-io/carbon-tracker/internal/service"
	"github.com/sustainable-computing-io/carbon-tracker/internal/session"
	"k8s.io/utils/ptr"
)

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	services, err := createServices(cfg, logger)
	if err != nil {
		return err
	}
	if err := service.Init(logger, services); err != nil {
		return err
	}
	logger.Info("Starting carbon tracker")
	return service.Run(ctx, logger, services)
}

func createServices(cfg *config.Config, logger *slog.Logger) ([]service.Service, error) {
	logger.Debug("Creating all services")
	env := config.NewEnv(cfg)

	manager := session.NewManager(newDeviceFactory(cfg, logger),
		session.WithLogger(logger),
		session.WithEnv(env),
	)
	autoStart := control.NewAutoStarter(manager, env, logger)

	apiServer := server.NewAPIServer(
		server.WithLogger(logger),
		server.WithListen(cfg.Web.ListenAddresses, cfg.Web.Config),
		server.WithMiddleware(autoStart.Middleware),
	)

	services := []service.Service{
		manager,
		apiServer,
		control.NewHandler(apiServer, manager, env, logger),
	}

	if ptr.Deref(cfg.Exporter.Prometheus.Enabled, false) {
		collectors, err := prometheus.CreateCollectors(manager,
			prometheus.WithLogger(logger),
			prometheus.WithProcFSPath(cfg.Device.ProcFS),
			prometheus.WithEmissionFactor(cfg.Device.EmissionFactor),
		)
		if err != nil {
			return nil, err
		}
		services = append(services, prometheus.NewExporter(apiServer,
			prometheus.WithLogger(logger),
			prometheus.WithDebugCollectors(cfg.Exporter.Prometheus.DebugCollectors),
			prometheus.WithCollectors(collectors),
		))
	}

	if ptr.Deref(cfg.Exporter.Stdout.Enabled, false) {
		services = append(services, stdout.NewExporter(manager,
			stdout.WithLogger(logger),
			stdout.WithInterval(cfg.Exporter.Stdout.Interval),
		))
	}

	if ptr.Deref(cfg.Debug.Pprof.Enabled, false) {
		services = append(services, server.NewPprof(apiServer))
	}

	services = append(services,
		server.NewHealthProbe(apiServer, services, logger),
		service.NewSignalHandler(logger, os.Interrupt, syscall.SIGTERM),
	)
	return services, nil
}
