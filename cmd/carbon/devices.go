// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"sync"

	"github.com/sustainable-computing-io/carbon-tracker/config"
	"github.com/sustainable-computing-io/carbon-tracker/internal/device"
)

// newDeviceFactory returns a factory that opens the configured meter when
// the first tracker is created, so commands answered by a remote never touch
// the hardware
func newDeviceFactory(cfg *config.Config, logger *slog.Logger) device.Factory {
	var (
		mu      sync.Mutex
		factory *device.MeterFactory
	)
	return device.FactoryFn(func(c device.Config) (device.Tracker, error) {
		mu.Lock()
		defer mu.Unlock()
		if factory == nil {
			f, err := newMeterFactory(cfg, logger)
			if err != nil {
				return nil, err
			}
			factory = f
		}
		return factory.New(c)
	})
}

func newMeterFactory(cfg *config.Config, logger *slog.Logger) (*device.MeterFactory, error) {
	meter, err := newMeter(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []device.TrackerOptionFn{
		device.WithLogger(logger),
		device.WithEmissionFactor(cfg.Device.EmissionFactor),
	}
	if share, err := device.NewProcessShareReader(cfg.Device.ProcFS); err != nil {
		logger.Warn("Process tracking mode unavailable", "procfs", cfg.Device.ProcFS, "error", err)
	} else {
		opts = append(opts, device.WithShareReader(share))
	}
	return device.NewMeterFactory(meter, opts...), nil
}

func newMeter(cfg *config.Config, logger *slog.Logger) (device.Meter, error) {
	if cfg.Device.Meter == config.MeterFake {
		logger.Warn("Using fake energy meter")
		return device.NewFakeMeter(), nil
	}
	return device.NewRaplMeter(cfg.Device.SysFS, device.WithRaplLogger(logger))
}
