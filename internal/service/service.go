// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Service is the interface that all services must implement
type Service interface {
	// Name returns the name of the service
	Name() string
}

// Initializer is implemented by services that must be set up before any
// service runs, such as handlers registering endpoints
type Initializer interface {
	Service
	Init() error
}

// Runner is implemented by services that run in the background
type Runner interface {
	Service
	// Run is expected to block until ctx is done or the service fails
	Run(ctx context.Context) error
}

// Shutdowner is implemented by services holding resources that must be
// released when the process exits
type Shutdowner interface {
	Service
	Shutdown() error
}

// LiveChecker is implemented by services reporting liveness
type LiveChecker interface {
	Service
	IsLive() bool
}

// ReadyChecker is implemented by services reporting readiness
type ReadyChecker interface {
	Service
	IsReady() bool
}
