// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"log/slog"
	"os"

	"github.com/sustainable-computing-io/carbon-tracker/config"
	"k8s.io/utils/clock"
)

type Opts struct {
	logger *slog.Logger
	clock  clock.Clock
	env    config.Env
	stat   StatFn
	pid    int
}

// DefaultOpts returns the options of a Manager reading the process
// environment over the default configuration
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		clock:  clock.RealClock{},
		env:    config.NewEnv(config.DefaultConfig()),
		stat:   statSize,
		pid:    os.Getpid(),
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Manager
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock used for timestamps and stabilization waits
func WithClock(c clock.Clock) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithEnv sets the source of defaults resolved on every call
func WithEnv(env config.Env) OptionFn {
	return func(o *Opts) {
		o.env = env
	}
}

// WithStatFn replaces the file size probe of the stabilization wait
func WithStatFn(fn StatFn) OptionFn {
	return func(o *Opts) {
		o.stat = fn
	}
}

// WithPID sets the process id embedded in output file names
func WithPID(pid int) OptionFn {
	return func(o *Opts) {
		o.pid = pid
	}
}
