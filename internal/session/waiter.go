// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"log/slog"
	"os"
	"time"

	"k8s.io/utils/clock"
)

// StatFn returns the size of the file at path and whether it exists
type StatFn func(path string) (int64, bool)

func statSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// Waiter blocks until a file written by another process stops growing
type Waiter struct {
	clock    clock.Clock
	stat     StatFn
	interval time.Duration
	logger   *slog.Logger
}

const defaultPollInterval = time.Second

// NewWaiter returns a Waiter polling once per second
func NewWaiter(c clock.Clock, logger *slog.Logger) *Waiter {
	if c == nil {
		c = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Waiter{clock: c, stat: statSize, interval: defaultPollInterval, logger: logger}
}

// Wait returns true once the size of path has been observed unchanged for at
// least window, and false when timeout elapses first. A nil timeout waits
// indefinitely. A missing file never counts as stable.
func (w *Waiter) Wait(path string, window time.Duration, timeout *time.Duration) bool {
	start := w.clock.Now()
	lastSize := int64(-1)
	var stableSince time.Time

	for {
		if size, ok := w.stat(path); ok {
			switch {
			case size != lastSize:
				lastSize = size
				stableSince = time.Time{}
			case stableSince.IsZero():
				stableSince = w.clock.Now()
			case w.clock.Since(stableSince) >= window:
				w.logger.Debug("Summary is stable", "path", path, "size", size)
				return true
			}
		}

		if timeout != nil && w.clock.Since(start) > *timeout {
			w.logger.Warn("Timed out waiting for summary to stabilize",
				"path", path, "timeout", *timeout)
			return false
		}
		w.clock.Sleep(w.interval)
	}
}
