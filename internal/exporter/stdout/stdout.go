// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/sustainable-computing-io/carbon-tracker/internal/service"
	"github.com/sustainable-computing-io/carbon-tracker/internal/session"
	"k8s.io/utils/clock"
)

type (
	Initializer = service.Initializer
	Runner      = service.Runner
	Shutdowner  = service.Shutdowner
)

// StatusReporter provides snapshots of the session manager
type StatusReporter interface {
	Status() session.Report
}

// Exporter periodically prints the session status as a table
type Exporter struct {
	logger   *slog.Logger
	sessions StatusReporter
	out      io.WriteCloser
	clock    clock.WithTicker
	ticker   clock.Ticker
	interval time.Duration
}

var (
	_ Initializer = (*Exporter)(nil)
	_ Runner      = (*Exporter)(nil)
	_ Shutdowner  = (*Exporter)(nil)
)

type Opts struct {
	logger   *slog.Logger
	out      io.WriteCloser
	clock    clock.WithTicker
	interval time.Duration
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default(),
		out:      os.Stdout,
		clock:    clock.RealClock{},
		interval: 5 * time.Second,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithOutput(out io.WriteCloser) OptionFn {
	return func(o *Opts) {
		o.out = out
	}
}

func WithInterval(interval time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = interval
	}
}

func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

func NewExporter(sessions StatusReporter, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger:   opts.logger.With("service", "stdout"),
		sessions: sessions,
		out:      opts.out,
		clock:    opts.clock,
		interval: opts.interval,
	}
}

func (e *Exporter) Name() string {
	return "stdout"
}

func (e *Exporter) Init() error {
	if e.interval <= 0 {
		return fmt.Errorf("invalid stdout interval: %s", e.interval)
	}
	e.ticker = e.clock.NewTicker(e.interval)
	return nil
}

func (e *Exporter) Run(ctx context.Context) error {
	for {
		select {
		case <-e.ticker.C():
			if err := e.write(); err != nil {
				e.logger.Error("Failed to print session status", "error", err)
			}
		case <-ctx.Done():
			e.logger.Info("Exiting ticker")
			e.ticker.Stop()
			return nil
		}
	}
}

func (e *Exporter) write() error {
	reply, err := statusReply(e.sessions.Status())
	if err != nil {
		return err
	}
	return writeTable(e.out, reply)
}

func statusReply(r session.Report) (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	reply := map[string]any{}
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (e *Exporter) Shutdown() error {
	if e.out == os.Stdout {
		return nil
	}
	return e.out.Close()
}
