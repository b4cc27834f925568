// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package prometheus

import (
	"fmt"
	"log/slog"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	collector "github.com/sustainable-computing-io/carbon-tracker/internal/exporter/prometheus/collector"
	"github.com/sustainable-computing-io/carbon-tracker/internal/service"
)

type (
	Initializer    = service.Initializer
	StatusReporter = collector.StatusReporter
)

type APIRegistry interface {
	Register(endpoint, summary, description string, handler http.Handler) error
}

type Opts struct {
	logger          *slog.Logger
	debugCollectors map[string]bool
	collectors      map[string]prom.Collector
	procfs          string
	emissionFactor  float64
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		debugCollectors: map[string]bool{
			"go": true,
		},
		collectors: map[string]prom.Collector{},
		procfs:     "/proc",
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

// WithDebugCollectors sets the debug collectors
func WithDebugCollectors(c []string) OptionFn {
	return func(o *Opts) {
		o.debugCollectors = make(map[string]bool)
		for _, name := range c {
			o.debugCollectors[name] = true
		}
	}
}

func WithProcFSPath(procfs string) OptionFn {
	return func(o *Opts) {
		o.procfs = procfs
	}
}

func WithCollectors(c map[string]prom.Collector) OptionFn {
	return func(o *Opts) {
		o.collectors = c
	}
}

// WithEmissionFactor sets the factor reported by the host collector
func WithEmissionFactor(kgPerKWh float64) OptionFn {
	return func(o *Opts) {
		o.emissionFactor = kgPerKWh
	}
}

// Exporter exposes session metrics to Prometheus
type Exporter struct {
	logger          *slog.Logger
	registry        *prom.Registry
	server          APIRegistry
	debugCollectors map[string]bool
	collectors      map[string]prom.Collector
}

var _ Initializer = (*Exporter)(nil)

// NewExporter creates a new Exporter registering /metrics on s
func NewExporter(s APIRegistry, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		server:          s,
		logger:          opts.logger.With("service", "prometheus"),
		debugCollectors: opts.debugCollectors,
		collectors:      opts.collectors,
		registry:        prom.NewRegistry(),
	}
}

func collectorForName(name string) (prom.Collector, error) {
	switch name {
	case "go":
		return collectors.NewGoCollector(), nil
	case "process":
		return collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), nil
	default:
		return nil, fmt.Errorf("unknown collector: %s", name)
	}
}

// CreateCollectors returns the collectors exported for sessions
func CreateCollectors(sessions StatusReporter, applyOpts ...OptionFn) (map[string]prom.Collector, error) {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}
	host, err := collector.NewHostCollector(opts.procfs, opts.emissionFactor)
	if err != nil {
		return nil, err
	}
	return map[string]prom.Collector{
		"build_info": collector.NewBuildInfoCollector(),
		"session":    collector.NewSessionCollector(sessions, opts.logger),
		"host":       host,
	}, nil
}

func (e *Exporter) Init() error {
	e.logger.Info("Initializing Prometheus exporter")
	for c := range e.debugCollectors {
		collector, err := collectorForName(c)
		if err != nil {
			e.logger.Error("Error creating collector", "collector", c, "error", err)
			return err
		}
		e.logger.Info("Enabling debug collector", "collector", c)
		if err := e.registry.Register(collector); err != nil {
			return fmt.Errorf("failed to register debug collector %s: %w", c, err)
		}
	}

	for name, collector := range e.collectors {
		e.logger.Info("Enabling collector", "collector", name)
		if err := e.registry.Register(collector); err != nil {
			return fmt.Errorf("failed to register collector %s: %w", name, err)
		}
	}

	return e.server.Register("/metrics", "Metrics", "Prometheus metrics",
		promhttp.HandlerFor(
			e.registry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          e.registry,
			},
		))
}

// Name implements service.Name
func (e *Exporter) Name() string {
	return "prometheus"
}
