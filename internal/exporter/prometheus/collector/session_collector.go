// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sustainable-computing-io/carbon-tracker/internal/session"
)

// StatusReporter provides snapshots of the session manager
type StatusReporter interface {
	Status() session.Report
}

// SessionCollector exports the running session and the last summary
type SessionCollector struct {
	sessions StatusReporter
	logger   *slog.Logger

	runningDesc   *prometheus.Desc
	infoDesc      *prometheus.Desc
	startedDesc   *prometheus.Desc
	energyDesc    *prometheus.Desc
	co2eDesc      *prometheus.Desc
	durationDesc  *prometheus.Desc
	requestsDesc  *prometheus.Desc
	perReqDesc    *prometheus.Desc
	lastEndedDesc *prometheus.Desc
}

func lastDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(
		prometheus.BuildFQName(carbonNS, "session", "last_"+name),
		help+" of the last completed session",
		[]string{"scenario", "reason"}, nil)
}

// NewSessionCollector creates a collector reading sessions on every scrape
func NewSessionCollector(sessions StatusReporter, logger *slog.Logger) *SessionCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionCollector{
		sessions: sessions,
		logger:   logger.With("collector", "session"),

		runningDesc: prometheus.NewDesc(
			prometheus.BuildFQName(carbonNS, "session", "running"),
			"1 while a measurement session is running",
			nil, nil),
		infoDesc: prometheus.NewDesc(
			prometheus.BuildFQName(carbonNS, "session", "info"),
			"A metric with a constant '1' value labeled with the running session",
			[]string{"scenario", "output_file"}, nil),
		startedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(carbonNS, "session", "started_timestamp_seconds"),
			"Start time of the running session in seconds since the epoch",
			[]string{"scenario"}, nil),

		energyDesc:    lastDesc("energy_kwh", "Energy consumed in kWh"),
		co2eDesc:      lastDesc("co2e_kg", "Emissions in kg CO2e"),
		durationDesc:  lastDesc("duration_seconds", "Duration in seconds"),
		requestsDesc:  lastDesc("requests", "Requests served"),
		perReqDesc:    lastDesc("energy_per_request_kwh", "Energy per request in kWh"),
		lastEndedDesc: lastDesc("ended_timestamp_seconds", "End time in seconds since the epoch"),
	}
}

func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runningDesc
	ch <- c.infoDesc
	ch <- c.startedDesc
	ch <- c.energyDesc
	ch <- c.co2eDesc
	ch <- c.durationDesc
	ch <- c.requestsDesc
	ch <- c.perReqDesc
	ch <- c.lastEndedDesc
}

func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	report := c.sessions.Status()

	running := 0.0
	if report.Running {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(c.runningDesc, prometheus.GaugeValue, running)

	if st := report.State; report.Running && st != nil {
		ch <- prometheus.MustNewConstMetric(c.infoDesc, prometheus.GaugeValue, 1, st.Scenario, st.OutputFile)
		ch <- prometheus.MustNewConstMetric(c.startedDesc, prometheus.GaugeValue,
			float64(st.StartedAt.UnixNano())/1e9, st.Scenario)
	}

	last := report.LastSummary
	if last == nil {
		return
	}
	labels := []string{last.Scenario, last.Reason}
	gauge := func(desc *prometheus.Desc, v *float64) {
		if v != nil {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, *v, labels...)
		}
	}
	gauge(c.energyDesc, last.TotalEnergyKWh)
	gauge(c.co2eDesc, last.CO2eKg)
	gauge(c.perReqDesc, last.EnergyPerRequestKWh)
	ch <- prometheus.MustNewConstMetric(c.durationDesc, prometheus.GaugeValue, last.DurationSeconds, labels...)
	if last.TotalRequests != nil {
		ch <- prometheus.MustNewConstMetric(c.requestsDesc, prometheus.GaugeValue, float64(*last.TotalRequests), labels...)
	}
	if ended, err := session.ParseTime(last.EndedAt); err == nil {
		ch <- prometheus.MustNewConstMetric(c.lastEndedDesc, prometheus.GaugeValue, float64(ended.Unix()), labels...)
	} else {
		c.logger.Debug("Skipping unparseable end time", "ended_at", last.EndedAt, "error", err)
	}
}
