// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"fmt"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"
)

type cpuInfoReader interface {
	CPUInfo() ([]procfs.CPUInfo, error)
}

// HostCollector describes the machine energy is measured on: logical CPUs
// per model and the emission factor applied to measured energy
type HostCollector struct {
	mu sync.Mutex

	fs         cpuInfoReader
	factor     float64
	cpusDesc   *prom.Desc
	factorDesc *prom.Desc
}

// NewHostCollector creates a HostCollector reading the procfs mounted at procPath
func NewHostCollector(procPath string, emissionFactor float64) (*HostCollector, error) {
	fs, err := procfs.NewFS(procPath)
	if err != nil {
		return nil, fmt.Errorf("creating procfs failed: %w", err)
	}
	return newHostCollector(fs, emissionFactor), nil
}

func newHostCollector(fs cpuInfoReader, emissionFactor float64) *HostCollector {
	return &HostCollector{
		fs:     fs,
		factor: emissionFactor,
		cpusDesc: prom.NewDesc(
			prom.BuildFQName(carbonNS, "host", "cpus"),
			"Number of logical CPUs per model",
			[]string{"vendor_id", "model_name"}, nil),
		factorDesc: prom.NewDesc(
			prom.BuildFQName(carbonNS, "host", "emission_factor_kg_per_kwh"),
			"Grid emission factor used to derive CO2e from energy",
			nil, nil),
	}
}

func (c *HostCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.cpusDesc
	ch <- c.factorDesc
}

func (c *HostCollector) Collect(ch chan<- prom.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch <- prom.MustNewConstMetric(c.factorDesc, prom.GaugeValue, c.factor)

	infos, err := c.fs.CPUInfo()
	if err != nil {
		return
	}
	type model struct{ vendor, name string }
	counts := map[model]int{}
	var order []model
	for _, ci := range infos {
		m := model{ci.VendorID, ci.ModelName}
		if _, seen := counts[m]; !seen {
			order = append(order, m)
		}
		counts[m]++
	}
	for _, m := range order {
		ch <- prom.MustNewConstMetric(c.cpusDesc, prom.GaugeValue, float64(counts[m]), m.vendor, m.name)
	}
}
