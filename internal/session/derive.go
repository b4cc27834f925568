// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/utils/ptr"
)

// EnergyPerRequest divides energy over requests. It is nil unless both are
// known and requests is positive.
func EnergyPerRequest(energyKWh *float64, requests *int64) *float64 {
	if energyKWh == nil || requests == nil || *requests <= 0 {
		return nil
	}
	return ptr.To(*energyKWh / float64(*requests))
}

// NewReadable renders energy, emissions and per request energy with units.
// Each rendering is nil when its input is unknown.
func NewReadable(energyKWh, co2eKg *float64, requests *int64) Readable {
	var r Readable
	if energyKWh != nil {
		kwh := *energyKWh
		r.EnergyWh = ptr.To(fmt.Sprintf("%.3f Wh", kwh*1_000))
		r.EnergyKJ = ptr.To(fmt.Sprintf("%.3f kJ", kwh*3_600))
		r.EnergyKWh = ptr.To(fmt.Sprintf("%.6f kWh", kwh))
	}
	if co2eKg != nil {
		r.CO2e = ptr.To(fmt.Sprintf("%.3f g CO2e", *co2eKg*1_000))
	}
	if per := EnergyPerRequest(energyKWh, requests); per != nil {
		r.PerRequestMWh = ptr.To(fmt.Sprintf("%.3f mWh/req", *per*1e6))
		r.PerRequestUWh = ptr.To(fmt.Sprintf("%.0f µWh/req", *per*1e9))
	}
	return r
}

// WriteJSON writes s as indented JSON to path, creating parent directories
func WriteJSON(path string, s *Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary %s: %w", path, err)
	}
	return nil
}
