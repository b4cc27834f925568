// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/jszwec/csvutil"
)

// Record is one row of the raw measurement file written when a tracker stops.
// Energy and emissions are cumulative for the session.
type Record struct {
	Timestamp      string  `csv:"timestamp"`
	ProjectName    string  `csv:"project_name"`
	Duration       float64 `csv:"duration"`
	Emissions      float64 `csv:"emissions"`
	EmissionsRate  float64 `csv:"emissions_rate"`
	EnergyConsumed float64 `csv:"energy_consumed"`
	TrackingMode   string  `csv:"tracking_mode"`
}

// AppendRecord appends r to the CSV file at path, writing the header first
// when the file is new or empty
func AppendRecord(path string, r Record) (errRet error) {
	info, err := os.Stat(path)
	newFile := err != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open record file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil && errRet == nil {
			errRet = err
		}
	}()

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = newFile
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	w.Flush()
	return w.Error()
}
