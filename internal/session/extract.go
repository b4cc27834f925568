// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"k8s.io/utils/ptr"
)

// emissionsRow lists the energy columns in order of preference
type emissionsRow struct {
	EnergyConsumed    string `csv:"energy_consumed"`
	EnergyConsumedKWh string `csv:"energy_consumed_kwh"`
	TotalEnergyKWh    string `csv:"total_energy_kwh"`
}

// ParseEnergyKWh returns the cumulative energy in kWh of the last row of a
// raw emissions record, or nil when the file is missing, unreadable or has
// no usable energy value
func ParseEnergyKWh(path string) *float64 {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err != nil {
		return nil
	}

	var last *emissionsRow
	for {
		var row emissionsRow
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil
		}
		last = &row
	}
	if last == nil {
		return nil
	}

	for _, v := range []string{last.EnergyConsumed, last.EnergyConsumedKWh, last.TotalEnergyKWh} {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if kwh, err := strconv.ParseFloat(v, 64); err == nil {
			return ptr.To(kwh)
		}
	}
	return nil
}

// totalRequestsMarker is the first field of the summary line carrying
// request counts
const totalRequestsMarker = "Total User Requests"

// ParseTotalRequests returns the sum of the two count columns of the first
// "Total User Requests" line of a workload summary. Non-numeric counts are
// skipped. It returns 0 when the file or the line is missing.
func ParseTotalRequests(path string) int64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ",")
		if strings.TrimSpace(fields[0]) != totalRequestsMarker {
			continue
		}

		var total int64
		for _, field := range fields[1:min(len(fields), 3)] {
			if n, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64); err == nil {
				total += n
			}
		}
		return total
	}
	return 0
}
