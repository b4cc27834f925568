// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sustainable-computing-io/carbon-tracker/config"
	"github.com/sustainable-computing-io/carbon-tracker/internal/session"
	"k8s.io/utils/ptr"
)

// StartRequest is the body of a start command
type StartRequest struct {
	Scenario        string         `json:"scenario,omitempty"`
	ResultsDir      string         `json:"results_dir,omitempty"`
	MeasureInterval *float64       `json:"measure_interval,omitempty"`
	Force           bool           `json:"force"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Options converts r to manager options
func (r StartRequest) Options() session.StartOptions {
	opts := session.StartOptions{
		Scenario:   r.Scenario,
		ResultsDir: r.ResultsDir,
		Force:      r.Force,
		Metadata:   r.Metadata,
	}
	if r.MeasureInterval != nil && *r.MeasureInterval > 0 {
		opts.MeasureInterval = time.Duration(*r.MeasureInterval * float64(time.Second))
	}
	return opts
}

// StopRequest is the body of a stop command. Durations are whole seconds.
type StopRequest struct {
	SummaryCSV       string `json:"summary_csv,omitempty"`
	WriteJSON        string `json:"write_json,omitempty"`
	StabilitySeconds *int   `json:"stability_seconds,omitempty"`
	WaitTimeout      *int   `json:"wait_timeout,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// Options converts r to manager options
func (r StopRequest) Options() session.StopOptions {
	opts := session.StopOptions{
		SummaryCSV: r.SummaryCSV,
		WriteJSON:  r.WriteJSON,
		Reason:     r.Reason,
	}
	if r.StabilitySeconds != nil && *r.StabilitySeconds >= 0 {
		opts.StabilityWindow = ptr.To(time.Duration(*r.StabilitySeconds) * time.Second)
	}
	if r.WaitTimeout != nil {
		opts.WaitTimeout = ptr.To(time.Duration(max(*r.WaitTimeout, 0)) * time.Second)
	}
	return opts
}

// decodeObject reads a JSON object leniently: anything that is not an
// object yields an empty map
func decodeObject(r io.Reader) map[string]any {
	data, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func parseStartRequest(body map[string]any) StartRequest {
	req := StartRequest{
		Scenario:        stringValue(body["scenario"]),
		ResultsDir:      stringValue(body["results_dir"]),
		MeasureInterval: floatValue(body["measure_interval"]),
		Force:           boolValue(body["force"]),
	}
	if meta, ok := body["metadata"].(map[string]any); ok {
		req.Metadata = meta
	}
	return req
}

func parseStopRequest(body map[string]any) StopRequest {
	return StopRequest{
		SummaryCSV:       stringValue(body["summary_csv"]),
		WriteJSON:        stringValue(body["write_json"]),
		StabilitySeconds: intValue(body["stability_seconds"]),
		WaitTimeout:      intValue(body["wait_timeout"]),
		Reason:           stringValue(body["reason"]),
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// number returns v as a float when it is a JSON number or a numeric string
func number(v any) (float64, bool) {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case float64:
		return x, true
	case string:
		s = strings.TrimSpace(x)
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func floatValue(v any) *float64 {
	if f, ok := number(v); ok {
		return ptr.To(f)
	}
	return nil
}

// intValue accepts integers, numbers (truncated) and integer strings
func intValue(v any) *int {
	if s, ok := v.(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil
		}
		return ptr.To(n)
	}
	f, ok := number(v)
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return nil
	}
	return ptr.To(int(f))
}

// boolValue accepts booleans, truthy strings and non-zero numbers
func boolValue(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return config.IsTrue(x)
	}
	f, ok := number(v)
	return ok && f != 0
}
