// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"
)

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"object", `{"scenario":"web","force":true}`, 2},
		{"empty", ``, 0},
		{"whitespace", "  \n", 0},
		{"malformed", `{"scenario":`, 0},
		{"array", `[1,2]`, 0},
		{"null", `null`, 0},
		{"string", `"start"`, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			obj := decodeObject(strings.NewReader(tc.body))
			require.NotNil(t, obj)
			assert.Len(t, obj, tc.want)
		})
	}
}

func TestParseStartRequest_Force(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"true", `{"force":true}`, true},
		{"false", `{"force":false}`, false},
		{"yes", `{"force":"yes"}`, true},
		{"upper on", `{"force":"ON"}`, true},
		{"unknown string", `{"force":"sure"}`, false},
		{"empty string", `{"force":""}`, false},
		{"one", `{"force":1}`, true},
		{"zero", `{"force":0}`, false},
		{"fraction", `{"force":0.5}`, true},
		{"null", `{"force":null}`, false},
		{"object", `{"force":{}}`, false},
		{"missing", `{}`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := parseStartRequest(decodeObject(strings.NewReader(tc.body)))
			assert.Equal(t, tc.want, req.Force)
		})
	}
}

func TestParseStartRequest(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		req := parseStartRequest(decodeObject(strings.NewReader(
			`{"scenario":"redis","results_dir":"/tmp/r","measure_interval":"0.5","metadata":{"k":"v"}}`)))
		assert.Equal(t, "redis", req.Scenario)
		assert.Equal(t, "/tmp/r", req.ResultsDir)
		require.NotNil(t, req.MeasureInterval)
		assert.Equal(t, 0.5, *req.MeasureInterval)
		assert.Equal(t, map[string]any{"k": "v"}, req.Metadata)

		opts := req.Options()
		assert.Equal(t, 500*time.Millisecond, opts.MeasureInterval)
	})

	t.Run("invalid values are dropped", func(t *testing.T) {
		req := parseStartRequest(decodeObject(strings.NewReader(
			`{"scenario":42,"measure_interval":"fast","metadata":[1]}`)))
		assert.Empty(t, req.Scenario)
		assert.Nil(t, req.MeasureInterval)
		assert.Nil(t, req.Metadata)
		assert.Zero(t, req.Options().MeasureInterval)
	})

	t.Run("non positive interval uses default", func(t *testing.T) {
		req := StartRequest{MeasureInterval: ptr.To(-1.0)}
		assert.Zero(t, req.Options().MeasureInterval)
	})
}

func TestParseStopRequest(t *testing.T) {
	t.Run("numbers and strings", func(t *testing.T) {
		req := parseStopRequest(decodeObject(strings.NewReader(
			`{"summary_csv":"/r/s.csv","write_json":"/r/s.json","stability_seconds":"3","wait_timeout":30.9,"reason":"k6"}`)))
		assert.Equal(t, "/r/s.csv", req.SummaryCSV)
		assert.Equal(t, "/r/s.json", req.WriteJSON)
		assert.Equal(t, ptr.To(3), req.StabilitySeconds)
		assert.Equal(t, ptr.To(30), req.WaitTimeout)
		assert.Equal(t, "k6", req.Reason)

		opts := req.Options()
		assert.Equal(t, ptr.To(3*time.Second), opts.StabilityWindow)
		assert.Equal(t, ptr.To(30*time.Second), opts.WaitTimeout)
	})

	t.Run("invalid integers are dropped", func(t *testing.T) {
		req := parseStopRequest(decodeObject(strings.NewReader(
			`{"stability_seconds":"3.5","wait_timeout":true}`)))
		assert.Nil(t, req.StabilitySeconds)
		assert.Nil(t, req.WaitTimeout)

		opts := req.Options()
		assert.Nil(t, opts.StabilityWindow)
		assert.Nil(t, opts.WaitTimeout)
		assert.Empty(t, opts.Reason)
	})
}
