// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		logLevel string

		shouldLogInfo bool
		expectPanic   bool
	}{{
		name:          "json format debug level",
		format:        "json",
		logLevel:      "debug",
		shouldLogInfo: true,
	}, {
		name:          "json format warn level",
		format:        "json",
		logLevel:      "warn",
		shouldLogInfo: false,
	}, {
		name:          "text format info level",
		format:        "text",
		logLevel:      "info",
		shouldLogInfo: true,
	}, {
		name:          "text format error level",
		format:        "text",
		logLevel:      "error",
		shouldLogInfo: false,
	}, {
		name:        "invalid format panics",
		format:      "invalid",
		logLevel:    "info",
		expectPanic: true,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if tc.expectPanic {
				assert.Panics(t, func() { New(tc.logLevel, tc.format, &buf) })
				return
			}

			l := New(tc.logLevel, tc.format, &buf)
			l.Info("session started", "scenario", "web")

			if !tc.shouldLogInfo {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), "session started")
			if tc.format == "json" {
				var record map[string]any
				require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
				assert.Equal(t, "web", record["scenario"])
			}
		})
	}
}

func TestNewChecked(t *testing.T) {
	_, err := NewChecked("info", "yaml", &bytes.Buffer{})
	assert.Error(t, err)

	l, err := NewChecked("debug", "text", &bytes.Buffer{})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestShortenSource(t *testing.T) {
	var buf bytes.Buffer
	New("info", "text", &buf).Info("hello")

	out := buf.String()
	require.Contains(t, out, "source=")
	src := out[strings.Index(out, "source=")+len("source="):]
	src = strings.Fields(src)[0]
	assert.LessOrEqual(t, strings.Count(src, "/"), 2, "source %q should keep at most two directories", src)
	assert.Contains(t, src, "logger_test.go")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
