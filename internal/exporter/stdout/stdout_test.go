// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sustainable-computing-io/carbon-tracker/internal/session"
	testingclock "k8s.io/utils/clock/testing"
)

type stubReporter struct {
	report session.Report
}

func (s stubReporter) Status() session.Report { return s.report }

// syncBuffer is written by the exporter goroutine and read by the test
type syncBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		name     string
		opts     []OptionFn
		out      io.WriteCloser
		interval time.Duration
	}{{
		name:     "default options",
		out:      os.Stdout,
		interval: 5 * time.Second,
	}, {
		name: "custom options",
		opts: []OptionFn{
			WithLogger(slog.Default()),
			WithOutput(os.Stderr),
			WithInterval(20 * time.Second),
		},
		out:      os.Stderr,
		interval: 20 * time.Second,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := stubReporter{}
			exporter := NewExporter(sessions, tt.opts...)
			assert.Equal(t, "stdout", exporter.Name())
			assert.NotNil(t, exporter.logger)
			assert.Equal(t, sessions, exporter.sessions)
			assert.Same(t, tt.out, exporter.out)
			assert.Equal(t, tt.interval, exporter.interval)
		})
	}
}

func TestExporter_InitInvalidInterval(t *testing.T) {
	exporter := NewExporter(stubReporter{}, WithInterval(0))
	assert.ErrorContains(t, exporter.Init(), "invalid stdout interval")
}

func TestExporter_InitRunShutdown(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Date(2025, 5, 15, 1, 1, 1, 0, time.UTC))
	out := &syncBuffer{}
	sessions := stubReporter{report: session.Report{
		Running: true,
		State:   &session.State{Scenario: "db", OutputFile: "emissions_db.csv"},
	}}
	exporter := NewExporter(sessions,
		WithOutput(out), WithInterval(time.Second), WithClock(clk), WithLogger(discardLogger()))
	require.NoError(t, exporter.Init())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- exporter.Run(ctx) }()

	clk.Step(time.Second)
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("emissions_db.csv"))
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "state.scenario")

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, exporter.Shutdown())
	assert.True(t, out.closed)
}

func TestExporter_ShutdownKeepsStdout(t *testing.T) {
	exporter := NewExporter(stubReporter{})
	assert.NoError(t, exporter.Shutdown())
}
