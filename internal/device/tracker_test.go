// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type stubShare struct {
	ratio float64
	err   error
	calls int
}

func (s *stubShare) Share() (float64, error) {
	s.calls++
	return s.ratio, s.err
}

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []Record
	require.NoError(t, csvutil.Unmarshal(data, &records))
	return records
}

func newTestConfig(dir string) Config {
	return Config{
		ProjectName: "url-shortener-web",
		OutputDir:   dir,
		OutputFile:  "emissions_web.csv",
		Interval:    time.Hour,
		Mode:        "machine",
	}
}

func TestMeterFactory_New(t *testing.T) {
	dir := t.TempDir()
	f := NewMeterFactory(NewFakeMeter())

	t.Run("valid config", func(t *testing.T) {
		tr, err := f.New(newTestConfig(dir))
		require.NoError(t, err)
		assert.NotNil(t, tr)
	})

	t.Run("non positive interval", func(t *testing.T) {
		cfg := newTestConfig(dir)
		cfg.Interval = 0
		_, err := f.New(cfg)
		assert.Error(t, err)
	})

	t.Run("missing output file", func(t *testing.T) {
		cfg := newTestConfig(dir)
		cfg.OutputFile = ""
		_, err := f.New(cfg)
		assert.Error(t, err)
	})

	t.Run("process mode without share reader", func(t *testing.T) {
		cfg := newTestConfig(dir)
		cfg.Mode = "process"
		_, err := f.New(cfg)
		assert.Error(t, err)
	})
}

func TestTracker_StartStop(t *testing.T) {
	dir := t.TempDir()
	clk := testingclock.NewFakeClock(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	f := NewMeterFactory(NewFakeMeter(), WithClock(clk), WithEmissionFactor(0.5))

	tr, err := f.New(newTestConfig(dir))
	require.NoError(t, err)

	require.NoError(t, tr.Start())
	clk.Step(30 * time.Second)

	co2e, err := tr.Stop()
	require.NoError(t, err)

	// two zones, 5J each between the baseline and the final sample
	wantKWh := 10.0 / 3_600_000
	assert.InDelta(t, wantKWh*0.5, co2e, 1e-15)

	records := readRecords(t, filepath.Join(dir, "emissions_web.csv"))
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "url-shortener-web", r.ProjectName)
	assert.Equal(t, "machine", r.TrackingMode)
	assert.InDelta(t, 30.0, r.Duration, 1e-9)
	assert.InDelta(t, wantKWh, r.EnergyConsumed, 1e-15)
	assert.InDelta(t, co2e, r.Emissions, 1e-15)
	assert.Equal(t, "2025-01-02T03:04:35", r.Timestamp)
}

func TestTracker_Lifecycle(t *testing.T) {
	f := NewMeterFactory(NewFakeMeter(), WithClock(testingclock.NewFakeClock(time.Now())))

	t.Run("stop before start", func(t *testing.T) {
		tr, err := f.New(newTestConfig(t.TempDir()))
		require.NoError(t, err)
		_, err = tr.Stop()
		assert.ErrorIs(t, err, ErrNotStarted)
	})

	t.Run("start twice", func(t *testing.T) {
		tr, err := f.New(newTestConfig(t.TempDir()))
		require.NoError(t, err)
		require.NoError(t, tr.Start())
		assert.ErrorIs(t, tr.Start(), ErrAlreadyStarted)
		_, err = tr.Stop()
		assert.NoError(t, err)
	})

	t.Run("stop twice", func(t *testing.T) {
		tr, err := f.New(newTestConfig(t.TempDir()))
		require.NoError(t, err)
		require.NoError(t, tr.Start())
		_, err = tr.Stop()
		require.NoError(t, err)
		_, err = tr.Stop()
		assert.ErrorIs(t, err, ErrAlreadyStopped)
	})

	t.Run("unwritable output directory", func(t *testing.T) {
		cfg := newTestConfig(filepath.Join(t.TempDir(), "missing"))
		tr, err := f.New(cfg)
		require.NoError(t, err)
		require.NoError(t, tr.Start())
		_, err = tr.Stop()
		assert.Error(t, err)
	})
}

func TestTracker_ProcessMode(t *testing.T) {
	dir := t.TempDir()
	share := &stubShare{ratio: 0.5}
	f := NewMeterFactory(NewFakeMeter(),
		WithClock(testingclock.NewFakeClock(time.Now())),
		WithEmissionFactor(1),
		WithShareReader(share),
	)

	cfg := newTestConfig(dir)
	cfg.Mode = "process"
	tr, err := f.New(cfg)
	require.NoError(t, err)

	require.NoError(t, tr.Start())
	co2e, err := tr.Stop()
	require.NoError(t, err)

	assert.InDelta(t, 5.0/3_600_000, co2e, 1e-15)
	assert.Equal(t, 2, share.calls)
}

func TestTracker_ShareError(t *testing.T) {
	share := &stubShare{err: errors.New("no procfs")}
	f := NewMeterFactory(NewFakeMeter(),
		WithClock(testingclock.NewFakeClock(time.Now())),
		WithShareReader(share),
	)
	cfg := newTestConfig(t.TempDir())
	cfg.Mode = "process"
	tr, err := f.New(cfg)
	require.NoError(t, err)

	assert.Error(t, tr.Start())
}

func TestTracker_SamplesOnTick(t *testing.T) {
	dir := t.TempDir()
	clk := testingclock.NewFakeClock(time.Now())
	f := NewMeterFactory(NewFakeMeter(), WithClock(clk), WithEmissionFactor(1))

	cfg := newTestConfig(dir)
	cfg.Interval = time.Second
	tr, err := f.New(cfg)
	require.NoError(t, err)
	require.NoError(t, tr.Start())

	require.Eventually(t, clk.HasWaiters, time.Second, 5*time.Millisecond)
	clk.Step(time.Second)

	et := tr.(*energyTracker)
	assert.Eventually(t, func() bool {
		et.mu.Lock()
		defer et.mu.Unlock()
		return et.joules > 0
	}, time.Second, 5*time.Millisecond)

	co2e, err := tr.Stop()
	require.NoError(t, err)
	assert.InDelta(t, 20.0/3_600_000, co2e, 1e-15)
}

func TestDelta(t *testing.T) {
	tests := []struct {
		name           string
		prev, cur, max Energy
		want           Energy
	}{
		{"increasing", 10, 25, 100, 15},
		{"unchanged", 10, 10, 100, 0},
		{"wrap around", 90, 5, 100, 15},
		{"unknown max", 90, 5, 0, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, delta(tc.prev, tc.cur, tc.max))
		})
	}
}

func TestEnergyConversions(t *testing.T) {
	e := 3_600 * Joule
	assert.InDelta(t, 3600.0, e.Joules(), 1e-9)
	assert.InDelta(t, 0.001, e.KWh(), 1e-12)
	assert.Equal(t, "3600.00J", e.String())
	assert.Equal(t, uint64(3_600_000_000), e.MicroJoules())
}

func TestAppendRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emissions.csv")

	require.NoError(t, AppendRecord(path, Record{ProjectName: "a", EnergyConsumed: 0.001}))
	require.NoError(t, AppendRecord(path, Record{ProjectName: "b", EnergyConsumed: 0.0045}))

	records := readRecords(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[1].ProjectName)
	assert.InDelta(t, 0.0045, records[1].EnergyConsumed, 1e-15)
}
