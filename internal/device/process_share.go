// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"os"

	"github.com/prometheus/procfs"
)

// ShareReader reports the fraction of busy CPU time attributable to a
// process since the previous call. It is used in "process" tracking mode to
// scale node energy down to the tracked process.
type ShareReader interface {
	Share() (float64, error)
}

// procShareReader computes the share from /proc/<pid>/stat and /proc/stat
type procShareReader struct {
	fs  procfs.FS
	pid int

	primed    bool
	prevProc  float64
	prevTotal float64
}

var _ ShareReader = (*procShareReader)(nil)

// NewProcessShareReader returns a ShareReader for the current process
func NewProcessShareReader(procfsPath string) (*procShareReader, error) {
	fs, err := procfs.NewFS(procfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs %s: %w", procfsPath, err)
	}
	return &procShareReader{fs: fs, pid: os.Getpid()}, nil
}

// Share returns the process share of busy CPU time in [0, 1]. The first call
// only records a baseline and returns 0.
func (r *procShareReader) Share() (float64, error) {
	proc, err := r.fs.Proc(r.pid)
	if err != nil {
		return 0, err
	}
	pstat, err := proc.Stat()
	if err != nil {
		return 0, err
	}
	stat, err := r.fs.Stat()
	if err != nil {
		return 0, err
	}

	procTime := pstat.CPUTime()
	c := stat.CPUTotal
	busy := c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal

	prevProc, prevTotal, primed := r.prevProc, r.prevTotal, r.primed
	r.prevProc, r.prevTotal, r.primed = procTime, busy, true
	if !primed {
		return 0, nil
	}

	return shareOf(procTime-prevProc, busy-prevTotal), nil
}

func shareOf(proc, total float64) float64 {
	if total <= 0 || proc <= 0 {
		return 0
	}
	if ratio := proc / total; ratio < 1 {
		return ratio
	}
	return 1
}
