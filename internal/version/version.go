// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// set with -ldflags "-X github.com/sustainable-computing-io/carbon-tracker/internal/version.version=..."
var (
	version   string
	buildTime string
	gitBranch string
	gitCommit string
)

type VersionInfo struct {
	Version   string
	BuildTime string
	GitBranch string
	GitCommit string

	GoVersion string
	GoOS      string
	GoArch    string
}

// Info returns the version information
func Info() VersionInfo {
	return VersionInfo{
		Version:   orUnknown(version),
		BuildTime: orUnknown(buildTime),
		GitBranch: orUnknown(gitBranch),
		GitCommit: orUnknown(gitCommit),

		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
	}
}

// String renders v as printed by `carbon --version`
func (v VersionInfo) String() string {
	return fmt.Sprintf("carbon %s (branch: %s, revision: %s)\n  build time: %s\n  go: %s %s/%s",
		v.Version, v.GitBranch, v.GitCommit, v.BuildTime, v.GoVersion, v.GoOS, v.GoArch)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
