// Package version reports build metadata.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags "-X github.com/smazurov/procstream/internal/version.Version=..." at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"a1b2c3d" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target platform"`
}

// Get returns version and build information. Values not set by ldflags fall
// back to the VCS stamps embedded by the Go toolchain.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.GitCommit == "unknown":
				info.GitCommit = s.Value
			case s.Key == "vcs.time" && info.BuildDate == "unknown":
				info.BuildDate = s.Value
			}
		}
	}
	return info
}

// String returns a one-line version description.
func String() string {
	info := Get()
	return fmt.Sprintf("%s (commit %s, built %s, %s)", info.Version, info.GitCommit, info.BuildDate, info.Platform)
}
