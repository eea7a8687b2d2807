// Package version contains build version information.
package version

import "runtime"

// Set at build time via -ldflags "-X".
var (
	Version   = "0.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// String formats the build as "version (commit, date)".
func (i Info) String() string {
	return i.Version + " (" + i.Commit + ", " + i.BuildDate + ")"
}
