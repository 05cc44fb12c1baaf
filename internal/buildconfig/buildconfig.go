package buildconfig

import "runtime"

// Build-time variables injected via ldflags:
//
//	-X github.com/Harshitk-cp/curio/internal/buildconfig.version=v0.3.0
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
}

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// Get returns the build information reported by /health and curioctl version.
func Get() Info {
	return Info{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
	}
}
