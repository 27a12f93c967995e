// Package buildinfo identifies the running simkern binary.
package buildinfo

import "runtime/debug"

// Set with -ldflags "-X simkern/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = ""
)

// Short returns the release version, else an abbreviated VCS revision,
// else "dev".
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if c := commit(); c != "" {
		if len(c) > 12 {
			c = c[:12]
		}
		return c
	}
	return "dev"
}

func commit() string {
	if Commit != "" {
		return Commit
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}
