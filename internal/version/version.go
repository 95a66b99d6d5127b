// Package version reports build metadata. Release builds set the variables
// with -ldflags "-X"; other builds fall back to the VCS stamp Go embeds.
package version

import (
	"fmt"
	"runtime/debug"
)

//nolint:gochecknoglobals // set via ldflags
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// String renders version, commit and build time on one line.
func String() string {
	commit, date := Commit, Date
	if commit == "" || date == "" {
		c, d := vcsStamp()
		commit, date = or(commit, c), or(date, d)
	}
	return fmt.Sprintf("%s (commit %s, built %s)", Version, or(commit, "unknown"), or(date, "unknown"))
}

func vcsStamp() (revision, at string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
			if len(revision) > 12 {
				revision = revision[:12]
			}
		case "vcs.time":
			at = s.Value
		}
	}
	return revision, at
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
