// Package version reports build metadata for backdrop.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/jmylchreest/backdrop/pkg/plugin"
)

// Set with -ldflags "-X github.com/jmylchreest/backdrop/internal/version.Version=x.y.z"
// and likewise for Commit and Date. Unset values fall back to the VCS stamp
// the Go toolchain embeds.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Info is the build metadata shown by `backdrop version`.
type Info struct {
	Version        string `json:"version"`
	Commit         string `json:"commit,omitempty"`
	Date           string `json:"date,omitempty"`
	Modified       bool   `json:"modified,omitempty"`
	PluginProtocol string `json:"plugin_protocol"`
	GoVersion      string `json:"go_version"`
	Platform       string `json:"platform"`
}

// Get collects build metadata.
func Get() Info {
	info := Info{
		Version:        Version,
		Commit:         Commit,
		Date:           Date,
		PluginProtocol: plugin.ProtocolVersion,
		GoVersion:      runtime.Version(),
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	return info
}

// String is the one-line form used by --version.
func (i Info) String() string {
	s := "backdrop " + i.Version
	if i.Commit != "" {
		commit := i.Commit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		if i.Modified {
			commit += "-dirty"
		}
		s += " (" + commit
		if i.Date != "" {
			s += ", " + i.Date
		}
		s += ")"
	}
	return fmt.Sprintf("%s plugin-protocol %s %s %s", s, i.PluginProtocol, i.GoVersion, i.Platform)
}

// String is shorthand for Get().String().
func String() string {
	return Get().String()
}

// Short returns just the version.
func Short() string {
	return Get().Version
}
