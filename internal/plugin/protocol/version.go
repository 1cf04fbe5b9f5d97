// Package protocol handles strategy plugin protocol versions and --plugin-info
// metadata.
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/jmylchreest/backdrop/pkg/plugin"
)

// Version is a plugin protocol version, MAJOR.MINOR.PATCH with an optional
// pre-release suffix.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
}

// Parse parses a full "MAJOR.MINOR.PATCH[-pre]" version. The shorthand forms
// semver accepts ("1", "1.2") are rejected.
func Parse(version string) (Version, error) {
	sv := "v" + version
	if !semver.IsValid(sv) || semver.Canonical(sv) != strings.TrimSuffix(sv, semver.Build(sv)) {
		return Version{}, fmt.Errorf("invalid version format: %s (expected MAJOR.MINOR.PATCH)", version)
	}

	pre := semver.Prerelease(sv)
	core := strings.TrimSuffix(strings.TrimSuffix(sv[1:], semver.Build(sv)), pre)
	var nums [3]int
	for i, p := range strings.SplitN(core, ".", 3) {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version format: %s", version)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2], Prerelease: strings.TrimPrefix(pre, "-")}, nil
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// Less reports whether v has lower semver precedence than o.
func (v Version) Less(o Version) bool {
	return semver.Compare("v"+v.String(), "v"+o.String()) < 0
}

// IsCompatible reports whether a plugin speaking pluginVersion can be hosted:
// the major version must match the host's and the version must not predate
// plugin.MinCompatibleVersion.
func IsCompatible(pluginVersion string) (bool, error) {
	v, err := Parse(pluginVersion)
	if err != nil {
		return false, fmt.Errorf("failed to parse plugin version: %w", err)
	}

	current := CurrentVersion()
	if v.Major != current.Major {
		return false, fmt.Errorf("incompatible major version: plugin is %s, backdrop requires %d.x.x", v, current.Major)
	}
	minimum, err := Parse(plugin.MinCompatibleVersion)
	if err != nil {
		return false, fmt.Errorf("failed to parse minimum compatible version: %w", err)
	}
	if v.Less(minimum) {
		return false, fmt.Errorf("plugin version %s is too old, minimum required is %s", v, minimum)
	}
	return true, nil
}

// CurrentVersion returns the host protocol version.
func CurrentVersion() Version {
	v, err := Parse(plugin.ProtocolVersion)
	if err != nil {
		panic(fmt.Sprintf("invalid ProtocolVersion constant: %v", err))
	}
	return v
}
