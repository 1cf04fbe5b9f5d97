package protocol

import (
	"strings"
	"testing"

	"github.com/jmylchreest/backdrop/pkg/plugin"
)

func TestParse(t *testing.T) {
	tests := []struct {
		version     string
		expectError bool
		major       int
		minor       int
		patch       int
	}{
		{"0.0.1", false, 0, 0, 1},
		{"1.0.0", false, 1, 0, 0},
		{"2.5.3", false, 2, 5, 3},
		{"10.99.42", false, 10, 99, 42},
		{"1.2.0-rc.1", false, 1, 2, 0},
		{"1.2.0+build.7", false, 1, 2, 0},
		{"invalid", true, 0, 0, 0},
		{"1", true, 0, 0, 0},
		{"1.2", true, 0, 0, 0},
		{"1.-2.0", true, 0, 0, 0},
	}

	for _, tt := range tests {
		v, err := Parse(tt.version)
		if tt.expectError {
			if err == nil {
				t.Errorf("Parse(%q) expected error but got none", tt.version)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tt.version, err)
		}
		if v.Major != tt.major || v.Minor != tt.minor || v.Patch != tt.patch {
			t.Errorf("Parse(%q) = %d.%d.%d, want %d.%d.%d", tt.version, v.Major, v.Minor, v.Patch, tt.major, tt.minor, tt.patch)
		}
	}
}

func TestIsCompatible(t *testing.T) {
	tests := []struct {
		pluginVersion string
		compatible    bool
		errorContains string
	}{
		// Same version
		{plugin.ProtocolVersion, true, ""},

		// Same major, higher minor or patch
		{"1.1.0", true, ""},
		{"1.0.7", true, ""},
		{"1.1.0-beta", true, ""},

		// Pre-release of the minimum sorts before it
		{"1.0.0-rc.1", false, "too old"},

		// Different major version
		{"0.9.0", false, "incompatible major version"},
		{"2.0.0", false, "incompatible major version"},

		// Invalid format
		{"invalid", false, "failed to parse"},
		{"1.2", false, "invalid version format"},
	}

	for _, tt := range tests {
		compatible, err := IsCompatible(tt.pluginVersion)

		if !tt.compatible {
			if compatible {
				t.Errorf("IsCompatible(%q) = true, want false", tt.pluginVersion)
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("IsCompatible(%q) error = %v, want error containing %q", tt.pluginVersion, err, tt.errorContains)
			}
			continue
		}

		if !compatible || err != nil {
			t.Errorf("IsCompatible(%q) = %v, %v; want true, nil", tt.pluginVersion, compatible, err)
		}
	}
}

func TestVersionString(t *testing.T) {
	if v := (Version{Major: 2, Minor: 0, Patch: 0, Prerelease: "rc.1"}); v.String() != "2.0.0-rc.1" || !v.Less(Version{Major: 2}) {
		t.Errorf("pre-release %s should print its suffix and sort before 2.0.0", v)
	}

	v := Version{Major: 1, Minor: 5, Patch: 3}
	if v.String() != "1.5.3" {
		t.Errorf("Version.String() = %q, want %q", v.String(), "1.5.3")
	}
	if !(Version{Major: 1, Minor: 4, Patch: 9}).Less(v) {
		t.Error("1.4.9 should sort before 1.5.3")
	}
	if CurrentVersion().String() != plugin.ProtocolVersion {
		t.Errorf("CurrentVersion() = %s, want %s", CurrentVersion(), plugin.ProtocolVersion)
	}
}

func TestParseInfo(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    plugin.PluginType
		wantErr string
	}{
		{"json default", `{"name":"mono"}`, plugin.PluginTypeJSON, ""},
		{"go-plugin", `{"name":"duotone","plugin_protocol":"go-plugin","protocol_version":"1.0.0"}`, plugin.PluginTypeGoPlugin, ""},
		{"trailing newline", "{\"name\":\"mono\",\"plugin_protocol\":\"json-stdio\"}\n", plugin.PluginTypeJSON, ""},
		{"unknown protocol", `{"name":"x","plugin_protocol":"grpc"}`, "", "unknown plugin_protocol"},
		{"missing name", `{"plugin_protocol":"json-stdio"}`, "", "missing a name"},
		{"bad json", `not json`, "", "failed to parse"},
		{"incompatible", `{"name":"old","protocol_version":"0.0.1"}`, "", "incompatible major version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInfo([]byte(tt.data))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseInfo() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInfo() unexpected error: %v", err)
			}
			if got.Type != tt.want {
				t.Errorf("Type = %s, want %s", got.Type, tt.want)
			}
			if got.PluginInfo.ProtocolVersion == "" {
				t.Error("ProtocolVersion should be defaulted")
			}
		})
	}
}
