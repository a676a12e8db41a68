// Package version holds the build information of the embedfill binary.
//
// The variables are injected at build time:
//
//	-ldflags "-X embedfill/internal/version.version=v1.0.0 -X embedfill/internal/version.commit=abc123 -X embedfill/internal/version.buildTime=2025-01-01T00:00:00Z"
package version

import (
	"fmt"
	"io"
	"strings"
)

//nolint:gochecknoglobals // Required for build-time injection via ldflags.
var (
	version   string
	commit    string
	buildTime string
)

// ApplicationName is the name of the application displayed in version output.
const ApplicationName = "embedfill"

// Default values used when version information is not available.
const (
	DefaultVersion   = "dev"
	DefaultCommit    = "unknown"
	DefaultBuildTime = "unknown"
)

// VersionInfo is the build information with defaults applied.
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
}

// GetVersion returns the current build information.
func GetVersion() *VersionInfo {
	return &VersionInfo{
		Version:   withDefault(version, DefaultVersion),
		Commit:    withDefault(commit, DefaultCommit),
		BuildTime: withDefault(buildTime, DefaultBuildTime),
	}
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// FormatFull returns the multi-line human readable form.
func (vi *VersionInfo) FormatFull() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nVersion: %s\nCommit: %s\nBuilt: %s\n", ApplicationName, vi.Version, vi.Commit, vi.BuildTime)
	return b.String()
}

// Write writes only the version number when short is set, the full form otherwise.
func (vi *VersionInfo) Write(w io.Writer, short bool) error {
	if short {
		_, err := fmt.Fprintln(w, vi.Version)
		return err
	}
	_, err := io.WriteString(w, vi.FormatFull())
	return err
}

// IsDevelopment reports whether this is an untagged build.
func (vi *VersionInfo) IsDevelopment() bool {
	return vi.Version == DefaultVersion
}

// SetBuildVars overrides the injected values; used by cmd and tests.
func SetBuildVars(ver, com, bt string) {
	version = ver
	commit = com
	buildTime = bt
}

// ResetBuildVars clears the injected values.
func ResetBuildVars() {
	SetBuildVars("", "", "")
}
