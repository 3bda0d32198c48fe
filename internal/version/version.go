// Package version carries the build identity stamped by ldflags.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Set by ldflags during build
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

// AWS caps the application ID in the user agent at 50 characters
const maxAppIDLength = 50

// BuildInfo identifies the running binary in --version output and AWS request user agents
type BuildInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GitCommit string `json:"gitCommit"`
	GoVersion string `json:"goVersion"`
}

// Get returns the build information.
func Get() BuildInfo {
	return BuildInfo{
		Version:   version,
		BuildDate: buildDate,
		GitCommit: gitCommit,
		GoVersion: runtime.Version(),
	}
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("autoprotect version %s (commit: %s, built: %s, %s)", b.Version, b.GitCommit, b.BuildDate, b.GoVersion)
}

// AppID tags every control plane request, so CloudTrail shows which build changed a function
func (b BuildInfo) AppID() string {
	id := "autoprotect-" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, b.Version)
	if len(id) > maxAppIDLength {
		id = id[:maxAppIDLength]
	}
	return id
}
