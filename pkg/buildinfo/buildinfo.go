// Package buildinfo carries version information stamped in at build time.
package buildinfo

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// Name is the program name reported by `version` and /version.
const Name = "judgeroute"

// These vars are set at build time via ldflags:
// -X github.com/otherjamesbrown/judgeroute/pkg/buildinfo.Version=v0.3.0
// -X github.com/otherjamesbrown/judgeroute/pkg/buildinfo.Commit=4e1c0aa
// -X github.com/otherjamesbrown/judgeroute/pkg/buildinfo.BuildTime=2026-10-01T12:00:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info holds build information.
type Info struct {
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the build info of this binary.
func Get() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a human-readable one-liner like "v0.3.0 (4e1c0aa, 2026-10-01T12:00:00Z)"
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// Handler returns an HTTP handler that responds with build info JSON.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Get())
	}
}
