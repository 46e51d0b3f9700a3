// Package version holds the application version reported over the bridge.
package version

import "runtime/debug"

// Version is set at build time:
//
//	go build -ldflags "-X backdesk/internal/version.Version=v1.2.0" ./cmd/backdesk
var Version = "dev"

// Get returns Version, falling back to the main module version recorded by
// the Go toolchain when no version was stamped.
func Get() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
