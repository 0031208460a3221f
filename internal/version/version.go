// Package version carries the build stamp reported on /healthz and --version.
package version

import "strings"

// Version is injected at build time:
//
//	-ldflags "-X github.com/perchlabs/wrenbot/internal/version.Version=v1.2.3"
var Version = "dev"

// String returns the trimmed stamp, or "dev" when the build injected an
// empty value.
func String() string {
	if v := strings.TrimSpace(Version); v != "" {
		return v
	}
	return "dev"
}
