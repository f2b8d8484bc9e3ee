// Package version holds the build identity, set through -ldflags -X.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"               // ex: v0.3.1
	Commit    = "none"              // ex: abcd123
	BuildDate = "unknown"           // ex: 2025-08-11T18:42:00Z
	GoVersion = runtime.Version()
)

// String is the one line identity printed by `linkup version` and logged at
// server start.
func String() string {
	return fmt.Sprintf("linkup %s (commit=%s, built=%s, go=%s)", Version, Commit, BuildDate, GoVersion)
}

// UserAgent is sent by the CLI on every call to a linkup server.
func UserAgent() string {
	return fmt.Sprintf("linkup-cli/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}
