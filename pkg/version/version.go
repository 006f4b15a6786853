// Package version holds build metadata stamped at link time with
// -ldflags "-X github.com/Sumatoshi-tech/pyconv/pkg/version.Version=...".
package version

import "fmt"

// Build metadata. Defaults identify a development build.
//
//nolint:gochecknoglobals // set by the linker.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the metadata on one line.
func String() string {
	return fmt.Sprintf("pyconv %s (commit %s, built %s)", Version, Commit, Date)
}
