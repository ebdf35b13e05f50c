// Package buildinfo holds values stamped in at link time:
//
//	go build -ldflags "-X expenses/internal/buildinfo.Version=v1.2.3"
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the build stamp for version output.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
