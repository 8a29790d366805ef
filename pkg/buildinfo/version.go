// Package buildinfo carries the version stamped into the binary at build
// time, used for the User-Agent sent to devpi servers.
package buildinfo

import "fmt"

// Set at build time, e.g.:
//
//	go build -ldflags "-X github.com/devpi-tools/devpi-client/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/devpi-tools/devpi-client/pkg/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	    -X github.com/devpi-tools/devpi-client/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns a one-line human-readable build description.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}

// UserAgent returns the version-stamped User-Agent value sent with every
// request to a devpi server.
func UserAgent() string {
	return "devpi-client-go/" + Version
}
