// Package version exposes build information stamped in via ldflags.
package version

import "fmt"

// Populated at build time; the defaults identify an untagged local build.
var (
	// Version is the semantic version of the build.
	Version = "dev"

	// GitCommit is the git commit hash of the build.
	GitCommit = "unknown"

	// BuildTime is when the binary was built.
	BuildTime = "unknown"
)

// Full returns the version, commit and build time as one display string.
func Full() string {
	return fmt.Sprintf("%s (%s) built at %s", Version, GitCommit, BuildTime)
}
