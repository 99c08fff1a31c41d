// Package version holds build metadata injected at link time.
package version

var (
	// Version is the release version, set via -ldflags at build time.
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "unknown"
)
