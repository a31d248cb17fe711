// Package version carries build metadata set through -ldflags.
package version

var (
	// Version is the release tag.
	Version = "dev"
	// Commit is the git revision.
	Commit = ""
	// BuildDate is the build timestamp.
	BuildDate = ""
)
