// Package version holds the build-time version metadata for raggate.
package version

// Version is the semantic version of the raggate binary.
// Overridden at build time via:
//
//	go build -ldflags "-X github.com/jjellis/raggate/internal/version.Version=v0.3.0"
var Version = "dev"

// Commit is the short git commit hash the binary was built from.
// Overridden at build time alongside Version.
var Commit = "unknown"
