// Package version holds build identification stamped in at link time.
package version

// Overridden via -ldflags, for example:
//
//	go build -ldflags "-X github.com/banshee-data/markovswitch/internal/version.Version=v0.2.0"
var (
	// Version is the release version.
	Version = "dev"
	// GitSHA is the git commit SHA.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
