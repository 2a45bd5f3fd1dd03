// Package version exposes the build version of mcpchat.
package version

// Version is overridden at build time with -ldflags "-X github.com/mcpjungle/mcpchat/pkg/version.Version=..."
var Version = "dev"

// GetVersion returns the version of the mcpchat binary.
func GetVersion() string {
	return Version
}
