package version

// version is set at build time with
// -ldflags "-X github.com/davemo88/ggez-multiplayer/pkg/version.version=<tag>"
var version = "dev"

// Get returns the version of the running binary.
func Get() string {
	return version
}
