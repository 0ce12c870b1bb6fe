// Package version exposes build identification, set via ldflags.
package version

// Build information. Populated at build time:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.3"
var (
	Version = "dev"
	Commit  = ""
)

// String returns the human-readable build version.
func String() string {
	if Commit == "" {
		return Version
	}
	return Version + "+" + Commit
}
