// Package version reports the build version of tiered binaries.
//
// Version, commit and build time can be set at compile time:
//
//	go build -ldflags "-X github.com/kbukum/tiered/version.Version=1.2.0"
//
// Anything left unset is filled from the VCS information the go tool
// stamps into the binary.
package version
