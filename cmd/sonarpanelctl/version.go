package main

import "runtime/debug"

// Version is set at build time via -ldflags "-X main.version=x.y.z" and
// falls back to the module version for go install builds.
var Version = getVersion()

var version string

func getVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}
