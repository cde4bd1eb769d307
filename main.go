// Command buildcache-action installs the buildcache compiler cache on a CI
// runner and carries its cache directory from one run to the next through a
// remote cache backend.
//
// It has two steps: "restore" runs before the build and "save" after it.
package main

import (
	"fmt"
	"runtime"
)

// Version information, set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	Execute()
}

func versionString() string {
	return fmt.Sprintf("buildcache-action %s (%s, %s, %s)", version, commit[:min(7, len(commit))], date, runtime.Version())
}
