// Command dualscan scans a host's ports over TCP and UDP.
package main

import (
	"github.com/anstrom/dualscan/cmd/cli"
)

// Build information, set by ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
