// Package main is the entry point for the study tracker server.
//
// main stays minimal: it builds the cobra command tree and runs it. All
// actual logic lives in internal/.
package main

import (
	"fmt"
	"os"
)

// Version information set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
