package main

import (
	"fmt"
	"os"

	"github.com/mugen-ai/mugen/cmd/mugen/commands"
)

// Build-time version metadata, injected via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
