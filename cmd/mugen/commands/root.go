package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

var rootCmd = &cobra.Command{
	Use:   "mugen",
	Short: "Mugen - Multi-agent autonomous problem solver",
	Long: `Mugen coordinates a team of autonomous AI agents (explorer, planner,
executor) that collaborate on software engineering problems through a
shared Redis coordination layer.

Agents run as host processes supervised by mugen, claim file locks before
editing, publish findings to a shared state store, and exchange messages
over per-agent queues. All coordination state is inspectable while a
workflow runs.`,
	Version: version,
	// Running "mugen" with subcommand flags but no subcommand (e.g.
	// "mugen --max-executors 2") must fail loudly, not exit 0.
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Errors and usage are rendered by the printer package, not cobra.
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo records build metadata injected via -ldflags so that
// "mugen --version" reports the release, commit, and build date.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
