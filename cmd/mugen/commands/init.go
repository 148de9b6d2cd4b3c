package commands

import (
	"fmt"
	"os"

	"github.com/mugen-ai/mugen/internal/git"
	"github.com/mugen-ai/mugen/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new mugen project",
	Long: `Initialize a new mugen project with a default configuration file.

Creates:
  • mugen.yml - Project configuration (agent caps, heartbeats, reasoning backend, custom roles)

This command must be run from the root of a Git repository.

Use --force to reinitialize an existing project (WARNING: overwrites existing configuration).`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Force reinitialization (overwrites existing mugen.yml)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	// Validate Git context first
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	checker := git.NewChecker(wd)
	if err := checker.ValidateGitContext(); err != nil {
		return err
	}

	// Check for existing files (unless --force)
	if !forceInit {
		if err := scaffold.CheckExisting(); err != nil {
			return err
		}
	}

	// Initialize the project
	if err := scaffold.Initialize(forceInit); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	// Print success message
	scaffold.PrintSuccess()

	return nil
}
