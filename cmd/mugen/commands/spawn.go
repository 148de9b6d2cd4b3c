package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mugen-ai/mugen/internal/printer"
	"github.com/mugen-ai/mugen/internal/supervisor"
	"github.com/mugen-ai/mugen/internal/watch"
	"github.com/mugen-ai/mugen/pkg/coord"
	"github.com/spf13/cobra"
)

var (
	spawnInstanceName string
	spawnWorkspace    string
	spawnWait         time.Duration
)

var spawnCmd = &cobra.Command{
	Use:   "spawn ROLE",
	Short: "Spawn a single agent process",
	Long: `Spawn one agent process outside of a solve workflow.

ROLE is a built-in role (explorer, planner, executor) or a custom role
defined under roles in mugen.yml.

The agent outlives this command: it keeps running, heartbeating and
serving queries until it receives a shutdown message or is swept after a
crash. Use 'mugen shutdown <id>' to take it down and 'mugen send' to hand
it work.

Examples:
  # A long-lived explorer other agents can query
  mugen spawn explorer

  # A custom role from mugen.yml
  mugen spawn reviewer`,
	Args: cobra.ExactArgs(1),
	RunE: runSpawn,
}

func init() {
	spawnCmd.Flags().StringVarP(&spawnInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	spawnCmd.Flags().StringVar(&spawnWorkspace, "workspace", "", "Directory the agent works in (default: current directory)")
	spawnCmd.Flags().DurationVar(&spawnWait, "wait", 10*time.Second, "How long to wait for the agent to report running")
	rootCmd.AddCommand(spawnCmd)
}

func runSpawn(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	role := args[0]

	workspace := spawnWorkspace
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		workspace = wd
	}
	workspace, err := filepath.Abs(workspace)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace path: %w", err)
	}

	conn, err := connectToInstance(ctx, spawnInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	cfg, err := loadWorkspaceConfig(workspace)
	if err != nil {
		return err
	}

	sup := supervisor.New(conn.Client, cfg, conn.RedisURL, workspace)
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}
	defer sup.Stop(context.Background())

	agentID, err := sup.Spawn(ctx, role)
	if err != nil {
		if errors.Is(err, supervisor.ErrCapReached) {
			return printer.Error(
				"agent cap reached",
				err.Error(),
				[]string{
					"Shut down agents you no longer need:\n  mugen status\n  mugen shutdown <id>",
					"Or raise agents.max_concurrent in mugen.yml",
				},
			)
		}
		return err
	}

	printer.Success("Spawned %s agent: %s\n", role, agentID)

	// Wait for the process to come up before this supervisor goes away.
	// The agent stays registered either way; a broken binary shows up as
	// failed in 'mugen status'.
	if spawnWait > 0 {
		if _, err := watch.WaitForStatus(ctx, conn.Client, agentID, coord.StatusRunning, spawnWait); err != nil {
			printer.Warning("Agent did not report running: %v\n", err)
			printer.Info("Check its state with:\n  mugen status\n")
			return nil
		}
		printer.Success("Agent %s is running\n", agentID)
	}

	printer.Info("\nNext steps:\n")
	printer.Info("  • Send it work: mugen send %s task '{\"task_id\":\"t1\",\"description\":\"...\"}'\n", agentID)
	printer.Info("  • Watch status: mugen status\n")
	printer.Info("  • Shut it down: mugen shutdown %s\n", agentID)

	return nil
}
