package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mugen-ai/mugen/internal/printer"
	"github.com/mugen-ai/mugen/internal/supervisor"
	"github.com/mugen-ai/mugen/internal/workflow"
	"github.com/spf13/cobra"
)

var (
	solveInstanceName string
	solveWorkspace    string
	solveTimeout      time.Duration
	solveMaxExecutors int
	solveForce        bool
)

var solveCmd = &cobra.Command{
	Use:   "solve \"PROBLEM\"",
	Short: "Run the explore/plan/execute workflow on a problem",
	Long: `Run the full multi-agent workflow on a problem statement.

Spawns an explorer and a planner, streams their phases, then fans the
planned tasks out to executor agents. All agents are shut down when the
solve finishes, succeeds or not.

Execution refuses to run over uncommitted Git changes so agent-written
code stays separable from your own work; pass --force to override.

Examples:
  # Solve in the current workspace
  mugen solve "Add input validation to the signup endpoint"

  # Bound the whole solve and widen the executor pool
  mugen solve --timeout 30m --max-executors 5 "Migrate config loading to YAML"

  # Work in another checkout
  mugen solve --workspace ../service "Fix the flaky retry test"`,
	Args: cobra.ExactArgs(1),
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().StringVarP(&solveInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	solveCmd.Flags().StringVar(&solveWorkspace, "workspace", "", "Directory agents explore and write into (default: current directory)")
	solveCmd.Flags().DurationVar(&solveTimeout, "timeout", 0, "Overall solve deadline (0 = phase timeouts only)")
	solveCmd.Flags().IntVar(&solveMaxExecutors, "max-executors", 0, "Executor agents spawned for the execution phase (default 3)")
	solveCmd.Flags().BoolVar(&solveForce, "force", false, "Run execution even with uncommitted Git changes")
	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	problem := args[0]

	// Resolve the workspace before connecting so path errors surface first
	workspace := solveWorkspace
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
	if info, err := os.Stat(workspace); err != nil || !info.IsDir() {
		return printer.Error(
			"workspace not found",
			fmt.Sprintf("'%s' is not a directory.", workspace),
			[]string{"Pass an existing directory:\n  mugen solve --workspace ./my-project \"...\""},
		)
	}

	conn, err := connectToInstance(ctx, solveInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	cfg, err := loadWorkspaceConfig(workspace)
	if err != nil {
		return err
	}

	if solveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, solveTimeout)
		defer cancel()
	}

	// The supervisor hosts the agent processes for the duration of the
	// solve; its maintenance loop catches crashes mid-workflow.
	sup := supervisor.New(conn.Client, cfg, conn.RedisURL, workspace)
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}
	defer sup.Stop(context.Background())

	solver := workflow.New(sup, conn.Client, workspace, workflow.Options{
		MaxExecutors: solveMaxExecutors,
		Force:        solveForce,
	})

	summary, err := solver.Solve(ctx, problem)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return printer.Error(
				"solve timed out",
				fmt.Sprintf("The workflow did not finish within %v.", solveTimeout),
				[]string{
					"Inspect what the agents got done:\n  mugen state list",
					"Re-run with a larger budget:\n  mugen solve --timeout 1h \"...\"",
				},
			)
		}
		return err
	}

	if failed := len(summary.Outcomes) - summary.Succeeded; failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(summary.Outcomes))
	}

	return nil
}
