package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/mugen-ai/mugen/internal/filter"
	"github.com/mugen-ai/mugen/internal/printer"
	"github.com/mugen-ai/mugen/internal/report"
	"github.com/mugen-ai/mugen/internal/timespec"
	"github.com/mugen-ai/mugen/pkg/coord"
	"github.com/spf13/cobra"
)

var (
	statusInstanceName string
	statusJSON         bool
	statusRole         string
	statusStatus       string
	statusSince        string
	statusLocks        bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registered agents and their state",
	Long: `Show all agents registered on the coordination layer.

Displays a table with one row per agent:
  ID, ROLE, STATUS, PID, AGE, HEARTBEAT, TASK

Filters:
  --role    - Filter by role (glob pattern: "exec*", "explorer")
  --status  - Filter by lifecycle status (exact: running, waiting, failed, ...)
  --since   - Only agents spawned after this time (duration or RFC3339)

Use --locks to append the held file locks, and --json for machine-readable
output.

Examples:
  # All agents on the inferred instance
  mugen status

  # Running executors spawned in the last 10 minutes
  mugen status --role "executor*" --status running --since 10m

  # Agents plus lock table
  mugen status --locks

  # JSON for scripting
  mugen status --json | jq '.[].id'`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	statusCmd.Flags().StringVar(&statusRole, "role", "", "Filter by agent role (glob pattern)")
	statusCmd.Flags().StringVar(&statusStatus, "status", "", "Filter by lifecycle status (exact match)")
	statusCmd.Flags().StringVar(&statusSince, "since", "", "Only agents spawned after time (duration or RFC3339)")
	statusCmd.Flags().BoolVar(&statusLocks, "locks", false, "Also show held file locks")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Validate the status filter up front so typos fail fast
	if statusStatus != "" {
		if err := coord.AgentStatus(statusStatus).Validate(); err != nil {
			return printer.Error(
				"invalid status filter",
				fmt.Sprintf("Unknown status: %s", statusStatus),
				[]string{"Valid statuses: spawned, running, waiting, completed, failed, terminated"},
			)
		}
	}

	// Parse the --since timespec
	var sinceMs int64
	if statusSince != "" {
		var err error
		sinceMs, err = timespec.Parse(statusSince)
		if err != nil {
			return printer.Error(
				"invalid --since value",
				fmt.Sprintf("Could not parse %q: %v", statusSince, err),
				[]string{"Use a duration (10m, 2h) or RFC3339 timestamp (2026-08-25T00:00:00Z)"},
			)
		}
	}

	conn, err := connectToInstance(ctx, statusInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	criteria := &filter.Criteria{
		SinceTimestampMs: sinceMs,
		RoleGlob:         statusRole,
		Status:           statusStatus,
	}

	format := report.OutputFormatDefault
	if statusJSON {
		format = report.OutputFormatJSON
	}

	if err := report.ListAgents(ctx, conn.Client, criteria, format, os.Stdout); err != nil {
		return err
	}

	// Lock table goes after the agent table; skipped in JSON mode to keep
	// the output a single parseable document
	if statusLocks && !statusJSON {
		fmt.Println()
		if err := report.ListLocks(ctx, conn.Client, os.Stdout); err != nil {
			return err
		}
	}

	return nil
}
