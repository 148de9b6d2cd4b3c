package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mugen-ai/mugen/internal/printer"
	"github.com/mugen-ai/mugen/internal/report"
	"github.com/mugen-ai/mugen/internal/timespec"
	"github.com/mugen-ai/mugen/internal/watch"
	"github.com/mugen-ai/mugen/pkg/coord"
	"github.com/spf13/cobra"
)

var (
	stateInstanceName string
	stateOutputFormat string
	stateSince        string
	stateUntil        string
	stateWatchTimeout time.Duration
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and modify the shared state store",
	Long: `Inspect and modify the versioned shared state store agents publish
findings to.

Every entry carries a monotonically increasing version; writes from the CLI
bump it like any agent write would.

Examples:
  # List all keys
  mugen state list

  # Keys written in the last hour, as JSONL
  mugen state list --since 1h --output jsonl

  # Fetch one entry as pretty JSON
  mugen state get exploration/summary

  # Write a value (agents see the new version immediately)
  mugen state set run/pause '{"paused": true}'

  # Block until somebody bumps the key
  mugen state watch plan/tasks`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List shared state entries",
	Long: `List shared state entries as a table (KEY, VER, AGE, VALUE) or as
line-delimited JSON.

Time Filters:
  --since  - Show entries updated after this time
  --until  - Show entries updated before this time`,
	RunE: runStateList,
}

var stateGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Fetch a single state entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateGet,
}

var stateSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Write a state entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runStateSet,
}

var stateWatchCmd = &cobra.Command{
	Use:   "watch KEY",
	Short: "Block until a state entry changes",
	Long: `Block until the entry's version exceeds what it was when the watch
started, printing each change as line-delimited JSON.

With --timeout 0 (the default) the watch runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runStateWatch,
}

func init() {
	stateCmd.PersistentFlags().StringVarP(&stateInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")

	stateListCmd.Flags().StringVarP(&stateOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	stateListCmd.Flags().StringVar(&stateSince, "since", "", "Show entries updated after time (duration or RFC3339)")
	stateListCmd.Flags().StringVar(&stateUntil, "until", "", "Show entries updated before time (duration or RFC3339)")

	stateWatchCmd.Flags().DurationVar(&stateWatchTimeout, "timeout", 0, "Give up after this long without a change (0 = wait forever)")

	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateGetCmd)
	stateCmd.AddCommand(stateSetCmd)
	stateCmd.AddCommand(stateWatchCmd)
	rootCmd.AddCommand(stateCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Validate output format
	var outputFormat report.OutputFormat
	switch stateOutputFormat {
	case "default":
		outputFormat = report.OutputFormatDefault
	case "jsonl":
		outputFormat = report.OutputFormatJSONL
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", stateOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	sinceMs, untilMs, err := timespec.ParseRange(stateSince, stateUntil)
	if err != nil {
		return printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use duration format like '1h30m' or RFC3339 like '2026-08-25T13:00:00Z'"},
		)
	}

	conn, err := connectToInstance(ctx, stateInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := report.ListState(ctx, conn.Client, sinceMs, untilMs, outputFormat, os.Stdout); err != nil {
		return fmt.Errorf("failed to list state: %w", err)
	}

	return nil
}

func runStateGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	key := args[0]

	conn, err := connectToInstance(ctx, stateInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := report.GetStateEntry(ctx, conn.Client, key, os.Stdout); err != nil {
		if report.IsNotFound(err) {
			return printer.Error(
				fmt.Sprintf("state key '%s' not found", key),
				"No agent has written this key on the target instance.",
				[]string{
					"List all keys:\n  mugen state list",
					fmt.Sprintf("Verify instance:\n  mugen state list --name %s", conn.InstanceName),
				},
			)
		}
		return fmt.Errorf("failed to get state entry: %w", err)
	}

	return nil
}

func runStateSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	key, value := args[0], args[1]

	if key == "" {
		return printer.Error(
			"empty state key",
			"State keys must be non-empty strings.",
			[]string{"Example:\n  mugen state set run/pause '{\"paused\": true}'"},
		)
	}

	conn, err := connectToInstance(ctx, stateInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	version, err := conn.Client.SetState(ctx, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state: %w", err)
	}

	printer.Success("Set '%s' (version %d)\n", key, version)
	return nil
}

func runStateWatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	key := args[0]

	conn, err := connectToInstance(ctx, stateInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Start from the current version so only changes after the watch
	// began are reported
	var sinceVersion int64
	entry, err := conn.Client.GetState(ctx, key)
	switch {
	case err == nil:
		sinceVersion = entry.Version
		printer.Info("Watching '%s' from version %d...\n", key, sinceVersion)
	case coord.IsNotFound(err):
		printer.Info("Watching '%s' (not written yet)...\n", key)
	default:
		return fmt.Errorf("failed to read state: %w", err)
	}

	// Treat 0 as no deadline
	wait := stateWatchTimeout
	if wait <= 0 {
		wait = 24 * 365 * time.Hour
	}

	for {
		updated, err := watch.WaitForStateChange(ctx, conn.Client, key, sinceVersion, wait)
		if err != nil {
			if stateWatchTimeout > 0 {
				return printer.Error(
					"no change observed",
					fmt.Sprintf("Key '%s' did not change within %v.", key, stateWatchTimeout),
					[]string{fmt.Sprintf("Check the current value:\n  mugen state get %s", key)},
				)
			}
			return err
		}

		if err := report.FormatStateJSONL(os.Stdout, []*coord.SharedStateEntry{updated}); err != nil {
			return err
		}
		sinceVersion = updated.Version
	}
}
