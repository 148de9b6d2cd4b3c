package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mugen-ai/mugen/internal/config"
	"github.com/mugen-ai/mugen/internal/printer"
	"github.com/mugen-ai/mugen/internal/resolver"
	"github.com/mugen-ai/mugen/internal/supervisor"
	"github.com/spf13/cobra"
)

var (
	shutdownInstanceName string
	shutdownTimeout      time.Duration
	shutdownAll          bool
	shutdownReason       string
)

var shutdownCmd = &cobra.Command{
	Use:   "shutdown [AGENT_ID]",
	Short: "Shut down an agent gracefully",
	Long: `Ask an agent to finish its current work and exit.

The agent gets a shutdown message and a grace period (--timeout). An agent
that does not exit in time is killed by PID and recorded as terminated.
Either way its file locks are released.

AGENT_ID accepts a unique prefix (at least 4 characters), so
"mugen shutdown expl" works when a single explorer is running.

Use --all to take down every live agent on the instance.

Examples:
  # Graceful shutdown with the default grace period
  mugen shutdown executor-2

  # By prefix, with a longer grace period
  mugen shutdown plan --timeout 30s

  # Everything at once
  mugen shutdown --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShutdown,
}

func init() {
	shutdownCmd.Flags().StringVarP(&shutdownInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	shutdownCmd.Flags().DurationVar(&shutdownTimeout, "timeout", 10*time.Second, "Grace period before the agent is killed")
	shutdownCmd.Flags().BoolVar(&shutdownAll, "all", false, "Shut down every live agent")
	shutdownCmd.Flags().StringVar(&shutdownReason, "reason", "operator requested shutdown", "Reason recorded in the shutdown message")
	rootCmd.AddCommand(shutdownCmd)
}

func runShutdown(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if shutdownAll == (len(args) == 1) {
		return printer.Error(
			"nothing to shut down",
			"Pass an agent ID or --all, but not both.",
			[]string{
				"One agent:\n  mugen shutdown executor-1",
				"Everything:\n  mugen shutdown --all",
			},
		)
	}

	conn, err := connectToInstance(ctx, shutdownInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	// An unstarted supervisor can still shut agents down: agents spawned
	// by other processes are signalled over the bus and reaped by PID.
	sup := supervisor.New(conn.Client, config.Default(), conn.RedisURL, "")

	if shutdownAll {
		printer.Step("Shutting down all live agents...\n")
		if err := sup.ShutdownAll(ctx, shutdownReason, shutdownTimeout); err != nil {
			return fmt.Errorf("shutdown incomplete: %w", err)
		}
		printer.Success("All agents shut down\n")
		return nil
	}

	// Resolve prefix to full agent ID
	agentID, err := resolver.ResolveAgentID(ctx, conn.Client, args[0])
	if err != nil {
		if resolver.IsNotFoundError(err) {
			return printer.Error(
				fmt.Sprintf("agent '%s' not found", args[0]),
				"No registered agent matches this ID or prefix.",
				[]string{
					"List agents:\n  mugen status",
					fmt.Sprintf("Verify instance:\n  mugen status --name %s", conn.InstanceName),
				},
			)
		}
		if resolver.IsAmbiguousError(err) {
			ambigErr := err.(*resolver.AmbiguousError)
			fmt.Fprintln(os.Stderr, resolver.FormatAmbiguousError(ambigErr))
			return fmt.Errorf("ambiguous agent ID")
		}
		return fmt.Errorf("failed to resolve agent ID: %w", err)
	}

	printer.Step("Shutting down %s (grace period %v)...\n", agentID, shutdownTimeout)
	if err := sup.Shutdown(ctx, agentID, shutdownReason, shutdownTimeout); err != nil {
		return fmt.Errorf("failed to shut down %s: %w", agentID, err)
	}

	printer.Success("Agent %s shut down\n", agentID)
	return nil
}
