package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mugen-ai/mugen/internal/printer"
	"github.com/mugen-ai/mugen/internal/resolver"
	"github.com/mugen-ai/mugen/pkg/coord"
	"github.com/spf13/cobra"
)

var (
	sendInstanceName string
	sendFrom         string
)

var sendCmd = &cobra.Command{
	Use:   "send AGENT_ID KIND JSON",
	Short: "Inject a message into an agent's queue",
	Long: `Enqueue a raw message for an agent, exactly as another agent would.

KIND is one of: query, response, task, result, status, shutdown.
JSON is the payload, passed through unmodified.

AGENT_ID accepts a unique prefix (at least 4 characters) or the literal
"broadcast" to fan the message out to every registered agent.

Intended for debugging and driving agents by hand; workflows normally
exchange these messages on their own.

Examples:
  # Hand an executor a task
  mugen send executor-1 task '{"task_id":"t1","description":"add retry logic"}'

  # Ask an explorer a question (watch its queue drain with mugen status)
  mugen send explorer-1 query '{"question":"where is the config parsed?"}'

  # Tell everyone to wind down
  mugen send broadcast shutdown '{"reason":"maintenance"}'`,
	Args: cobra.ExactArgs(3),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	sendCmd.Flags().StringVar(&sendFrom, "from", "operator", "Sender recorded on the message")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ref, kindArg, payload := args[0], args[1], args[2]

	kind := coord.MessageKind(kindArg)
	if err := kind.Validate(); err != nil {
		return printer.Error(
			"invalid message kind",
			fmt.Sprintf("Unknown kind: %s", kindArg),
			[]string{"Valid kinds: query, response, task, result, status, shutdown"},
		)
	}

	if !json.Valid([]byte(payload)) {
		return printer.Error(
			"invalid payload",
			"The payload must be valid JSON.",
			[]string{"Quote it for your shell:\n  mugen send executor-1 task '{\"task_id\":\"t1\",\"description\":\"...\"}'"},
		)
	}

	conn, err := connectToInstance(ctx, sendInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	// "broadcast" is a routing target, not an agent; everything else
	// resolves through the registry
	to := ref
	if to != coord.Broadcast {
		to, err = resolver.ResolveAgentID(ctx, conn.Client, ref)
		if err != nil {
			if resolver.IsNotFoundError(err) {
				return printer.Error(
					fmt.Sprintf("agent '%s' not found", ref),
					"No registered agent matches this ID or prefix.",
					[]string{"List agents:\n  mugen status"},
				)
			}
			if resolver.IsAmbiguousError(err) {
				ambigErr := err.(*resolver.AmbiguousError)
				fmt.Fprintln(os.Stderr, resolver.FormatAmbiguousError(ambigErr))
				return fmt.Errorf("ambiguous agent ID")
			}
			return fmt.Errorf("failed to resolve agent ID: %w", err)
		}
	}

	msg, err := coord.NewMessage(sendFrom, to, kind, json.RawMessage(payload))
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	id, err := conn.Client.Send(ctx, msg)
	if err != nil {
		if coord.IsUnknownRecipient(err) {
			return printer.Error(
				fmt.Sprintf("agent '%s' is not registered", to),
				"The agent disappeared between resolution and send.",
				[]string{"List agents:\n  mugen status"},
			)
		}
		return fmt.Errorf("failed to send message: %w", err)
	}

	if to == coord.Broadcast && id == 0 {
		printer.Warning("No agents registered, broadcast went nowhere\n")
		return nil
	}

	printer.Success("Message %d sent to %s\n", id, to)
	return nil
}
