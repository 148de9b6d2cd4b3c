package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mugen-ai/mugen/internal/printer"
	"github.com/mugen-ai/mugen/internal/watch"
	"github.com/mugen-ai/mugen/pkg/coord"
	"github.com/spf13/cobra"
)

var (
	watchInstanceName string
	watchOutputFormat string
	watchInterval     time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor agent lifecycle activity",
	Long: `Monitor agent status transitions in real time.

Streams one line per observed change: agents appearing, picking up work,
going idle, completing, failing or being terminated. Runs until
interrupted.

Output Formats:
  default - Human-readable lines with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch all activity on inferred instance
  mugen watch

  # Watch specific instance
  mugen watch --name prod

  # Export events as JSON
  mugen watch --output=json > events.jsonl`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "Registry poll interval")
	rootCmd.AddCommand(watchCmd)
}

// watchEvent is the JSON shape of one streamed status change.
type watchEvent struct {
	Timestamp string `json:"timestamp"`
	AgentID   string `json:"agent_id"`
	Role      string `json:"role"`
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Task      string `json:"task,omitempty"`
	Error     string `json:"error,omitempty"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Validate output format
	switch watchOutputFormat {
	case "default", "json":
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	conn, err := connectToInstance(ctx, watchInstanceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	if watchOutputFormat == "default" {
		printer.Info("Watching instance '%s' (Ctrl+C to stop)...\n\n", conn.InstanceName)
	}

	return watch.Stream(ctx, conn.Client, watchInterval, func(ev watch.Event) {
		if watchOutputFormat == "json" {
			printEventJSON(ev)
		} else {
			printEventLine(ev)
		}
	})
}

func printEventLine(ev watch.Event) {
	ts := time.Now().Format("15:04:05")
	agent := ev.Agent

	if ev.From == "" {
		fmt.Printf("[%s] %s (%s) %s\n", ts, agent.ID, agent.Role, agent.Status)
		return
	}

	line := fmt.Sprintf("[%s] %s %s", ts, agent.ID, agent.Status)
	switch {
	case agent.Status == coord.StatusFailed && agent.LastError != "":
		line += fmt.Sprintf(": %s", agent.LastError)
	case agent.Status == coord.StatusRunning && agent.CurrentTask != "":
		line += fmt.Sprintf(": %s", agent.CurrentTask)
	default:
		line += fmt.Sprintf(" (was %s)", ev.From)
	}
	fmt.Println(line)
}

func printEventJSON(ev watch.Event) {
	agent := ev.Agent
	out := watchEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		AgentID:   agent.ID,
		Role:      agent.Role,
		From:      string(ev.From),
		To:        string(agent.Status),
		Task:      agent.CurrentTask,
		Error:     agent.LastError,
	}

	data, err := json.Marshal(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal event: %v\n", err)
		return
	}
	fmt.Println(string(data))
}
