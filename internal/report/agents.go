// Package report renders registry and shared-state contents for the CLI.
// It produces the fixed-width tables behind `mugen status` and `mugen state
// list` plus the JSON variants used for scripting.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/mugen-ai/mugen/internal/filter"
	"github.com/mugen-ai/mugen/pkg/coord"
)

// ListAgents retrieves all registered agents for the client's instance and
// writes them to the provided writer. Applies filter criteria if provided.
// Sorts agents by spawn time (oldest first) for stable output.
func ListAgents(ctx context.Context, client *coord.Client, criteria *filter.Criteria, format OutputFormat, w io.Writer) error {
	agents, err := client.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list agents: %w", err)
	}

	if criteria != nil && criteria.HasFilters() {
		kept := agents[:0]
		for _, a := range agents {
			if criteria.Matches(a) {
				kept = append(kept, a)
			}
		}
		agents = kept
	}

	sort.Slice(agents, func(i, j int) bool {
		if agents[i].SpawnedAtMs != agents[j].SpawnedAtMs {
			return agents[i].SpawnedAtMs < agents[j].SpawnedAtMs
		}
		return agents[i].ID < agents[j].ID
	})

	switch format {
	case OutputFormatDefault:
		FormatAgentTable(w, agents, client.InstanceName())
	case OutputFormatJSON:
		if err := FormatAgentsJSON(w, agents); err != nil {
			return fmt.Errorf("failed to format JSON output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}

// FormatAgentTable writes agents as a formatted table to the provided writer.
// The table includes columns: ID, ROLE, STATUS, PID, AGE, HEARTBEAT, and TASK
// (truncated). Returns the number of agents formatted.
func FormatAgentTable(w io.Writer, agents []*coord.AgentHandle, instanceName string) int {
	if len(agents) == 0 {
		fmt.Fprintf(w, "No agents registered for instance '%s'\n", instanceName)
		return 0
	}

	// Print header
	fmt.Fprintf(w, "Agents for instance '%s':\n\n", instanceName)

	// Print header row
	fmt.Fprintf(w, "%-16s %-12s %-11s %-7s %-8s %-10s %s\n",
		"ID", "ROLE", "STATUS", "PID", "AGE", "HEARTBEAT", "TASK")
	fmt.Fprintf(w, "%-16s %-12s %-11s %-7s %-8s %-10s %s\n",
		"----------------", "------------", "-----------", "-------", "--------", "----------", "----------------------------------------")

	// Print data rows
	for _, a := range agents {
		fmt.Fprintf(w, "%-16s %-12s %-11s %-7s %-8s %-10s %s\n",
			a.ID,
			a.Role,
			a.Status,
			formatPID(a.PID),
			formatRelativeMs(a.SpawnedAtMs),
			formatRelativeMs(a.LastHeartbeatMs),
			formatTask(a),
		)
	}

	// Print count
	countMsg := "agent"
	if len(agents) != 1 {
		countMsg = "agents"
	}
	fmt.Fprintf(w, "\n%d %s registered\n", len(agents), countMsg)

	return len(agents)
}

// FormatAgentsJSON writes agents as a pretty-printed JSON array to the
// provided writer. This format is ideal for processing with tools like jq.
func FormatAgentsJSON(w io.Writer, agents []*coord.AgentHandle) error {
	if agents == nil {
		agents = []*coord.AgentHandle{}
	}

	data, err := json.MarshalIndent(agents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal agents to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	fmt.Fprintln(w)

	return nil
}

// formatPID formats the process id for table display. Zero means the agent
// process has not announced itself yet and renders as "-".
func formatPID(pid int) string {
	if pid == 0 {
		return "-"
	}
	return strconv.Itoa(pid)
}

// formatTask picks the most useful short description for the TASK column:
// the in-flight task while one exists, otherwise the last error for failed
// agents. Empty values return "-".
func formatTask(a *coord.AgentHandle) string {
	if a.CurrentTask != "" {
		return firstLine(a.CurrentTask, 40)
	}
	if a.Status == coord.StatusFailed && a.LastError != "" {
		return firstLine("error: "+a.LastError, 40)
	}
	return "-"
}
