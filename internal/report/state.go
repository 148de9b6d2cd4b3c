package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mugen-ai/mugen/pkg/coord"
)

// ListState retrieves all shared-state entries for the client's instance and
// writes them to the provided writer. sinceMs and untilMs bound the last
// update time in Unix milliseconds; 0 disables that bound.
// Sorts entries by key for stable output.
// Skips unreadable entries with a warning to stderr but continues processing.
func ListState(ctx context.Context, client *coord.Client, sinceMs, untilMs int64, format OutputFormat, w io.Writer) error {
	keys, err := client.ListStateKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list state keys: %w", err)
	}

	var entries []*coord.SharedStateEntry
	for _, key := range keys {
		entry, err := client.GetState(ctx, key)
		if err != nil {
			if coord.IsNotFound(err) {
				// Deleted between scan and fetch
				continue
			}
			fmt.Fprintf(os.Stderr, "⚠️  Skipping unreadable state entry: key=%s (error: %v)\n", key, err)
			continue
		}

		if sinceMs > 0 && entry.UpdatedAtMs < sinceMs {
			continue
		}
		if untilMs > 0 && entry.UpdatedAtMs > untilMs {
			continue
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})

	switch format {
	case OutputFormatDefault:
		FormatStateTable(w, entries, client.InstanceName())
	case OutputFormatJSONL:
		if err := FormatStateJSONL(w, entries); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}

// FormatStateTable writes state entries as a formatted table to the provided
// writer. The table includes columns: KEY, VER, AGE, and VALUE (truncated).
// Returns the number of entries formatted.
func FormatStateTable(w io.Writer, entries []*coord.SharedStateEntry, instanceName string) int {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No shared state for instance '%s'\n", instanceName)
		return 0
	}

	// Print header
	fmt.Fprintf(w, "Shared state for instance '%s':\n\n", instanceName)

	// Print header row
	fmt.Fprintf(w, "%-24s %-6s %-8s %s\n",
		"KEY", "VER", "AGE", "VALUE")
	fmt.Fprintf(w, "%-24s %-6s %-8s %s\n",
		"------------------------", "------", "--------", "----------------------------------------")

	// Print data rows
	for _, e := range entries {
		fmt.Fprintf(w, "%-24s %-6s %-8s %s\n",
			firstLine(e.Key, 24),
			fmt.Sprintf("v%d", e.Version),
			formatRelativeMs(e.UpdatedAtMs),
			firstLine(e.Value, 40),
		)
	}

	// Print count
	countMsg := "entry"
	if len(entries) != 1 {
		countMsg = "entries"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(entries), countMsg)

	return len(entries)
}

// FormatStateJSONL writes state entries as line-delimited JSON (JSONL) to the
// provided writer. Each entry is written as a single JSON object on its own
// line. This format is ideal for streaming and processing with tools like jq.
func FormatStateJSONL(w io.Writer, entries []*coord.SharedStateEntry) error {
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal state entry to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// GetStateEntry retrieves a single shared-state entry by key and writes it as
// pretty-printed JSON to the writer.
// Uses coord.IsNotFound() to distinguish "not found" errors from other errors.
func GetStateEntry(ctx context.Context, client *coord.Client, key string, w io.Writer) error {
	entry, err := client.GetState(ctx, key)
	if err != nil {
		if coord.IsNotFound(err) {
			return &StateNotFoundError{Key: key}
		}
		return fmt.Errorf("failed to fetch state entry: %w", err)
	}

	if err := FormatSingleJSON(w, entry); err != nil {
		return fmt.Errorf("failed to format state entry: %w", err)
	}

	return nil
}

// StateNotFoundError represents a specific "state key not found" error.
// This allows callers to distinguish not-found errors from other failures.
type StateNotFoundError struct {
	Key string
}

func (e *StateNotFoundError) Error() string {
	return fmt.Sprintf("state key '%s' not found", e.Key)
}

// IsNotFound returns true if the error is a StateNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*StateNotFoundError)
	return ok
}
