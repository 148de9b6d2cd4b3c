package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// OutputFormat specifies how to format listing output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated values
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON outputs complete records as a pretty-printed JSON array
	OutputFormatJSON OutputFormat = "json"

	// OutputFormatJSONL outputs complete records as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// FormatSingleJSON writes a single record as pretty-printed JSON to the
// provided writer. Used in get mode to display complete details.
func FormatSingleJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	// Add newline for clean output
	fmt.Fprintln(w)

	return nil
}

// formatRelativeMs formats a Unix timestamp in milliseconds as a relative
// time like "2m ago", "1h ago", etc. Zero timestamps return "-".
func formatRelativeMs(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	t := time.Unix(timestampMs/1000, (timestampMs%1000)*1000000)
	diff := time.Since(t)

	if diff < time.Minute {
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	} else if diff < time.Hour {
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	} else {
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

// firstLine reduces a value to its first non-empty line with at most max
// characters for table display. Empty values return "-".
func firstLine(value string, max int) string {
	if value == "" {
		return "-"
	}

	// Get first non-empty line
	lines := strings.Split(value, "\n")
	var first string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			first = trimmed
			break
		}
	}

	// If all lines were empty
	if first == "" {
		return "-"
	}

	if len(first) > max {
		return first[:max-3] + "..."
	}

	return first
}
