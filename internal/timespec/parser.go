// Package timespec parses the time arguments taken by CLI flags like
// --since and --until.
package timespec

import (
	"fmt"
	"time"
)

// Parse converts a time specification into a Unix timestamp in milliseconds.
// Two forms are accepted:
//   - a Go duration ("1h", "30m", "1h30m"), taken relative to now, so "1h"
//     means one hour ago
//   - an RFC3339 timestamp ("2026-08-25T13:00:00Z")
func Parse(spec string) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		return time.Now().Add(-d).UnixMilli(), nil
	}

	return 0, fmt.Errorf("invalid time specification: %s (use a duration like '1h30m' or RFC3339 like '2026-08-25T13:00:00Z')", spec)
}

// ParseRange parses the --since and --until flag values into a pair of
// millisecond timestamps. An empty spec leaves that end of the range
// unbounded (zero). When both are given, since must come before until.
func ParseRange(since, until string) (int64, int64, error) {
	var sinceMS, untilMS int64
	var err error

	if since != "" {
		sinceMS, err = Parse(since)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		untilMS, err = Parse(until)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if sinceMS > 0 && untilMS > 0 && sinceMS >= untilMS {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}

	return sinceMS, untilMS, nil
}
