package report

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/mugen-ai/mugen/pkg/coord"
)

// ListLocks retrieves all held locks for the client's instance and writes
// them to the provided writer, oldest first.
func ListLocks(ctx context.Context, client *coord.Client, w io.Writer) error {
	locks, err := client.ListLocks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list locks: %w", err)
	}

	sort.Slice(locks, func(i, j int) bool {
		if locks[i].AcquiredAtMs != locks[j].AcquiredAtMs {
			return locks[i].AcquiredAtMs < locks[j].AcquiredAtMs
		}
		return locks[i].Path < locks[j].Path
	})

	FormatLockTable(w, locks)
	return nil
}

// FormatLockTable writes held locks as a formatted table to the provided
// writer. The table includes columns: PATH, HOLDER, and AGE.
// Returns the number of locks formatted.
func FormatLockTable(w io.Writer, locks []*coord.LockEntry) int {
	if len(locks) == 0 {
		fmt.Fprintf(w, "No locks held\n")
		return 0
	}

	// Print header row
	fmt.Fprintf(w, "%-40s %-16s %s\n",
		"PATH", "HOLDER", "AGE")
	fmt.Fprintf(w, "%-40s %-16s %s\n",
		"----------------------------------------", "----------------", "--------")

	// Print data rows
	for _, l := range locks {
		fmt.Fprintf(w, "%-40s %-16s %s\n",
			firstLine(l.Path, 40),
			l.HolderID,
			formatRelativeMs(l.AcquiredAtMs),
		)
	}

	// Print count
	countMsg := "lock"
	if len(locks) != 1 {
		countMsg = "locks"
	}
	fmt.Fprintf(w, "\n%d %s held\n", len(locks), countMsg)

	return len(locks)
}
