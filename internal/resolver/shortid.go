package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mugen-ai/mugen/pkg/coord"
)

// MinPrefixLength is the minimum required length for agent ID prefixes.
// Set to 4 characters so role names alone (e.g. "exec") can select an agent
// when only one of that role is registered.
const MinPrefixLength = 4

// ResolveAgentID resolves an agent ID prefix to a full agent ID.
// Returns the full ID if exactly one match found.
// Returns error if zero or multiple matches found.
//
// The function handles three cases:
// 1. Input is already a registered agent ID - returns it as-is
// 2. Input is too short (< 4 chars) - returns validation error
// 3. Input is a prefix - lists registered agents and returns the unique match
func ResolveAgentID(ctx context.Context, client *coord.Client, ref string) (string, error) {
	// If input is an exact agent ID, verify it exists and return as-is
	if _, err := client.GetAgent(ctx, ref); err == nil {
		return ref, nil
	} else if !coord.IsNotFound(err) {
		return "", fmt.Errorf("failed to look up agent: %w", err)
	}

	// Validate minimum length
	if len(ref) < MinPrefixLength {
		return "", fmt.Errorf("agent ID prefix must be at least %d characters (got %d)", MinPrefixLength, len(ref))
	}

	// Collect registered agents whose IDs share the prefix
	agents, err := client.ListAgents(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list agents: %w", err)
	}

	var matches []string
	for _, a := range agents {
		if strings.HasPrefix(a.ID, ref) {
			matches = append(matches, a.ID)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Ref: ref}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Ref: ref, Matches: matches}
	}
}

// NotFoundError indicates no agents matched the reference.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no agents found matching '%s'", e.Ref)
}

// AmbiguousError indicates multiple agents matched the prefix.
type AmbiguousError struct {
	Ref     string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous agent ID '%s' matches %d agents", e.Ref, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly error message for ambiguous prefixes.
// Lists all matching agent IDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("Error: ambiguous agent ID '%s' matches %d agents:\n", err.Ref, len(err.Matches))

	// List up to 10 matches
	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}

	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s\n", err.Matches[i])
	}

	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse a longer prefix to uniquely identify the agent."
	return msg
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
