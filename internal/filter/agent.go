package filter

import (
	"path/filepath"

	"github.com/mugen-ai/mugen/pkg/coord"
)

// Criteria defines filtering criteria for agents.
// All filters are ANDed together - an agent must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64  // Spawned-at lower bound in milliseconds, 0 = no filter
	RoleGlob         string // Glob pattern for agent role, empty = no filter
	Status           string // Exact match for agent status, empty = no filter
}

// Matches returns true if the agent matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(agent *coord.AgentHandle) bool {
	// Time filtering - check SpawnedAtMs field
	if c.SinceTimestampMs > 0 && agent.SpawnedAtMs < c.SinceTimestampMs {
		return false
	}

	// Role filtering - glob pattern matching
	if c.RoleGlob != "" {
		matched, err := filepath.Match(c.RoleGlob, agent.Role)
		if err != nil || !matched {
			return false
		}
	}

	// Status filtering - exact match
	if c.Status != "" && string(agent.Status) != c.Status {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.RoleGlob != "" ||
		c.Status != ""
}
