package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mugen-ai/mugen/pkg/coord"
)

func TestCriteria_Matches(t *testing.T) {
	agent := &coord.AgentHandle{
		ID:          "executor-1",
		Role:        "executor",
		Status:      coord.StatusRunning,
		SpawnedAtMs: 5000,
	}

	testCases := []struct {
		name     string
		criteria Criteria
		want     bool
	}{
		{
			name:     "empty criteria matches everything",
			criteria: Criteria{},
			want:     true,
		},
		{
			name:     "role exact match",
			criteria: Criteria{RoleGlob: "executor"},
			want:     true,
		},
		{
			name:     "role glob match",
			criteria: Criteria{RoleGlob: "exec*"},
			want:     true,
		},
		{
			name:     "role mismatch",
			criteria: Criteria{RoleGlob: "planner"},
			want:     false,
		},
		{
			name:     "status match",
			criteria: Criteria{Status: "running"},
			want:     true,
		},
		{
			name:     "status mismatch",
			criteria: Criteria{Status: "completed"},
			want:     false,
		},
		{
			name:     "since before spawn time",
			criteria: Criteria{SinceTimestampMs: 4000},
			want:     true,
		},
		{
			name:     "since after spawn time",
			criteria: Criteria{SinceTimestampMs: 6000},
			want:     false,
		},
		{
			name:     "all criteria must match",
			criteria: Criteria{RoleGlob: "executor", Status: "completed"},
			want:     false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.criteria.Matches(agent))
		})
	}
}

func TestCriteria_HasFilters(t *testing.T) {
	assert.False(t, (&Criteria{}).HasFilters())
	assert.True(t, (&Criteria{RoleGlob: "executor"}).HasFilters())
	assert.True(t, (&Criteria{Status: "running"}).HasFilters())
	assert.True(t, (&Criteria{SinceTimestampMs: 1}).HasFilters())
}
