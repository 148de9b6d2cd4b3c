package commands

import (
	"testing"

	"github.com/mugen-ai/mugen/internal/watch"
	"github.com/mugen-ai/mugen/pkg/coord"
	"github.com/stretchr/testify/assert"
)

func TestPrintEventLine(t *testing.T) {
	events := []watch.Event{
		{
			// first sighting
			Agent: &coord.AgentHandle{ID: "explorer-1", Role: "explorer", Status: coord.StatusSpawned},
		},
		{
			Agent: &coord.AgentHandle{ID: "explorer-1", Role: "explorer", Status: coord.StatusRunning, CurrentTask: "exploring codebase"},
			From:  coord.StatusSpawned,
		},
		{
			Agent: &coord.AgentHandle{ID: "executor-2", Role: "executor", Status: coord.StatusFailed, LastError: "heartbeat expired"},
			From:  coord.StatusRunning,
		},
		{
			Agent: &coord.AgentHandle{ID: "planner-1", Role: "planner", Status: coord.StatusCompleted},
			From:  coord.StatusWaiting,
		},
	}

	// These print to stdout, so we just verify they don't panic
	for _, ev := range events {
		assert.NotPanics(t, func() {
			printEventLine(ev)
		})
	}
}

func TestPrintEventJSON(t *testing.T) {
	ev := watch.Event{
		Agent: &coord.AgentHandle{ID: "explorer-1", Role: "explorer", Status: coord.StatusRunning},
		From:  coord.StatusSpawned,
	}

	assert.NotPanics(t, func() {
		printEventJSON(ev)
	})
}
