// Package watch observes registry changes by polling, for CLI commands that
// block on agent lifecycle or shared-state updates.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/mugen-ai/mugen/pkg/coord"
)

// Event is one observed agent status change. From is empty for agents seen
// for the first time.
type Event struct {
	Agent *coord.AgentHandle
	From  coord.AgentStatus
}

// WaitForStatus polls the registry until the agent reaches the target status.
// Returns the agent handle or an error if timeout occurs.
// Polls every 200ms for the specified timeout duration.
func WaitForStatus(ctx context.Context, client *coord.Client, agentID string, target coord.AgentStatus, timeout time.Duration) (*coord.AgentHandle, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for agent %s to reach %s after %v", agentID, target, timeout)

		case <-ticker.C:
			agent, err := client.GetAgent(ctx, agentID)
			if err != nil {
				if coord.IsNotFound(err) {
					// Not registered yet, continue polling
					continue
				}
				return nil, fmt.Errorf("failed to query agent: %w", err)
			}

			if agent.Status == target {
				return agent, nil
			}

			// A terminal status other than the target will never change again
			if agent.Status.Terminal() {
				return nil, fmt.Errorf("agent %s reached terminal status %s while waiting for %s", agentID, agent.Status, target)
			}
		}
	}
}

// WaitForStateChange polls a shared-state key until its version exceeds
// sinceVersion. Returns the updated entry or an error if timeout occurs.
// A key that does not exist yet counts as unchanged.
func WaitForStateChange(ctx context.Context, client *coord.Client, key string, sinceVersion int64, timeout time.Duration) (*coord.SharedStateEntry, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for state change on '%s' after %v", key, timeout)

		case <-ticker.C:
			entry, err := client.GetState(ctx, key)
			if err != nil {
				if coord.IsNotFound(err) {
					// Not written yet, continue polling
					continue
				}
				return nil, fmt.Errorf("failed to query state: %w", err)
			}

			if entry.Version > sinceVersion {
				return entry, nil
			}
		}
	}
}

// Stream polls the registry every interval and invokes fn for each observed
// status change, including agents seen for the first time. Runs until the
// context is cancelled, which returns nil.
func Stream(ctx context.Context, client *coord.Client, interval time.Duration, fn func(Event)) error {
	if interval <= 0 {
		interval = time.Second
	}

	last := make(map[string]coord.AgentStatus)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// List before the first tick so already-registered agents produce
		// events immediately.
		agents, err := client.ListAgents(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to list agents: %w", err)
		}

		for _, agent := range agents {
			prev, seen := last[agent.ID]
			if seen && prev == agent.Status {
				continue
			}
			last[agent.ID] = agent.Status
			fn(Event{Agent: agent, From: prev})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
