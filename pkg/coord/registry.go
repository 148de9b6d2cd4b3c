package coord

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Agent registry operations.
//
// The registry is the source of truth for which agents exist, what state
// they are in, and when they last proved they were alive. Status changes go
// through a scripted state machine so concurrent writers (the agent itself
// and the supervisor) cannot produce an illegal transition.

// KeepDetail leaves an agent's current_task or last_error field unchanged
// in UpdateStatusDetail.
const KeepDetail = "-"

// NextAgentID allocates the next agent id for a role from the per-instance
// counter. Ids look like executor-3 and are never reused within an instance.
func (c *Client) NextAgentID(ctx context.Context, role string) (string, error) {
	if role == "" {
		return "", fmt.Errorf("agent role cannot be empty")
	}

	n, err := c.rdb.Incr(ctx, AgentSeqKey(c.instanceName)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate agent id: %w", err)
	}
	return fmt.Sprintf("%s-%d", role, n), nil
}

// RegisterAgent creates the registry record for handle.ID in status spawned
// and makes the id a valid message recipient. On success the handle's
// Status, SpawnedAtMs and LastHeartbeatMs are filled in.
//
// Registering an id that already exists in a live status refreshes its
// role, pid and heartbeat and leaves its status alone (the handle is not
// updated in that case; use GetAgent for the live record). Re-registering
// an id that reached a terminal status fails with an error matching
// ErrInvalidTransition.
func (c *Client) RegisterAgent(ctx context.Context, handle *AgentHandle) error {
	if handle.ID == "" {
		return fmt.Errorf("agent id cannot be empty")
	}
	if handle.ID == Broadcast {
		return fmt.Errorf("agent id %q is reserved", Broadcast)
	}
	if handle.Role == "" {
		return fmt.Errorf("agent role cannot be empty")
	}

	now := nowMs()
	res, err := agentRegisterScript.Run(ctx, c.rdb,
		[]string{AgentKey(c.instanceName, handle.ID), AgentSetKey(c.instanceName)},
		handle.ID, handle.Role, handle.PID, now).Int()
	if err != nil {
		return fmt.Errorf("failed to run agent register script: %w", err)
	}

	switch res {
	case -1:
		return &InvalidTransitionError{AgentID: handle.ID, From: c.currentStatus(ctx, handle.ID), To: StatusSpawned}
	case 1:
		handle.Status = StatusSpawned
		handle.SpawnedAtMs = now
		handle.LastHeartbeatMs = now
	}

	return nil
}

// UpdateStatus transitions an agent to a new lifecycle status. Updating to
// the status the agent is already in is an idempotent no-op. Illegal
// transitions (including any move out of a terminal status) fail with an
// error matching ErrInvalidTransition and leave the record unchanged.
//
// Every real transition publishes the updated handle on the agent events
// channel.
func (c *Client) UpdateStatus(ctx context.Context, agentID string, status AgentStatus) error {
	return c.UpdateStatusDetail(ctx, agentID, status, KeepDetail, KeepDetail)
}

// UpdateStatusDetail is UpdateStatus plus an update of the agent's
// current_task and last_error fields. Pass KeepDetail to leave a field
// unchanged, or any other value (including "") to overwrite it.
func (c *Client) UpdateStatusDetail(ctx context.Context, agentID string, status AgentStatus, currentTask, lastError string) error {
	if agentID == "" {
		return fmt.Errorf("agent id cannot be empty")
	}
	if err := status.Validate(); err != nil {
		return err
	}

	terminal := "0"
	if status.Terminal() {
		terminal = "1"
	}

	args := []interface{}{string(status), nowMs(), terminal, currentTask, lastError}
	for _, from := range transitionSources(status) {
		args = append(args, string(from))
	}

	res, err := statusUpdateScript.Run(ctx, c.rdb,
		[]string{AgentKey(c.instanceName, agentID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to run status update script: %w", err)
	}

	switch res {
	case -2:
		return fmt.Errorf("agent %s: %w", agentID, redis.Nil)
	case -1:
		return &InvalidTransitionError{AgentID: agentID, From: c.currentStatus(ctx, agentID), To: status}
	case 0:
		return nil
	}

	return c.publishAgentEvent(ctx, agentID)
}

// Heartbeat refreshes an agent's liveness timestamp. Fails with redis.Nil
// if the agent was never registered, and with an error matching
// ErrInvalidTransition if the agent already reached a terminal status; a
// process seeing that error has been declared dead and should exit.
func (c *Client) Heartbeat(ctx context.Context, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("agent id cannot be empty")
	}

	res, err := heartbeatScript.Run(ctx, c.rdb,
		[]string{AgentKey(c.instanceName, agentID)}, nowMs()).Int()
	if err != nil {
		return fmt.Errorf("failed to run heartbeat script: %w", err)
	}

	switch res {
	case 0:
		return fmt.Errorf("agent %s: %w", agentID, redis.Nil)
	case -1:
		return fmt.Errorf("agent %s is in a terminal status: %w", agentID, ErrInvalidTransition)
	}

	return nil
}

// GetAgent retrieves an agent's registry record.
// Returns (nil, redis.Nil) if the agent was never registered.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*AgentHandle, error) {
	hashData, err := c.rdb.HGetAll(ctx, AgentKey(c.instanceName, agentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read agent from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	handle, err := HashToAgentHandle(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize agent: %w", err)
	}

	return handle, nil
}

// ListAgents returns every registered agent, sorted by spawn time then id.
func (c *Client) ListAgents(ctx context.Context) ([]*AgentHandle, error) {
	ids, err := c.rdb.SMembers(ctx, AgentSetKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	agents := make([]*AgentHandle, 0, len(ids))
	for _, id := range ids {
		handle, err := c.GetAgent(ctx, id)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		agents = append(agents, handle)
	}

	sort.Slice(agents, func(i, j int) bool {
		if agents[i].SpawnedAtMs != agents[j].SpawnedAtMs {
			return agents[i].SpawnedAtMs < agents[j].SpawnedAtMs
		}
		return agents[i].ID < agents[j].ID
	})

	return agents, nil
}

// currentStatus fetches an agent's status for error messages. Best-effort:
// returns "" when the record cannot be read.
func (c *Client) currentStatus(ctx context.Context, agentID string) AgentStatus {
	handle, err := c.GetAgent(ctx, agentID)
	if err != nil {
		return ""
	}
	return handle.Status
}

// publishAgentEvent publishes the agent's current handle on the events
// channel. The status change itself has already committed when this runs;
// a publish failure is reported but does not undo the transition.
func (c *Client) publishAgentEvent(ctx context.Context, agentID string) error {
	handle, err := c.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("status updated but failed to read agent for event: %w", err)
	}

	payload, err := json.Marshal(handle)
	if err != nil {
		return fmt.Errorf("status updated but failed to marshal agent event: %w", err)
	}

	if err := c.rdb.Publish(ctx, AgentEventsChannel(c.instanceName), payload).Err(); err != nil {
		return fmt.Errorf("status updated but failed to publish agent event: %w", err)
	}

	return nil
}
