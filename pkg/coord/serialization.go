package coord

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Serialization helpers for converting between Go structs and Redis storage
//
// Registry and lock records are stored as Redis hashes (string-to-string
// maps): ints go through strconv, everything else stays a plain string.
// Queue entries are "{id}|{json}" envelopes: the message id is assigned by a
// Lua script at enqueue time, so the sender marshals the body without an id
// and the script prepends the one it allocated.

// AgentHandleToHash converts an AgentHandle to Redis hash format.
func AgentHandleToHash(h *AgentHandle) map[string]interface{} {
	return map[string]interface{}{
		"id":                h.ID,
		"role":              h.Role,
		"pid":               h.PID,
		"status":            string(h.Status),
		"spawned_at_ms":     h.SpawnedAtMs,
		"last_heartbeat_ms": h.LastHeartbeatMs,
		"current_task":      h.CurrentTask,
		"last_error":        h.LastError,
		"completed_at_ms":   h.CompletedAtMs,
	}
}

// HashToAgentHandle converts a Redis hash to an AgentHandle.
func HashToAgentHandle(hash map[string]string) (*AgentHandle, error) {
	pid, err := strconv.Atoi(hash["pid"])
	if err != nil {
		return nil, fmt.Errorf("invalid pid field: %w", err)
	}

	spawnedAtMs, err := strconv.ParseInt(hash["spawned_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid spawned_at_ms field: %w", err)
	}

	// Optional fields default to zero when absent or unparseable
	lastHeartbeatMs, _ := strconv.ParseInt(hash["last_heartbeat_ms"], 10, 64)
	completedAtMs, _ := strconv.ParseInt(hash["completed_at_ms"], 10, 64)

	handle := &AgentHandle{
		ID:              hash["id"],
		Role:            hash["role"],
		PID:             pid,
		Status:          AgentStatus(hash["status"]),
		SpawnedAtMs:     spawnedAtMs,
		LastHeartbeatMs: lastHeartbeatMs,
		CurrentTask:     hash["current_task"],
		LastError:       hash["last_error"],
		CompletedAtMs:   completedAtMs,
	}

	return handle, nil
}

// HashToLockEntry converts a Redis hash to a LockEntry.
func HashToLockEntry(hash map[string]string) (*LockEntry, error) {
	acquiredAtMs, err := strconv.ParseInt(hash["acquired_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid acquired_at_ms field: %w", err)
	}

	return &LockEntry{
		Path:         hash["path"],
		HolderID:     hash["holder_id"],
		AcquiredAtMs: acquiredAtMs,
	}, nil
}

// HashToStateEntry converts a Redis hash to a SharedStateEntry.
func HashToStateEntry(hash map[string]string) (*SharedStateEntry, error) {
	version, err := strconv.ParseInt(hash["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version field: %w", err)
	}

	updatedAtMs, _ := strconv.ParseInt(hash["updated_at_ms"], 10, 64)

	return &SharedStateEntry{
		Key:         hash["key"],
		Value:       hash["value"],
		Version:     version,
		UpdatedAtMs: updatedAtMs,
	}, nil
}

// marshalMessageBody serializes a message for enqueueing. The id field is
// omitted from the caller's value because the send script assigns it.
func marshalMessageBody(m *Message) ([]byte, error) {
	body := *m
	body.ID = 0

	data, err := json.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// EncodeQueueEntry builds the "{id}|{json}" queue envelope. Exposed for
// tests; production entries are built inside the send script.
func EncodeQueueEntry(id int64, m *Message) (string, error) {
	body, err := marshalMessageBody(m)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d|%s", id, body), nil
}

// DecodeQueueEntry parses a "{id}|{json}" queue envelope back into a Message.
func DecodeQueueEntry(entry string) (*Message, error) {
	idPart, jsonPart, found := strings.Cut(entry, "|")
	if !found {
		return nil, fmt.Errorf("malformed queue entry: missing id separator")
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed queue entry: invalid id: %w", err)
	}

	var msg Message
	if err := json.Unmarshal([]byte(jsonPart), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue entry: %w", err)
	}
	msg.ID = id

	return &msg, nil
}

// encodeWaiter builds a lock waiter list entry. The deadline leads so the
// grant script can prune expired waiters with a single numeric prefix match.
func encodeWaiter(deadlineMs int64, agentID, token string) string {
	return fmt.Sprintf("%d|%s|%s", deadlineMs, agentID, token)
}
