package coord

import (
	"encoding/json"
	"fmt"
)

// AgentHandle is the registry record for one agent process.
// The agent itself mutates status, heartbeat and task fields; the supervisor
// performs terminal transitions when it detects a crash.
type AgentHandle struct {
	ID              string      `json:"id"`                        // Unique agent id, {role}-{n}
	Role            string      `json:"role"`                      // Role name (explorer, planner, executor, or a custom role)
	PID             int         `json:"pid"`                       // OS process id, 0 if not yet known
	Status          AgentStatus `json:"status"`                    // Current lifecycle state
	SpawnedAtMs     int64       `json:"spawned_at_ms"`             // Unix timestamp in milliseconds when the agent was spawned
	LastHeartbeatMs int64       `json:"last_heartbeat_ms"`         // Unix timestamp in milliseconds of the last heartbeat
	CurrentTask     string      `json:"current_task,omitempty"`    // Short description of in-flight work
	LastError       string      `json:"last_error,omitempty"`      // Most recent task error, empty if none
	CompletedAtMs   int64       `json:"completed_at_ms,omitempty"` // Unix timestamp in milliseconds when a terminal state was reached
}

// AgentStatus defines the lifecycle state of an agent.
// Valid transitions: spawned → running → (waiting ⇄ running) → completed/failed/terminated.
// The three terminal states permit no further transitions.
type AgentStatus string

const (
	// StatusSpawned is the initial state set at registration, before the
	// agent process announces itself as running.
	StatusSpawned AgentStatus = "spawned"

	// StatusRunning means the agent is actively processing work.
	StatusRunning AgentStatus = "running"

	// StatusWaiting means the agent is idle, blocked on its message queue.
	StatusWaiting AgentStatus = "waiting"

	// StatusCompleted means the agent finished gracefully. Terminal.
	StatusCompleted AgentStatus = "completed"

	// StatusFailed means the agent crashed or stopped heartbeating. Terminal.
	StatusFailed AgentStatus = "failed"

	// StatusTerminated means the supervisor force-killed the agent. Terminal.
	StatusTerminated AgentStatus = "terminated"
)

// statusTransitions maps each status to the set of statuses it may move to.
// Same-status updates are idempotent no-ops and always allowed.
var statusTransitions = map[AgentStatus][]AgentStatus{
	StatusSpawned:    {StatusRunning, StatusFailed, StatusTerminated},
	StatusRunning:    {StatusWaiting, StatusCompleted, StatusFailed, StatusTerminated},
	StatusWaiting:    {StatusRunning, StatusCompleted, StatusFailed, StatusTerminated},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusTerminated: {},
}

// Validate checks if the AgentStatus is a valid enum value.
func (s AgentStatus) Validate() error {
	switch s {
	case StatusSpawned, StatusRunning, StatusWaiting,
		StatusCompleted, StatusFailed, StatusTerminated:
		return nil
	default:
		return fmt.Errorf("unknown agent status: %q", s)
	}
}

// Terminal reports whether the status permits no further transitions.
func (s AgentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTerminated
}

// CanTransitionTo reports whether moving from s to next is a legal
// transition. Same-status moves are allowed (idempotent update).
func (s AgentStatus) CanTransitionTo(next AgentStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// transitionSources returns every status from which a transition to target
// is legal, excluding target itself. Used to build the atomic status-update
// script arguments.
func transitionSources(target AgentStatus) []AgentStatus {
	var sources []AgentStatus
	for from, nexts := range statusTransitions {
		for _, next := range nexts {
			if next == target {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

// Built-in role names. Custom roles are defined in mugen.yml and carry any
// other non-empty name.
const (
	RoleExplorer = "explorer"
	RolePlanner  = "planner"
	RoleExecutor = "executor"
)

// Broadcast is the reserved recipient address that delivers a message to
// every currently registered agent. No agent may register under this id.
const Broadcast = "broadcast"

// Message is one bus message. Immutable once enqueued: the bus assigns ID and
// the sender stamps CreatedAtMs before handing it over.
type Message struct {
	ID          int64           `json:"id"`                // Monotonically increasing per-instance id, assigned by Send
	From        string          `json:"from"`              // Sender agent id ("supervisor" for the supervisor itself)
	To          string          `json:"to"`                // Recipient agent id, or Broadcast
	Kind        MessageKind     `json:"kind"`              // Message kind
	Payload     json.RawMessage `json:"payload,omitempty"` // Opaque structured payload
	CreatedAtMs int64           `json:"created_at_ms"`     // Unix timestamp in milliseconds when the message was created
}

// MessageKind classifies bus messages.
type MessageKind string

const (
	// KindQuery asks another agent a question; answered with KindResponse.
	KindQuery MessageKind = "query"

	// KindResponse answers a prior KindQuery.
	KindResponse MessageKind = "response"

	// KindTask assigns work to an agent.
	KindTask MessageKind = "task"

	// KindResult reports the outcome of a task back to its sender.
	// Failed tasks are also reported as results with Success=false.
	KindResult MessageKind = "result"

	// KindStatus announces an agent lifecycle change (broadcast by the
	// supervisor when it marks an agent failed).
	KindStatus MessageKind = "status"

	// KindShutdown asks an agent to finish up and exit its run loop.
	KindShutdown MessageKind = "shutdown"
)

// Validate checks if the MessageKind is a valid enum value.
func (k MessageKind) Validate() error {
	switch k {
	case KindQuery, KindResponse, KindTask, KindResult, KindStatus, KindShutdown:
		return nil
	default:
		return fmt.Errorf("unknown message kind: %q", k)
	}
}

// Validate checks if the Message has valid field values.
// ID and CreatedAtMs are owned by Send and not validated here.
func (m *Message) Validate() error {
	if m.From == "" {
		return fmt.Errorf("message sender cannot be empty")
	}

	if m.To == "" {
		return fmt.Errorf("message recipient cannot be empty")
	}

	if m.From == Broadcast {
		return fmt.Errorf("message sender cannot be the broadcast address")
	}

	if err := m.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid kind: %w", err)
	}

	return nil
}

// Validate checks if the AgentHandle has valid field values.
func (h *AgentHandle) Validate() error {
	if h.ID == "" {
		return fmt.Errorf("agent id cannot be empty")
	}

	if h.ID == Broadcast {
		return fmt.Errorf("agent id %q is reserved", Broadcast)
	}

	if h.Role == "" {
		return fmt.Errorf("agent role cannot be empty")
	}

	if err := h.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	return nil
}

// LockEntry describes a currently held path lock.
// At most one entry exists per path at any instant.
type LockEntry struct {
	Path         string `json:"path"`           // The locked path
	HolderID     string `json:"holder_id"`      // Agent currently holding the lock
	AcquiredAtMs int64  `json:"acquired_at_ms"` // Unix timestamp in milliseconds when the lock was granted
}

// SharedStateEntry is one versioned key/value pair in the shared-state store.
// Version starts at 1 and increments by exactly 1 on every successful write.
type SharedStateEntry struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Version     int64  `json:"version"`
	UpdatedAtMs int64  `json:"updated_at_ms"` // Unix timestamp in milliseconds of the last write
}
