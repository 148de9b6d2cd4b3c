package coord

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Sentinel errors returned by coordination operations. Callers match them
// with errors.Is; the typed errors below carry extra detail for messages.
var (
	// ErrLockTimeout is returned by AcquireLock when the lock could not be
	// obtained within the caller's timeout.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrNotHolder is returned by ReleaseLock when the caller does not
	// currently hold the lock.
	ErrNotHolder = errors.New("lock not held by caller")

	// ErrUnknownRecipient is returned by Send when the destination agent
	// has never been registered.
	ErrUnknownRecipient = errors.New("unknown recipient")

	// ErrInvalidTransition is returned by status updates that violate the
	// agent lifecycle state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InvalidTransitionError reports a rejected agent status change. It wraps
// ErrInvalidTransition so errors.Is still matches.
type InvalidTransitionError struct {
	AgentID string
	From    AgentStatus
	To      AgentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("agent %s: invalid status transition %s -> %s", e.AgentID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// LockTimeoutError reports a failed lock acquisition with the contested path
// and current holder (when known). It wraps ErrLockTimeout.
type LockTimeoutError struct {
	Path     string
	HolderID string
}

func (e *LockTimeoutError) Error() string {
	if e.HolderID != "" {
		return fmt.Sprintf("timed out waiting for lock on %s (held by %s)", e.Path, e.HolderID)
	}
	return fmt.Sprintf("timed out waiting for lock on %s", e.Path)
}

func (e *LockTimeoutError) Unwrap() error {
	return ErrLockTimeout
}

// IsLockTimeout returns true if the error came from a lock acquisition
// that ran out of time.
func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsNotHolder returns true if the error came from releasing a lock the
// caller does not hold.
func IsNotHolder(err error) bool {
	return errors.Is(err, ErrNotHolder)
}

// IsUnknownRecipient returns true if the error came from sending to an
// agent that was never registered.
func IsUnknownRecipient(err error) bool {
	return errors.Is(err, ErrUnknownRecipient)
}

// IsInvalidTransition returns true if the error came from a rejected
// agent status change.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing agent, lock,
// or state entry (redis.Nil).
//
// Usage:
//
//	agent, err := client.GetAgent(ctx, instanceName, agentID)
//	if coord.IsNotFound(err) {
//	    // agent was never registered
//	}
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// IsNoMessage returns true if a Receive call timed out with no message
// available. Distinct name from IsNotFound because an empty queue is an
// expected outcome of polling, not a missing record.
func IsNoMessage(err error) bool {
	return errors.Is(err, redis.Nil)
}
