package coord

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Shared-state store operations.
//
// Every entry carries a version that starts at 1 and increments by exactly
// one on each successful write. Reads always observe the latest committed
// write because Redis serializes the write scripts.

// GetState retrieves the shared-state entry for key.
// Returns (nil, redis.Nil) if the key has never been written.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetState(ctx context.Context, key string) (*SharedStateEntry, error) {
	hashData, err := c.rdb.HGetAll(ctx, StateKey(c.instanceName, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read state from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	entry, err := HashToStateEntry(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize state entry: %w", err)
	}

	return entry, nil
}

// SetState writes value under key unconditionally and returns the new
// version. The first write of a key produces version 1.
func (c *Client) SetState(ctx context.Context, key, value string) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("state key cannot be empty")
	}

	version, err := stateSetScript.Run(ctx, c.rdb,
		[]string{StateKey(c.instanceName, key), StateKeySetKey(c.instanceName)},
		key, value, nowMs()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to run state set script: %w", err)
	}
	return version, nil
}

// CompareAndSwapState writes value under key only if the entry's current
// version equals expectedVersion. A key that has never been written has
// version 0, so expectedVersion 0 creates it.
//
// Returns the new version and true on success. On a version mismatch it
// returns (0, false, nil): losing a race is an expected outcome, not an
// error. When two writers race with the same expected version, exactly one
// wins.
func (c *Client) CompareAndSwapState(ctx context.Context, key string, expectedVersion int64, value string) (int64, bool, error) {
	if key == "" {
		return 0, false, fmt.Errorf("state key cannot be empty")
	}
	if expectedVersion < 0 {
		return 0, false, fmt.Errorf("expected version cannot be negative")
	}

	version, err := stateCASScript.Run(ctx, c.rdb,
		[]string{StateKey(c.instanceName, key), StateKeySetKey(c.instanceName)},
		key, expectedVersion, value, nowMs()).Int64()
	if err != nil {
		return 0, false, fmt.Errorf("failed to run state cas script: %w", err)
	}
	if version == 0 {
		return 0, false, nil
	}
	return version, true, nil
}

// ListStateKeys returns every shared-state key ever written, sorted.
func (c *Client) ListStateKeys(ctx context.Context) ([]string, error) {
	keys, err := c.rdb.SMembers(ctx, StateKeySetKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list state keys: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}
