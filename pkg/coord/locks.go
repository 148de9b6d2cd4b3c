package coord

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// lockPollInterval is how often a blocked waiter retries the grant script.
// The waiter list keeps retries fair; polling only bounds wakeup latency.
const lockPollInterval = 25 * time.Millisecond

// AcquireLock blocks until agentID holds the exclusive lock on path, or
// timeout expires. Waiters are granted the lock in arrival order.
//
// Locks are not reentrant: an agent that already holds path and acquires it
// again waits behind itself until timeout. Returns a LockTimeoutError
// (matching ErrLockTimeout) when the lock could not be obtained in time.
func (c *Client) AcquireLock(ctx context.Context, agentID, path string, timeout time.Duration) error {
	if agentID == "" {
		return fmt.Errorf("agent id cannot be empty")
	}
	if path == "" {
		return fmt.Errorf("lock path cannot be empty")
	}

	deadlineMs := time.Now().Add(timeout).UnixMilli()

	// The token makes this waiter entry unique even if the same agent
	// queues for the same path twice.
	entry := encodeWaiter(deadlineMs, agentID, uuid.New().String())

	lockKey := LockKey(c.instanceName, path)
	waitKey := LockWaitKey(c.instanceName, path)
	setKey := LockSetKey(c.instanceName)

	// Join the queue, then try for an immediate grant.
	if err := c.rdb.RPush(ctx, waitKey, entry).Err(); err != nil {
		return fmt.Errorf("failed to enqueue lock waiter: %w", err)
	}

	granted, err := c.tryGrantLock(ctx, lockKey, waitKey, setKey, entry, agentID, path)
	if err != nil {
		c.abandonWaiter(ctx, waitKey, entry)
		return err
	}
	if granted {
		return nil
	}

	if timeout <= 0 {
		c.abandonWaiter(ctx, waitKey, entry)
		return c.lockTimeoutError(ctx, path)
	}

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	expired := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			c.abandonWaiter(context.WithoutCancel(ctx), waitKey, entry)
			return ctx.Err()

		case <-expired:
			c.abandonWaiter(ctx, waitKey, entry)
			return c.lockTimeoutError(ctx, path)

		case <-ticker.C:
			granted, err := c.tryGrantLock(ctx, lockKey, waitKey, setKey, entry, agentID, path)
			if err != nil {
				c.abandonWaiter(ctx, waitKey, entry)
				return err
			}
			if granted {
				return nil
			}
		}
	}
}

// tryGrantLock runs the grant script once. Returns true if the caller's
// waiter entry was promoted to holder.
func (c *Client) tryGrantLock(ctx context.Context, lockKey, waitKey, setKey, entry, agentID, path string) (bool, error) {
	res, err := lockAcquireScript.Run(ctx, c.rdb,
		[]string{lockKey, waitKey, setKey},
		entry, agentID, nowMs(), path).Int()
	if err != nil {
		return false, fmt.Errorf("failed to run lock acquire script: %w", err)
	}
	return res == 1, nil
}

// abandonWaiter removes the caller's entry from the waiter list after a
// timeout or cancellation. Best-effort: an entry left behind is pruned by
// the next acquirer once its deadline passes.
func (c *Client) abandonWaiter(ctx context.Context, waitKey, entry string) {
	c.rdb.LRem(ctx, waitKey, 1, entry)
}

// lockTimeoutError builds the timeout error, naming the current holder when
// one can be fetched.
func (c *Client) lockTimeoutError(ctx context.Context, path string) error {
	holder := ""
	if lock, err := c.GetLock(ctx, path); err == nil {
		holder = lock.HolderID
	}
	return &LockTimeoutError{Path: path, HolderID: holder}
}

// ReleaseLock releases the lock on path if agentID holds it.
// Returns an error matching ErrNotHolder if the lock is held by someone else
// or not held at all.
func (c *Client) ReleaseLock(ctx context.Context, agentID, path string) error {
	res, err := lockReleaseScript.Run(ctx, c.rdb,
		[]string{LockKey(c.instanceName, path), LockSetKey(c.instanceName)},
		agentID, path).Int()
	if err != nil {
		return fmt.Errorf("failed to run lock release script: %w", err)
	}
	if res == 0 {
		return fmt.Errorf("agent %s cannot release lock on %s: %w", agentID, path, ErrNotHolder)
	}
	return nil
}

// ReleaseAllLocks releases every lock held by agentID in one atomic sweep
// and returns how many were released. Used by the supervisor to clean up
// after a crashed or terminated agent. Releasing zero locks is not an error.
func (c *Client) ReleaseAllLocks(ctx context.Context, agentID string) (int, error) {
	released, err := lockReleaseAllScript.Run(ctx, c.rdb,
		[]string{LockSetKey(c.instanceName)},
		agentID, lockKeyPrefix(c.instanceName)).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to run lock sweep script: %w", err)
	}
	return released, nil
}

// GetLock retrieves the current lock entry for path.
// Returns (nil, redis.Nil) if the path is not locked.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetLock(ctx context.Context, path string) (*LockEntry, error) {
	key := LockKey(c.instanceName, path)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read lock from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	lock, err := HashToLockEntry(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize lock: %w", err)
	}

	return lock, nil
}

// ListLocks returns every currently held lock, sorted by path.
func (c *Client) ListLocks(ctx context.Context) ([]*LockEntry, error) {
	paths, err := c.rdb.SMembers(ctx, LockSetKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list locked paths: %w", err)
	}

	locks := make([]*LockEntry, 0, len(paths))
	for _, path := range paths {
		lock, err := c.GetLock(ctx, path)
		if IsNotFound(err) {
			// Released between SMEMBERS and the read
			continue
		}
		if err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}

	sort.Slice(locks, func(i, j int) bool {
		return locks[i].Path < locks[j].Path
	})

	return locks, nil
}

// lockKeyPrefix returns the per-instance lock key prefix the sweep script
// appends paths to.
func lockKeyPrefix(instanceName string) string {
	return fmt.Sprintf("mugen:%s:lock:", instanceName)
}
