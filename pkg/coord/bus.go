package coord

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message bus operations.
//
// Each agent owns a private FIFO queue. Send never blocks the sender;
// Receive blocks the recipient up to its timeout. Ids come from a single
// per-instance counter, so they are unique and increase monotonically in
// enqueue order.

// Send enqueues a message and returns its assigned id. The id is also
// stored back into msg.ID so callers can correlate replies.
//
// Sending to a single recipient fails with an error matching
// ErrUnknownRecipient if that agent was never registered; nothing is
// enqueued in that case. Sending to Broadcast copies the message to every
// currently registered agent's queue under one id; a broadcast into an
// empty registry is a no-op and returns id 0.
func (c *Client) Send(ctx context.Context, msg *Message) (int64, error) {
	if err := msg.Validate(); err != nil {
		return 0, fmt.Errorf("invalid message: %w", err)
	}

	if msg.CreatedAtMs == 0 {
		msg.CreatedAtMs = nowMs()
	}

	body, err := marshalMessageBody(msg)
	if err != nil {
		return 0, err
	}

	agentsKey := AgentSetKey(c.instanceName)
	seqKey := MessageSeqKey(c.instanceName)

	if msg.To == Broadcast {
		id, err := broadcastScript.Run(ctx, c.rdb,
			[]string{agentsKey, seqKey},
			MessageQueuePrefix(c.instanceName), body).Int64()
		if err != nil {
			return 0, fmt.Errorf("failed to run broadcast script: %w", err)
		}
		msg.ID = id
		return id, nil
	}

	id, err := sendScript.Run(ctx, c.rdb,
		[]string{agentsKey, seqKey, MessageQueueKey(c.instanceName, msg.To)},
		msg.To, body).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to run send script: %w", err)
	}
	if id == -1 {
		return 0, fmt.Errorf("cannot send to %q: %w", msg.To, ErrUnknownRecipient)
	}

	msg.ID = id
	return id, nil
}

// Receive pops the oldest message addressed to agentID, blocking up to
// timeout. Returns (nil, redis.Nil) when the queue stays empty for the full
// timeout; use IsNoMessage() to check. A timeout of zero or less performs a
// single non-blocking poll.
//
// Blocking waits use BLPOP, which has one-second granularity; sub-second
// timeouts are rounded up to one second.
func (c *Client) Receive(ctx context.Context, agentID string, timeout time.Duration) (*Message, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent id cannot be empty")
	}

	queueKey := MessageQueueKey(c.instanceName, agentID)

	var entry string
	if timeout <= 0 {
		var err error
		entry, err = c.rdb.LPop(ctx, queueKey).Result()
		if err == redis.Nil {
			return nil, redis.Nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to poll message queue: %w", err)
		}
	} else {
		if timeout < time.Second {
			timeout = time.Second
		}
		res, err := c.rdb.BLPop(ctx, timeout, queueKey).Result()
		if err == redis.Nil {
			return nil, redis.Nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to wait on message queue: %w", err)
		}
		// BLPOP returns [key, value]
		entry = res[1]
	}

	msg, err := DecodeQueueEntry(entry)
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// QueueLength returns how many undelivered messages sit in agentID's queue.
func (c *Client) QueueLength(ctx context.Context, agentID string) (int64, error) {
	n, err := c.rdb.LLen(ctx, MessageQueueKey(c.instanceName, agentID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}
