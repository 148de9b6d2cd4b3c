package coord

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the coordination
// layer. All keys and channels are automatically namespaced with the
// instance name. The client is thread-safe and can be used concurrently
// from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new coordination client for the specified instance.
// The client automatically namespaces all keys and channels with the
// instance name.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: Mugen instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
// Returns an error if Redis is not reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// InstanceName returns the instance this client is scoped to.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// nowMs returns the current wall time in Unix milliseconds. All scripted
// operations receive their clock from here rather than from Redis.
func nowMs() int64 {
	return time.Now().UnixMilli()
}

// AgentEventSubscription represents an active Pub/Sub subscription to agent
// lifecycle events. Caller must call Close() when done to clean up resources.
// Subscriptions deliver full agent handles via the Events() channel.
type AgentEventSubscription struct {
	events <-chan *AgentHandle
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of agent lifecycle events.
// The channel will be closed when the subscription is closed or the context
// is cancelled.
func (s *AgentEventSubscription) Events() <-chan *AgentHandle {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *AgentEventSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *AgentEventSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeAgentEvents subscribes to agent lifecycle events for this
// instance. Every successful status transition publishes the updated handle.
// Caller must call subscription.Close() when done.
// Context cancellation also stops the subscription.
//
// Events are delivered on a buffered channel (size 10) to prevent blocking.
// If the subscriber is too slow, events may be dropped by Redis Pub/Sub
// (at-most-once delivery).
func (c *Client) SubscribeAgentEvents(ctx context.Context) (*AgentEventSubscription, error) {
	channel := AgentEventsChannel(c.instanceName)
	pubsub := c.rdb.Subscribe(ctx, channel)

	// Create buffered channels for events and errors
	eventsChan := make(chan *AgentHandle, 10)
	errorsChan := make(chan error, 10)

	// Create cancellation context
	subCtx, cancelFunc := context.WithCancel(ctx)

	// Start goroutine to process messages
	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				// Unmarshal handle from JSON
				var handle AgentHandle
				if err := json.Unmarshal([]byte(msg.Payload), &handle); err != nil {
					// Send error on error channel, skip message
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal agent event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				// Send handle on events channel
				select {
				case eventsChan <- &handle:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &AgentEventSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
