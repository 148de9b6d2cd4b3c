package coord

import "fmt"

// Redis key pattern helpers
//
// All Redis keys are namespaced by instance name to enable multiple Mugen
// instances to safely coexist on a single Redis server.
//
// Key pattern: mugen:{instance_name}:{entity}[:{id}]

// AgentKey returns the Redis key for an agent's registry hash.
// Pattern: mugen:{instance_name}:agent:{agent_id}
func AgentKey(instanceName, agentID string) string {
	return fmt.Sprintf("mugen:%s:agent:%s", instanceName, agentID)
}

// AgentSetKey returns the Redis key for the set of registered agent ids.
// Membership in this set is what makes an id a valid message recipient.
// Pattern: mugen:{instance_name}:agents
func AgentSetKey(instanceName string) string {
	return fmt.Sprintf("mugen:%s:agents", instanceName)
}

// AgentSeqKey returns the Redis key for the agent id counter.
// Pattern: mugen:{instance_name}:agent_seq
func AgentSeqKey(instanceName string) string {
	return fmt.Sprintf("mugen:%s:agent_seq", instanceName)
}

// MessageSeqKey returns the Redis key for the message id counter.
// Pattern: mugen:{instance_name}:message_seq
func MessageSeqKey(instanceName string) string {
	return fmt.Sprintf("mugen:%s:message_seq", instanceName)
}

// MessageQueueKey returns the Redis key for an agent's private FIFO queue.
// Pattern: mugen:{instance_name}:queue:{agent_id}
func MessageQueueKey(instanceName, agentID string) string {
	return fmt.Sprintf("mugen:%s:queue:%s", instanceName, agentID)
}

// MessageQueuePrefix returns the queue key prefix for an instance.
// The broadcast script appends agent ids to this prefix to address every
// registered agent's queue.
func MessageQueuePrefix(instanceName string) string {
	return fmt.Sprintf("mugen:%s:queue:", instanceName)
}

// LockKey returns the Redis key for a path's lock hash.
// Pattern: mugen:{instance_name}:lock:{path}
func LockKey(instanceName, path string) string {
	return fmt.Sprintf("mugen:%s:lock:%s", instanceName, path)
}

// LockWaitKey returns the Redis key for a path's FIFO waiter list.
// Pattern: mugen:{instance_name}:lockwait:{path}
func LockWaitKey(instanceName, path string) string {
	return fmt.Sprintf("mugen:%s:lockwait:%s", instanceName, path)
}

// LockSetKey returns the Redis key for the set of currently held lock paths.
// Pattern: mugen:{instance_name}:locks
func LockSetKey(instanceName string) string {
	return fmt.Sprintf("mugen:%s:locks", instanceName)
}

// StateKey returns the Redis key for a shared-state entry hash.
// Pattern: mugen:{instance_name}:state:{key}
func StateKey(instanceName, key string) string {
	return fmt.Sprintf("mugen:%s:state:%s", instanceName, key)
}

// StateKeySetKey returns the Redis key for the set of shared-state keys.
// Pattern: mugen:{instance_name}:statekeys
func StateKeySetKey(instanceName string) string {
	return fmt.Sprintf("mugen:%s:statekeys", instanceName)
}

// AgentEventsChannel returns the Pub/Sub channel name for agent lifecycle
// events. Every successful status transition publishes the updated handle.
// Pattern: mugen:{instance_name}:agent_events
func AgentEventsChannel(instanceName string) string {
	return fmt.Sprintf("mugen:%s:agent_events", instanceName)
}
