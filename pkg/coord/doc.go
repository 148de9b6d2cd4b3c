// Package coord provides type-safe Go definitions and Redis schema patterns
// for the Mugen coordination layer.
//
// # Overview
//
// The coordination layer is the shared infrastructure every Mugen process
// (supervisor, agents, CLI) uses to cooperate safely: a per-recipient message
// bus, a versioned shared-state store, a file-path lock registry, and an
// agent-status registry. All four stores live in a per-instance Redis server,
// reached by every process through a Client. Redis executes commands on a
// single thread, so each operation is linearizable; multi-step primitives
// (compare-and-swap, FIFO lock grants, registered-recipient sends, status
// transitions) run as single Lua scripts and are atomic at that same
// serialization point.
//
// # Core Concepts
//
// Agents are independently scheduled OS processes, each registered under a
// unique id ({role}-{n}). The AgentRegistry tracks their status machine
// (spawned → running ⇄ waiting → completed/failed/terminated) and heartbeats.
//
// Messages are immutable once enqueued. Every agent has a private FIFO queue;
// sending to the broadcast address copies the message to every registered
// agent's queue. Message ids come from a per-instance counter and increase
// monotonically.
//
// Locks grant exclusive access to a path. Waiters queue FIFO; a holder that
// dies never leaves a permanent stale lock because held locks are released on
// observed process exit and swept by the liveness monitor.
//
// Shared state entries carry a per-key monotonic version; CompareAndSwapState
// lets exactly one racer win.
//
// # Multi-Instance Support
//
// All Redis keys are namespaced by instance name so multiple Mugen instances
// can safely coexist on a single Redis server. Each instance has complete
// isolation of its data.
//
// # Usage Example
//
//	import "github.com/mugen-ai/mugen/pkg/coord"
//
//	client, err := coord.NewClient(&redis.Options{Addr: "localhost:6379"}, "default-1")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Send a task to an agent
//	msg, err := coord.NewMessage("supervisor", "executor-3", coord.KindTask, coord.TaskPayload{
//		TaskID:      "T001",
//		Description: "Implement user authentication",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if _, err := client.Send(ctx, msg); err != nil {
//		log.Fatal(err)
//	}
//
//	// Exclusive access to a shared file
//	if err := client.AcquireLock(ctx, "executor-3", "src/auth.go", 5*time.Second); err != nil {
//		log.Fatal(err)
//	}
//	defer client.ReleaseLock(ctx, "executor-3", "src/auth.go")
//
// # Redis Schema
//
// All keys follow the pattern: mugen:{instance_name}:{entity}[:{id}]
//
// Agents: mugen:{instance_name}:agent:{agent_id} (hash), mugen:{instance_name}:agents (set)
// Queues: mugen:{instance_name}:queue:{agent_id} (list)
// Locks: mugen:{instance_name}:lock:{path} (hash), mugen:{instance_name}:lockwait:{path} (list)
// State: mugen:{instance_name}:state:{key} (hash), mugen:{instance_name}:statekeys (set)
// Counters: mugen:{instance_name}:agent_seq, mugen:{instance_name}:message_seq
//
// # Design Principles
//
// - Type Safety: all records have strong typing with validation methods
// - Linearizability: every operation is one command or one Lua script
// - Fairness: lock waiters and message queues are strictly FIFO
// - Isolation: instance namespacing prevents cross-instance interference
// - Volatility: state lives only for one instance run; nothing persists
package coord
