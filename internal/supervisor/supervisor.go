// Package supervisor owns the agent processes of a mugen instance. It
// spawns agent processes with their coordination environment, reaps them
// on exit, escalates shutdown requests to kills, and runs the liveness
// sweep that declares silent agents dead.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mugen-ai/mugen/internal/config"
	"github.com/mugen-ai/mugen/pkg/coord"
)

// RoleSupervisor is the registry role under which supervisors register.
// Each supervising process gets its own id (supervisor-1, supervisor-2, ...)
// so records from earlier runs stay inspectable.
const RoleSupervisor = "supervisor"

// ErrCapReached is returned by Spawn when the instance already runs the
// configured maximum number of live agents.
var ErrCapReached = errors.New("agent cap reached")

// Supervisor spawns and manages agent processes for one instance. Start
// registers it as an agent and begins heartbeating and sweeping; Spawn,
// Shutdown and ShutdownAll manage individual agents.
type Supervisor struct {
	// AgentBinary is the executable spawned for each agent, resolved
	// through PATH when not absolute.
	AgentBinary string

	// Stdout and Stderr receive the spawned agents' output. They default
	// to the supervisor process's own streams, interleaving agent logs
	// with the supervisor's.
	Stdout io.Writer
	Stderr io.Writer

	client     *coord.Client
	cfg        *config.Config
	redisURL   string
	workingDir string
	id         string

	mu    sync.Mutex
	procs map[string]*managedProcess

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New creates a supervisor for the given instance client. redisURL is
// handed to spawned agents so they can reach the same instance;
// workingDir becomes the agents' working directory.
func New(client *coord.Client, cfg *config.Config, redisURL, workingDir string) *Supervisor {
	return &Supervisor{
		AgentBinary: "mugen-agent",
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		client:      client,
		cfg:         cfg,
		redisURL:    redisURL,
		workingDir:  workingDir,
		procs:       make(map[string]*managedProcess),
	}
}

// ID returns the supervisor's registry id. Empty until Start has
// registered it.
func (s *Supervisor) ID() string {
	return s.id
}

// Start registers the supervisor in the agent registry and launches its
// heartbeat and liveness sweep loop. Must be called before Spawn. Call
// Stop to deregister and stop the loop.
func (s *Supervisor) Start(ctx context.Context) error {
	id, err := s.client.NextAgentID(ctx, RoleSupervisor)
	if err != nil {
		return fmt.Errorf("failed to allocate supervisor id: %w", err)
	}

	handle := &coord.AgentHandle{ID: id, Role: RoleSupervisor, PID: os.Getpid()}
	if err := s.client.RegisterAgent(ctx, handle); err != nil {
		return fmt.Errorf("failed to register supervisor: %w", err)
	}
	if err := s.client.UpdateStatus(ctx, id, coord.StatusRunning); err != nil {
		return fmt.Errorf("failed to mark supervisor running: %w", err)
	}
	s.id = id

	loopCtx, cancel := context.WithCancel(context.Background())
	s.loopCancel = cancel
	s.loopDone = make(chan struct{})
	go s.maintenanceLoop(loopCtx)

	log.Printf("[INFO] Supervisor started: id=%s instance=%s pid=%d", id, s.client.InstanceName(), os.Getpid())
	return nil
}

// Stop halts the maintenance loop and marks the supervisor completed.
// Running agents are left alone; call ShutdownAll first to take them down.
func (s *Supervisor) Stop(ctx context.Context) {
	if s.loopCancel != nil {
		s.loopCancel()
		<-s.loopDone
		s.loopCancel = nil
	}

	if s.id != "" {
		if err := s.client.UpdateStatus(ctx, s.id, coord.StatusCompleted); err != nil {
			log.Printf("[WARN] Failed to mark supervisor completed: %v", err)
		}
	}
	log.Printf("[INFO] Supervisor stopped: id=%s", s.id)
}

// maintenanceLoop heartbeats the supervisor's own record and sweeps for
// dead agents, once per heartbeat interval.
func (s *Supervisor) maintenanceLoop(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.cfg.Agents.HeartbeatInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := s.client.Heartbeat(ctx, s.id); err != nil && ctx.Err() == nil {
			log.Printf("[WARN] Supervisor heartbeat failed: %v", err)
		}
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[WARN] Liveness sweep failed: %v", err)
		}
	}
}

// Sweep fails every live agent whose last heartbeat is older than twice
// the configured heartbeat interval, releases its locks and broadcasts the
// status change. Returns the ids it failed.
func (s *Supervisor) Sweep(ctx context.Context) ([]string, error) {
	agents, err := s.client.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	cutoff := 2 * s.cfg.Agents.HeartbeatInterval.Std()
	now := time.Now().UnixMilli()

	var failed []string
	for _, agent := range agents {
		if agent.ID == s.id || agent.Status.Terminal() {
			continue
		}
		silent := time.Duration(now-agent.LastHeartbeatMs) * time.Millisecond
		if silent <= cutoff {
			continue
		}

		detail := fmt.Sprintf("no heartbeat for %s (interval %s)",
			silent.Round(time.Millisecond), s.cfg.Agents.HeartbeatInterval.Std())
		log.Printf("[WARN] Agent %s stopped heartbeating, marking failed: %s", agent.ID, detail)
		if err := s.client.UpdateStatusDetail(ctx, agent.ID, coord.StatusFailed, coord.KeepDetail, detail); err != nil {
			log.Printf("[ERROR] Failed to mark agent %s failed: %v", agent.ID, err)
			continue
		}
		failed = append(failed, agent.ID)

		s.releaseLocks(ctx, agent.ID)
		s.broadcastFailure(ctx, agent.ID, detail)
	}

	return failed, nil
}

// senderID is the From address for supervisor-originated messages. Falls
// back to the bare role name when Start has not registered an id, which
// matters only for direct Sweep calls.
func (s *Supervisor) senderID() string {
	if s.id != "" {
		return s.id
	}
	return RoleSupervisor
}

func (s *Supervisor) releaseLocks(ctx context.Context, agentID string) {
	released, err := s.client.ReleaseAllLocks(ctx, agentID)
	if err != nil {
		log.Printf("[ERROR] Failed to release locks held by %s: %v", agentID, err)
		return
	}
	if released > 0 {
		log.Printf("[INFO] Released %d locks held by %s", released, agentID)
	}
}

func (s *Supervisor) broadcastFailure(ctx context.Context, agentID, detail string) {
	msg, err := coord.NewMessage(s.senderID(), coord.Broadcast, coord.KindStatus, &coord.StatusPayload{
		AgentID: agentID,
		Status:  coord.StatusFailed,
		Detail:  detail,
	})
	if err != nil {
		log.Printf("[ERROR] Failed to build failure notification for %s: %v", agentID, err)
		return
	}
	if _, err := s.client.Send(ctx, msg); err != nil {
		log.Printf("[ERROR] Failed to broadcast failure of %s: %v", agentID, err)
	}
}
