package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"

	"github.com/mugen-ai/mugen/internal/config"
	"github.com/mugen-ai/mugen/pkg/coord"
)

// managedProcess tracks one spawned agent process until Wait returns.
// done closes after the process is reaped and removed from the proc table.
type managedProcess struct {
	agentID string
	cmd     *exec.Cmd
	done    chan struct{}
	exitErr error
}

// Spawn launches one agent process for the given role and returns its
// assigned agent id. The role must be built-in or defined under roles in
// the configuration. Fails with an error matching ErrCapReached when the
// instance's live agent count is already at agents.max_concurrent.
//
// The agent is registered before its process starts, so it is addressable
// the moment Spawn returns and a failed exec still leaves a registry
// record explaining what happened.
func (s *Supervisor) Spawn(ctx context.Context, role string) (string, error) {
	roleCfg, err := s.roleConfig(role)
	if err != nil {
		return "", err
	}

	live, err := s.liveAgentCount(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to count live agents: %w", err)
	}
	if live >= s.cfg.Agents.MaxConcurrent {
		return "", fmt.Errorf("cannot spawn %s: %d of %d agents live: %w",
			role, live, s.cfg.Agents.MaxConcurrent, ErrCapReached)
	}

	agentID, err := s.client.NextAgentID(ctx, role)
	if err != nil {
		return "", fmt.Errorf("failed to allocate agent id: %w", err)
	}

	handle := &coord.AgentHandle{ID: agentID, Role: role}
	if err := s.client.RegisterAgent(ctx, handle); err != nil {
		return "", fmt.Errorf("failed to register agent %s: %w", agentID, err)
	}

	cmd := exec.Command(s.AgentBinary)
	cmd.Dir = s.workingDir
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	cmd.Env = s.agentEnv(agentID, role, roleCfg)

	if err := cmd.Start(); err != nil {
		detail := fmt.Sprintf("failed to start agent process: %v", err)
		if statusErr := s.client.UpdateStatusDetail(ctx, agentID, coord.StatusFailed, coord.KeepDetail, detail); statusErr != nil {
			log.Printf("[ERROR] Failed to record spawn failure for %s: %v", agentID, statusErr)
		}
		return "", fmt.Errorf("failed to start agent process for %s: %w", agentID, err)
	}

	// Record the real pid. The live re-register refreshes pid and
	// heartbeat and leaves the spawned status alone.
	handle.PID = cmd.Process.Pid
	if err := s.client.RegisterAgent(ctx, handle); err != nil {
		log.Printf("[WARN] Failed to record pid %d for %s: %v", cmd.Process.Pid, agentID, err)
	}

	mp := &managedProcess{agentID: agentID, cmd: cmd, done: make(chan struct{})}
	s.mu.Lock()
	s.procs[agentID] = mp
	s.mu.Unlock()

	go s.monitor(mp)

	log.Printf("[INFO] Spawned agent %s: role=%s pid=%d", agentID, role, cmd.Process.Pid)
	return agentID, nil
}

// roleConfig resolves a role name to its custom role configuration.
// Built-in roles return nil: the agent binary carries their behavior.
func (s *Supervisor) roleConfig(role string) (*config.RoleConfig, error) {
	switch role {
	case coord.RoleExplorer, coord.RolePlanner, coord.RoleExecutor:
		return nil, nil
	}

	roleCfg, ok := s.cfg.Roles[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q: not a built-in role and not defined under roles in %s",
			role, config.DefaultFileName)
	}
	return &roleCfg, nil
}

// liveAgentCount counts non-terminal agents in the registry, excluding
// supervisors. The cap applies instance-wide, covering agents spawned by
// other supervising processes.
func (s *Supervisor) liveAgentCount(ctx context.Context) (int, error) {
	agents, err := s.client.ListAgents(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, agent := range agents {
		if agent.Status.Terminal() || agent.Role == RoleSupervisor {
			continue
		}
		count++
	}
	return count, nil
}

// agentEnv assembles the environment for a spawned agent: the parent
// environment plus the MUGEN_* coordination variables the agent binary
// reads at startup.
func (s *Supervisor) agentEnv(agentID, role string, roleCfg *config.RoleConfig) []string {
	env := append(os.Environ(),
		"MUGEN_INSTANCE_NAME="+s.client.InstanceName(),
		"MUGEN_AGENT_ID="+agentID,
		"MUGEN_AGENT_ROLE="+role,
		"REDIS_URL="+s.redisURL,
		"MUGEN_WORKING_DIR="+s.workingDir,
		"MUGEN_HEARTBEAT_INTERVAL="+s.cfg.Agents.HeartbeatInterval.Std().String(),
		"MUGEN_RECEIVE_POLL="+s.cfg.Agents.ReceivePoll.Std().String(),
		"MUGEN_LOCK_TIMEOUT="+s.cfg.Agents.LockTimeout.Std().String(),
		"MUGEN_REASONER="+s.cfg.Reasoning.Client,
		"MUGEN_REASONING_MODEL="+s.cfg.Reasoning.Model,
		"MUGEN_REASONING_TIMEOUT="+s.cfg.Reasoning.Timeout.Std().String(),
	)

	if roleCfg != nil {
		env = append(env,
			"MUGEN_ROLE_DESCRIPTION="+roleCfg.Description,
			"MUGEN_ROLE_SYSTEM_PROMPT="+roleCfg.SystemPrompt,
		)
		if len(roleCfg.Tools) > 0 {
			tools, _ := json.Marshal(roleCfg.Tools)
			env = append(env, "MUGEN_ROLE_TOOLS="+string(tools))
		}
	}

	return env
}

// monitor reaps one agent process and settles its registry record: held
// locks are always released, and an exit without a terminal status is
// recorded as a failure and broadcast to the other agents.
func (s *Supervisor) monitor(mp *managedProcess) {
	mp.exitErr = mp.cmd.Wait()

	s.mu.Lock()
	delete(s.procs, mp.agentID)
	s.mu.Unlock()
	close(mp.done)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.releaseLocks(ctx, mp.agentID)

	handle, err := s.client.GetAgent(ctx, mp.agentID)
	if err != nil {
		log.Printf("[ERROR] Failed to read agent %s after exit: %v", mp.agentID, err)
		return
	}
	if handle.Status.Terminal() {
		log.Printf("[INFO] Agent %s exited: status=%s", mp.agentID, handle.Status)
		return
	}

	detail := exitDetail(mp.exitErr)
	log.Printf("[WARN] Agent %s exited unexpectedly: %s", mp.agentID, detail)
	if err := s.client.UpdateStatusDetail(ctx, mp.agentID, coord.StatusFailed, coord.KeepDetail, detail); err != nil {
		log.Printf("[ERROR] Failed to mark agent %s failed: %v", mp.agentID, err)
		return
	}
	s.broadcastFailure(ctx, mp.agentID, detail)
}

func exitDetail(err error) string {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return "process exited without reporting a terminal status"
	case errors.As(err, &exitErr):
		return fmt.Sprintf("process exited with code %d", exitErr.ExitCode())
	default:
		return fmt.Sprintf("process exited: %v", err)
	}
}

// proc returns the managed process for an agent id, or nil when the agent
// is not a child of this supervisor (or already reaped).
func (s *Supervisor) proc(agentID string) *managedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[agentID]
}
