package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mugen-ai/mugen/pkg/coord"
)

// shutdownPollInterval is how often Shutdown re-checks the registry while
// waiting on an agent that is not a child of this supervisor.
const shutdownPollInterval = 100 * time.Millisecond

// killReapTimeout bounds the wait for a killed child to be reaped.
const killReapTimeout = 5 * time.Second

// Shutdown asks one agent to exit and escalates to a kill when it does
// not comply within timeout. A graceful exit keeps the terminal status
// the agent set for itself; a killed agent is recorded as terminated.
// Agents already in a terminal status are left untouched.
func (s *Supervisor) Shutdown(ctx context.Context, agentID, reason string, timeout time.Duration) error {
	handle, err := s.client.GetAgent(ctx, agentID)
	if err != nil {
		if coord.IsNotFound(err) {
			return fmt.Errorf("agent %s is not registered", agentID)
		}
		return fmt.Errorf("failed to read agent %s: %w", agentID, err)
	}
	if handle.Status.Terminal() {
		return nil
	}

	msg, err := coord.NewMessage(s.senderID(), agentID, coord.KindShutdown, &coord.ShutdownPayload{Reason: reason})
	if err != nil {
		return err
	}
	if _, err := s.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send shutdown to %s: %w", agentID, err)
	}
	log.Printf("[INFO] Sent shutdown to %s: reason=%q timeout=%s", agentID, reason, timeout)

	if mp := s.proc(agentID); mp != nil {
		return s.awaitChild(ctx, mp, timeout)
	}
	return s.awaitForeign(ctx, agentID, timeout)
}

// ShutdownAll shuts down every live agent in the instance except
// supervisors. Shutdowns run in parallel and share the same timeout.
func (s *Supervisor) ShutdownAll(ctx context.Context, reason string, timeout time.Duration) error {
	agents, err := s.client.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list agents: %w", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	for _, agent := range agents {
		if agent.Status.Terminal() || agent.Role == RoleSupervisor {
			continue
		}
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			if err := s.Shutdown(ctx, agentID, reason, timeout); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(agent.ID)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// awaitChild waits for a child process to exit, killing it once the
// timeout passes. The monitor goroutine settles the registry record for
// graceful exits; the kill path marks terminated first so the monitor
// leaves the record alone.
func (s *Supervisor) awaitChild(ctx context.Context, mp *managedProcess, timeout time.Duration) error {
	select {
	case <-mp.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
	}

	log.Printf("[WARN] Agent %s did not exit within %s, killing pid %d", mp.agentID, timeout, mp.cmd.Process.Pid)
	s.markTerminated(ctx, mp.agentID)
	if err := mp.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill agent %s: %w", mp.agentID, err)
	}

	select {
	case <-mp.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(killReapTimeout):
		return fmt.Errorf("agent %s did not exit after kill", mp.agentID)
	}
}

// awaitForeign waits on an agent some other supervising process spawned:
// all we have is the registry record and its recorded pid. The forced
// path has no monitor goroutine behind it, so lock release happens here.
func (s *Supervisor) awaitForeign(ctx context.Context, agentID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		handle, err := s.client.GetAgent(ctx, agentID)
		if err != nil {
			return fmt.Errorf("failed to read agent %s: %w", agentID, err)
		}
		if handle.Status.Terminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(shutdownPollInterval):
		}
	}

	handle, err := s.client.GetAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to read agent %s: %w", agentID, err)
	}
	if handle.Status.Terminal() {
		return nil
	}

	s.markTerminated(ctx, agentID)
	s.releaseLocks(ctx, agentID)

	if handle.PID <= 0 {
		log.Printf("[WARN] Agent %s has no recorded pid, cannot kill", agentID)
		return nil
	}
	log.Printf("[WARN] Agent %s did not exit within %s, killing pid %d", agentID, timeout, handle.PID)
	proc, err := os.FindProcess(handle.PID)
	if err != nil {
		log.Printf("[WARN] Failed to find pid %d for %s: %v", handle.PID, agentID, err)
		return nil
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Printf("[WARN] Failed to kill pid %d for %s: %v", handle.PID, agentID, err)
	}
	return nil
}

// markTerminated records a forced kill. An invalid transition means the
// agent reached a terminal status on its own in the meantime, which is
// not an error here.
func (s *Supervisor) markTerminated(ctx context.Context, agentID string) {
	err := s.client.UpdateStatusDetail(ctx, agentID, coord.StatusTerminated, coord.KeepDetail, "killed after shutdown timeout")
	if err != nil && !coord.IsInvalidTransition(err) {
		log.Printf("[ERROR] Failed to mark agent %s terminated: %v", agentID, err)
	}
}
