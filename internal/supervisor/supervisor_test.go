package supervisor

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mugen-ai/mugen/internal/config"
	"github.com/mugen-ai/mugen/pkg/coord"
)

// newTestSupervisor wires a supervisor to a throwaway miniredis instance
// with a short heartbeat interval so liveness tests run fast.
func newTestSupervisor(t *testing.T) (*Supervisor, *coord.Client, string) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := coord.NewClient(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	cfg := config.Default()
	cfg.Agents.HeartbeatInterval = config.Duration(50 * time.Millisecond)

	workDir := t.TempDir()
	sup := New(client, cfg, "redis://"+mr.Addr(), workDir)
	sup.Stdout = io.Discard
	sup.Stderr = io.Discard
	return sup, client, workDir
}

// writeStubAgent writes a shell script that stands in for the agent
// binary.
func writeStubAgent(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mugen-agent")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

// killOnCleanup reaps a spawned stub that outlives its test.
func killOnCleanup(t *testing.T, sup *Supervisor, agentID string) {
	t.Helper()
	t.Cleanup(func() {
		if mp := sup.proc(agentID); mp != nil {
			_ = mp.cmd.Process.Kill()
			<-mp.done
		}
	})
}

func TestSpawn_StartsProcessAndRegisters(t *testing.T) {
	sup, client, workDir := newTestSupervisor(t)
	sup.AgentBinary = writeStubAgent(t, `env > "$MUGEN_WORKING_DIR/env-dump"; sleep 30`)
	ctx := context.Background()

	agentID, err := sup.Spawn(ctx, coord.RoleExecutor)
	require.NoError(t, err)
	assert.Equal(t, "executor-1", agentID)
	killOnCleanup(t, sup, agentID)

	handle, err := client.GetAgent(ctx, agentID)
	require.NoError(t, err)
	assert.Equal(t, coord.StatusSpawned, handle.Status)
	assert.Equal(t, coord.RoleExecutor, handle.Role)
	assert.Greater(t, handle.PID, 0)

	envPath := filepath.Join(workDir, "env-dump")
	require.Eventually(t, func() bool {
		_, err := os.Stat(envPath)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(envPath)
	require.NoError(t, err)
	env := string(data)
	assert.Contains(t, env, "MUGEN_INSTANCE_NAME=test\n")
	assert.Contains(t, env, "MUGEN_AGENT_ID=executor-1\n")
	assert.Contains(t, env, "MUGEN_AGENT_ROLE=executor\n")
	assert.Contains(t, env, "REDIS_URL=redis://")
	assert.Contains(t, env, "MUGEN_WORKING_DIR="+workDir+"\n")
	assert.Contains(t, env, "MUGEN_HEARTBEAT_INTERVAL=50ms\n")
	assert.Contains(t, env, "MUGEN_RECEIVE_POLL=1s\n")
	assert.Contains(t, env, "MUGEN_LOCK_TIMEOUT=10s\n")
	assert.Contains(t, env, "MUGEN_REASONER=cli\n")
	assert.Contains(t, env, "MUGEN_REASONING_MODEL=sonnet\n")
	assert.Contains(t, env, "MUGEN_REASONING_TIMEOUT=2m0s\n")
	assert.NotContains(t, env, "MUGEN_ROLE_SYSTEM_PROMPT=")
}

func TestSpawn_RejectsUnknownRole(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	_, err := sup.Spawn(context.Background(), "librarian")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown role "librarian"`)
}

func TestSpawn_CapReached(t *testing.T) {
	sup, client, _ := newTestSupervisor(t)
	sup.cfg.Agents.MaxConcurrent = 1
	sup.AgentBinary = writeStubAgent(t, "sleep 30")
	ctx := context.Background()

	first, err := sup.Spawn(ctx, coord.RoleExecutor)
	require.NoError(t, err)
	killOnCleanup(t, sup, first)

	_, err = sup.Spawn(ctx, coord.RolePlanner)
	require.ErrorIs(t, err, ErrCapReached)
	assert.Contains(t, err.Error(), "1 of 1 agents live")

	// The rejected spawn left no registry record behind.
	_, err = client.GetAgent(ctx, "planner-1")
	assert.True(t, coord.IsNotFound(err))
}

func TestSpawn_CustomRoleEnv(t *testing.T) {
	sup, _, workDir := newTestSupervisor(t)
	sup.cfg.Roles = map[string]config.RoleConfig{
		"java-agent": {
			Description:  "Java specialist",
			SystemPrompt: "You write Java.",
			Tools:        []string{"Read", "Write"},
		},
	}
	sup.AgentBinary = writeStubAgent(t, `env > "$MUGEN_WORKING_DIR/env-dump"; sleep 30`)
	ctx := context.Background()

	agentID, err := sup.Spawn(ctx, "java-agent")
	require.NoError(t, err)
	assert.Equal(t, "java-agent-1", agentID)
	killOnCleanup(t, sup, agentID)

	envPath := filepath.Join(workDir, "env-dump")
	require.Eventually(t, func() bool {
		_, err := os.Stat(envPath)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(envPath)
	require.NoError(t, err)
	env := string(data)
	assert.Contains(t, env, "MUGEN_AGENT_ROLE=java-agent\n")
	assert.Contains(t, env, "MUGEN_ROLE_DESCRIPTION=Java specialist\n")
	assert.Contains(t, env, "MUGEN_ROLE_SYSTEM_PROMPT=You write Java.\n")
	assert.Contains(t, env, `MUGEN_ROLE_TOOLS=["Read","Write"]`)
}

func TestSpawn_ExecFailureMarksFailed(t *testing.T) {
	sup, client, _ := newTestSupervisor(t)
	sup.AgentBinary = "/nonexistent/mugen-agent"
	ctx := context.Background()

	_, err := sup.Spawn(ctx, coord.RoleExecutor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start agent process")

	handle, err := client.GetAgent(ctx, "executor-1")
	require.NoError(t, err)
	assert.Equal(t, coord.StatusFailed, handle.Status)
	assert.Contains(t, handle.LastError, "failed to start agent process")
}

func TestMonitor_CrashMarksFailedAndNotifies(t *testing.T) {
	sup, client, _ := newTestSupervisor(t)
	sup.AgentBinary = writeStubAgent(t, "exit 3")
	ctx := context.Background()

	require.NoError(t, client.RegisterAgent(ctx, &coord.AgentHandle{ID: "boss", Role: "observer"}))
	// A lock the crashing agent leaves behind.
	require.NoError(t, client.AcquireLock(ctx, "executor-1", "/src/main.go", 0))

	agentID, err := sup.Spawn(ctx, coord.RoleExecutor)
	require.NoError(t, err)
	require.Equal(t, "executor-1", agentID)

	require.Eventually(t, func() bool {
		handle, err := client.GetAgent(ctx, agentID)
		return err == nil && handle.Status == coord.StatusFailed
	}, 5*time.Second, 20*time.Millisecond)

	handle, err := client.GetAgent(ctx, agentID)
	require.NoError(t, err)
	assert.Contains(t, handle.LastError, "exited with code 3")

	require.Eventually(t, func() bool {
		_, err := client.GetLock(ctx, "/src/main.go")
		return coord.IsNotFound(err)
	}, 5*time.Second, 20*time.Millisecond)

	msg, err := client.Receive(ctx, "boss", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, coord.KindStatus, msg.Kind)

	var status coord.StatusPayload
	require.NoError(t, msg.DecodePayload(&status))
	assert.Equal(t, agentID, status.AgentID)
	assert.Equal(t, coord.StatusFailed, status.Status)
	assert.Contains(t, status.Detail, "exited with code 3")
}

func TestMonitor_KeepsGracefulStatus(t *testing.T) {
	sup, client, workDir := newTestSupervisor(t)
	sup.AgentBinary = writeStubAgent(t, `while [ ! -f "$MUGEN_WORKING_DIR/release" ]; do sleep 0.05; done`)
	ctx := context.Background()

	require.NoError(t, client.AcquireLock(ctx, "executor-1", "/src/a.go", 0))

	agentID, err := sup.Spawn(ctx, coord.RoleExecutor)
	require.NoError(t, err)
	killOnCleanup(t, sup, agentID)

	// The agent completes on its own, then its process exits.
	require.NoError(t, client.UpdateStatus(ctx, agentID, coord.StatusRunning))
	require.NoError(t, client.UpdateStatus(ctx, agentID, coord.StatusCompleted))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "release"), nil, 0o644))

	// Lock release shows the monitor ran.
	require.Eventually(t, func() bool {
		_, err := client.GetLock(ctx, "/src/a.go")
		return coord.IsNotFound(err)
	}, 5*time.Second, 20*time.Millisecond)

	handle, err := client.GetAgent(ctx, agentID)
	require.NoError(t, err)
	assert.Equal(t, coord.StatusCompleted, handle.Status)
	assert.Empty(t, handle.LastError)

	// No failure broadcast went out.
	queued, err := client.QueueLength(ctx, agentID)
	require.NoError(t, err)
	assert.Zero(t, queued)
}

func TestShutdown_Graceful(t *testing.T) {
	sup, client, workDir := newTestSupervisor(t)
	sup.AgentBinary = writeStubAgent(t, `while [ ! -f "$MUGEN_WORKING_DIR/release" ]; do sleep 0.05; done`)
	ctx := context.Background()

	agentID, err := sup.Spawn(ctx, coord.RoleExecutor)
	require.NoError(t, err)
	killOnCleanup(t, sup, agentID)

	done := make(chan error, 1)
	go func() { done <- sup.Shutdown(ctx, agentID, "work finished", 5*time.Second) }()

	// Act as the agent: receive the shutdown request and complete.
	msg, err := client.Receive(ctx, agentID, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, coord.KindShutdown, msg.Kind)

	var payload coord.ShutdownPayload
	require.NoError(t, msg.DecodePayload(&payload))
	assert.Equal(t, "work finished", payload.Reason)

	require.NoError(t, client.UpdateStatus(ctx, agentID, coord.StatusRunning))
	require.NoError(t, client.UpdateStatus(ctx, agentID, coord.StatusCompleted))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "release"), nil, 0o644))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return")
	}

	handle, err := client.GetAgent(ctx, agentID)
	require.NoError(t, err)
	assert.Equal(t, coord.StatusCompleted, handle.Status)
}

func TestShutdown_ForceKillsAfterTimeout(t *testing.T) {
	sup, client, _ := newTestSupervisor(t)
	sup.AgentBinary = writeStubAgent(t, "sleep 30")
	ctx := context.Background()

	agentID, err := sup.Spawn(ctx, coord.RoleExecutor)
	require.NoError(t, err)
	killOnCleanup(t, sup, agentID)

	start := time.Now()
	require.NoError(t, sup.Shutdown(ctx, agentID, "instance teardown", 200*time.Millisecond))
	assert.Less(t, time.Since(start), 5*time.Second)

	handle, err := client.GetAgent(ctx, agentID)
	require.NoError(t, err)
	assert.Equal(t, coord.StatusTerminated, handle.Status)
	assert.Contains(t, handle.LastError, "killed after shutdown timeout")

	// The killed process was reaped.
	assert.Nil(t, sup.proc(agentID))
}

func TestShutdown_NotRegistered(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)

	err := sup.Shutdown(context.Background(), "ghost-7", "x", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent ghost-7 is not registered")
}

func TestShutdown_AlreadyTerminal(t *testing.T) {
	sup, client, _ := newTestSupervisor(t)
	ctx := context.Background()

	require.NoError(t, client.RegisterAgent(ctx, &coord.AgentHandle{ID: "executor-4", Role: coord.RoleExecutor}))
	require.NoError(t, client.UpdateStatusDetail(ctx, "executor-4", coord.StatusFailed, coord.KeepDetail, "crashed"))

	require.NoError(t, sup.Shutdown(ctx, "executor-4", "x", time.Second))

	// No shutdown message was queued for the dead agent.
	queued, err := client.QueueLength(ctx, "executor-4")
	require.NoError(t, err)
	assert.Zero(t, queued)
}

func TestShutdown_ForeignAgent(t *testing.T) {
	sup, client, _ := newTestSupervisor(t)
	ctx := context.Background()

	// An agent process this supervisor did not spawn, known only through
	// the registry.
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	require.NoError(t, client.RegisterAgent(ctx, &coord.AgentHandle{
		ID:   "executor-8",
		Role: coord.RoleExecutor,
		PID:  cmd.Process.Pid,
	}))
	require.NoError(t, client.AcquireLock(ctx, "executor-8", "/src/b.go", 0))

	require.NoError(t, sup.Shutdown(ctx, "executor-8", "instance teardown", 300*time.Millisecond))

	handle, err := client.GetAgent(ctx, "executor-8")
	require.NoError(t, err)
	assert.Equal(t, coord.StatusTerminated, handle.Status)

	_, err = client.GetLock(ctx, "/src/b.go")
	assert.True(t, coord.IsNotFound(err))

	// The kill reached the process.
	err = cmd.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "killed")
}

func TestShutdownAll(t *testing.T) {
	sup, client, _ := newTestSupervisor(t)
	sup.AgentBinary = writeStubAgent(t, "sleep 30")
	ctx := context.Background()

	first, err := sup.Spawn(ctx, coord.RoleExecutor)
	require.NoError(t, err)
	killOnCleanup(t, sup, first)
	second, err := sup.Spawn(ctx, coord.RoleExecutor)
	require.NoError(t, err)
	killOnCleanup(t, sup, second)

	require.NoError(t, sup.ShutdownAll(ctx, "instance teardown", 200*time.Millisecond))

	for _, agentID := range []string{first, second} {
		handle, err := client.GetAgent(ctx, agentID)
		require.NoError(t, err)
		assert.Equal(t, coord.StatusTerminated, handle.Status, "agent %s", agentID)
		assert.Nil(t, sup.proc(agentID))
	}
}

func TestSweep_FailsStaleAgents(t *testing.T) {
	sup, client, _ := newTestSupervisor(t)
	ctx := context.Background()

	require.NoError(t, client.RegisterAgent(ctx, &coord.AgentHandle{ID: "executor-1", Role: coord.RoleExecutor}))
	require.NoError(t, client.AcquireLock(ctx, "executor-1", "/src/c.go", 0))

	// Past twice the 50ms heartbeat interval with no heartbeat.
	time.Sleep(150 * time.Millisecond)

	// Registered after the stale window: these must survive the sweep.
	require.NoError(t, client.RegisterAgent(ctx, &coord.AgentHandle{ID: "planner-1", Role: coord.RolePlanner}))
	require.NoError(t, client.RegisterAgent(ctx, &coord.AgentHandle{ID: "boss", Role: "observer"}))

	failed, err := sup.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"executor-1"}, failed)

	handle, err := client.GetAgent(ctx, "executor-1")
	require.NoError(t, err)
	assert.Equal(t, coord.StatusFailed, handle.Status)
	assert.Contains(t, handle.LastError, "no heartbeat for")

	fresh, err := client.GetAgent(ctx, "planner-1")
	require.NoError(t, err)
	assert.Equal(t, coord.StatusSpawned, fresh.Status)

	_, err = client.GetLock(ctx, "/src/c.go")
	assert.True(t, coord.IsNotFound(err))

	msg, err := client.Receive(ctx, "boss", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, coord.KindStatus, msg.Kind)

	var status coord.StatusPayload
	require.NoError(t, msg.DecodePayload(&status))
	assert.Equal(t, "executor-1", status.AgentID)
	assert.Equal(t, coord.StatusFailed, status.Status)
}

func TestSweep_SkipsTerminalAgents(t *testing.T) {
	sup, client, _ := newTestSupervisor(t)
	ctx := context.Background()

	require.NoError(t, client.RegisterAgent(ctx, &coord.AgentHandle{ID: "executor-1", Role: coord.RoleExecutor}))
	require.NoError(t, client.UpdateStatusDetail(ctx, "executor-1", coord.StatusFailed, coord.KeepDetail, "boom"))

	time.Sleep(150 * time.Millisecond)

	failed, err := sup.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, failed)

	handle, err := client.GetAgent(ctx, "executor-1")
	require.NoError(t, err)
	assert.Equal(t, "boom", handle.LastError)
}

func TestStartStop(t *testing.T) {
	sup, client, _ := newTestSupervisor(t)
	ctx := context.Background()

	require.NoError(t, sup.Start(ctx))
	assert.Equal(t, "supervisor-1", sup.ID())

	before, err := client.GetAgent(ctx, sup.ID())
	require.NoError(t, err)
	assert.Equal(t, coord.StatusRunning, before.Status)
	assert.Equal(t, RoleSupervisor, before.Role)
	assert.Equal(t, os.Getpid(), before.PID)

	// Heartbeats advance the liveness timestamp.
	require.Eventually(t, func() bool {
		handle, err := client.GetAgent(ctx, sup.ID())
		return err == nil && handle.LastHeartbeatMs > before.LastHeartbeatMs
	}, 2*time.Second, 20*time.Millisecond)

	sup.Stop(ctx)

	after, err := client.GetAgent(ctx, sup.ID())
	require.NoError(t, err)
	assert.Equal(t, coord.StatusCompleted, after.Status)
}

func TestStart_SecondSupervisorGetsFreshID(t *testing.T) {
	sup, client, _ := newTestSupervisor(t)
	ctx := context.Background()

	require.NoError(t, sup.Start(ctx))
	sup.Stop(ctx)

	again := New(client, sup.cfg, sup.redisURL, sup.workingDir)
	again.Stdout = io.Discard
	again.Stderr = io.Discard
	require.NoError(t, again.Start(ctx))
	defer again.Stop(ctx)

	assert.Equal(t, "supervisor-2", again.ID())

	old, err := client.GetAgent(ctx, "supervisor-1")
	require.NoError(t, err)
	assert.Equal(t, coord.StatusCompleted, old.Status)
}
