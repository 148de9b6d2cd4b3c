package main

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mugen-ai/mugen/pkg/coord"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAgentLifecycle tests the full lifecycle of the mugen-agent binary.
// This is an integration test that:
//  1. Compiles the agent binary
//  2. Starts Redis
//  3. Runs the agent as a subprocess
//  4. Verifies it registers and reports a live status
//  5. Sends SIGTERM
//  6. Verifies clean shutdown
func TestAgentLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Build the agent binary
	binPath := buildAgentBinary(t)
	defer os.Remove(binPath)

	// Start mock Redis
	mr := miniredis.RunT(t)
	defer mr.Close()

	// Set environment variables
	env := []string{
		"MUGEN_INSTANCE_NAME=test-instance",
		"MUGEN_AGENT_ID=explorer-1",
		"MUGEN_AGENT_ROLE=explorer",
		"MUGEN_REASONER=mock",
		"REDIS_URL=redis://" + mr.Addr(),
	}

	// Start agent process
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, binPath)
	cmd.Env = append(os.Environ(), env...)

	// Capture output for debugging
	output, err := cmd.StdoutPipe()
	require.NoError(t, err)
	errOutput, err := cmd.StderrPipe()
	require.NoError(t, err)

	// Start the process
	err = cmd.Start()
	require.NoError(t, err)
	t.Logf("Agent process started with PID: %d", cmd.Process.Pid)

	// Log output in background
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := output.Read(buf)
			if n > 0 {
				t.Logf("[STDOUT] %s", buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := errOutput.Read(buf)
			if n > 0 {
				t.Logf("[STDERR] %s", buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	// Verify the agent registers and goes live
	coordClient, err := coord.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	defer coordClient.Close()

	require.Eventually(t, func() bool {
		handle, err := coordClient.GetAgent(ctx, "explorer-1")
		if err != nil {
			return false
		}
		return handle.Status == coord.StatusRunning || handle.Status == coord.StatusWaiting
	}, 5*time.Second, 100*time.Millisecond, "Agent should register and report a live status")

	// Send SIGTERM to agent process
	t.Logf("Sending SIGTERM to agent process...")
	err = cmd.Process.Signal(syscall.SIGTERM)
	require.NoError(t, err)

	// Wait for process to exit with timeout
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	startTime := time.Now()
	select {
	case err := <-done:
		shutdownDuration := time.Since(startTime)
		t.Logf("Agent shutdown completed in %v", shutdownDuration)

		// Verify clean exit (exit code 0)
		assert.NoError(t, err, "Agent should exit cleanly with code 0")

		// Verify shutdown completed within the 5 second grace budget
		assert.Less(t, shutdownDuration, 5*time.Second, "Shutdown should complete within 5 seconds")

	case <-time.After(6 * time.Second):
		// Force kill if not shut down
		_ = cmd.Process.Kill()
		t.Fatal("Agent did not shut down within 6 seconds")
	}
}

// TestAgentMissingConfig tests that the agent exits with error when required config is missing.
func TestAgentMissingConfig(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Build the agent binary
	binPath := buildAgentBinary(t)
	defer os.Remove(binPath)

	// Run the agent without setting MUGEN_AGENT_ID
	cmd := exec.Command(binPath)
	cmd.Env = []string{
		// Missing MUGEN_AGENT_ID
		"MUGEN_INSTANCE_NAME=test-instance",
		"MUGEN_AGENT_ROLE=explorer",
		"REDIS_URL=redis://localhost:6379",
	}

	// Run and capture error
	err := cmd.Run()

	// Verify the agent exited with non-zero code
	assert.Error(t, err, "Agent should exit with error when config is missing")

	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok, "Error should be ExitError")
	assert.NotEqual(t, 0, exitErr.ExitCode(), "Exit code should be non-zero")
}

// TestAgentInvalidRedisURL tests that the agent exits with error when the Redis URL is invalid.
func TestAgentInvalidRedisURL(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Build the agent binary
	binPath := buildAgentBinary(t)
	defer os.Remove(binPath)

	// Set environment with invalid Redis URL
	env := []string{
		"MUGEN_INSTANCE_NAME=test-instance",
		"MUGEN_AGENT_ID=explorer-1",
		"MUGEN_AGENT_ROLE=explorer",
		"MUGEN_REASONER=mock",
		"REDIS_URL=not-a-valid-url",
	}

	cmd := exec.Command(binPath)
	cmd.Env = append(os.Environ(), env...)

	// Run and capture error
	err := cmd.Run()

	// Verify the agent exited with non-zero code
	assert.Error(t, err, "Agent should exit with error when Redis URL is invalid")

	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok, "Error should be ExitError")
	assert.NotEqual(t, 0, exitErr.ExitCode(), "Exit code should be non-zero")
}

// TestAgentRedisUnavailable tests that the agent exits when Redis is not available.
func TestAgentRedisUnavailable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Build the agent binary
	binPath := buildAgentBinary(t)
	defer os.Remove(binPath)

	// Set environment with Redis URL pointing to non-existent Redis
	env := []string{
		"MUGEN_INSTANCE_NAME=test-instance",
		"MUGEN_AGENT_ID=explorer-1",
		"MUGEN_AGENT_ROLE=explorer",
		"MUGEN_REASONER=mock",
		"REDIS_URL=redis://localhost:16379", // Non-existent Redis
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, binPath)
	cmd.Env = append(os.Environ(), env...)

	// Run and capture error
	err := cmd.Run()

	// Verify the agent exited with non-zero code (Redis connection failed)
	assert.Error(t, err, "Agent should exit with error when Redis is unavailable")
}

// TestAgentSIGINT tests that the agent responds to SIGINT (Ctrl+C) signal.
func TestAgentSIGINT(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Build the agent binary
	binPath := buildAgentBinary(t)
	defer os.Remove(binPath)

	// Start mock Redis
	mr := miniredis.RunT(t)
	defer mr.Close()

	env := []string{
		"MUGEN_INSTANCE_NAME=test-instance",
		"MUGEN_AGENT_ID=planner-1",
		"MUGEN_AGENT_ROLE=planner",
		"MUGEN_REASONER=mock",
		"REDIS_URL=redis://" + mr.Addr(),
	}

	cmd := exec.Command(binPath)
	cmd.Env = append(os.Environ(), env...)

	err := cmd.Start()
	require.NoError(t, err)

	// Give the agent time to register
	time.Sleep(500 * time.Millisecond)

	// Send SIGINT
	err = cmd.Process.Signal(syscall.SIGINT)
	require.NoError(t, err)

	// Wait for clean exit
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		assert.NoError(t, err, "Agent should exit cleanly on SIGINT")
	case <-time.After(6 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("Agent did not shut down after SIGINT")
	}
}

// buildAgentBinary compiles the mugen-agent binary into a temp dir.
func buildAgentBinary(t *testing.T) string {
	t.Helper()

	// Create temporary binary path
	binPath := t.TempDir() + "/mugen-agent"

	// Build the binary
	cmd := exec.Command("go", "build", "-o", binPath, ".")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	require.NoError(t, err, "Failed to build agent binary")

	t.Logf("Built agent binary at: %s", binPath)
	return binPath
}
