//go:build integration

// Package testutil provides shared helpers for integration tests that need a
// real Redis container and a scratch git workspace.
package testutil

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mugen-ai/mugen/internal/watch"
	"github.com/mugen-ai/mugen/pkg/coord"
)

// E2EEnvironment represents an isolated integration test environment: a git
// workspace with mugen.yml plus a throwaway Redis container.
type E2EEnvironment struct {
	T            *testing.T
	TmpDir       string
	InstanceName string
	RedisURL     string
	Client       *coord.Client
	Ctx          context.Context
}

// StartRedis starts a disposable Redis container and returns its URL.
// The container is terminated when the test finishes.
func StartRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start Redis container")

	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err, "Failed to get container host")

	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err, "Failed to get container port")

	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

// SetupE2EEnvironment creates a fully isolated test environment with a temp
// Git workspace, mugen.yml, a Redis container and a connected coordination
// client. The process working directory is the workspace until cleanup.
func SetupE2EEnvironment(t *testing.T, mugenYML string) *E2EEnvironment {
	t.Helper()
	ctx := context.Background()

	// Create isolated temporary directory (auto-cleaned up)
	tmpDir := t.TempDir()

	// Initialize Git repository
	cmd := exec.Command("git", "init")
	cmd.Dir = tmpDir
	require.NoError(t, cmd.Run(), "Failed to initialize Git repository")

	// Configure Git
	exec.Command("git", "-C", tmpDir, "config", "user.email", "test@mugen.local").Run()
	exec.Command("git", "-C", tmpDir, "config", "user.name", "mugen test").Run()

	// Create initial commit (required for clean workspace check)
	testFile := filepath.Join(tmpDir, "README.md")
	require.NoError(t, os.WriteFile(testFile, []byte("# Test Project\n"), 0644))
	exec.Command("git", "-C", tmpDir, "add", ".").Run()
	exec.Command("git", "-C", tmpDir, "commit", "-m", "Initial commit").Run()

	// Write mugen.yml
	mugenYMLPath := filepath.Join(tmpDir, "mugen.yml")
	require.NoError(t, os.WriteFile(mugenYMLPath, []byte(mugenYML), 0644), "Failed to write mugen.yml")

	// Change to test directory
	originalDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir), "Failed to change to test directory")

	// Generate unique instance name with microseconds for uniqueness
	instanceName := fmt.Sprintf("test-e2e-%s", time.Now().Format("20060102-150405-000000"))

	// Start Redis and connect the coordination client
	redisURL := StartRedis(t)
	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err, "Failed to parse Redis URL")

	client, err := coord.NewClient(opts, instanceName)
	require.NoError(t, err, "Failed to create coordination client")

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(pingCtx), "Redis container not reachable")

	env := &E2EEnvironment{
		T:            t,
		TmpDir:       tmpDir,
		InstanceName: instanceName,
		RedisURL:     redisURL,
		Client:       client,
		Ctx:          ctx,
	}

	// Register cleanup
	t.Cleanup(func() {
		env.Client.Close()
		os.Chdir(originalDir)
	})

	return env
}

// WaitForAgentStatus blocks until the agent reaches the given status, failing
// the test after timeout.
func (env *E2EEnvironment) WaitForAgentStatus(agentID string, status coord.AgentStatus, timeout time.Duration) *coord.AgentHandle {
	env.T.Helper()
	agent, err := watch.WaitForStatus(env.Ctx, env.Client, agentID, status, timeout)
	require.NoError(env.T, err, "Agent %s did not reach status %s", agentID, status)
	env.T.Logf("✓ Agent %s is %s", agentID, status)
	return agent
}

// VerifyFileExists checks that a file exists in the workspace
func (env *E2EEnvironment) VerifyFileExists(filename string) {
	filePath := filepath.Join(env.TmpDir, filename)
	_, err := os.Stat(filePath)
	require.NoError(env.T, err, "File %s does not exist", filename)
	env.T.Logf("✓ File %s exists", filename)
}

// VerifyFileContent checks file content matches expected
func (env *E2EEnvironment) VerifyFileContent(filename string, expectedContent string) {
	filePath := filepath.Join(env.TmpDir, filename)
	content, err := os.ReadFile(filePath)
	require.NoError(env.T, err, "Failed to read file %s", filename)
	require.Contains(env.T, string(content), expectedContent, "File content mismatch")
	env.T.Logf("✓ File %s contains expected content", filename)
}

// VerifyWorkspaceClean checks that Git workspace has no uncommitted changes
func (env *E2EEnvironment) VerifyWorkspaceClean() {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = env.TmpDir
	output, err := cmd.Output()
	require.NoError(env.T, err, "Failed to run git status")
	require.Empty(env.T, string(output), "Workspace has uncommitted changes")
	env.T.Logf("✓ Workspace is clean")
}

// CreateDirtyWorkspace creates an uncommitted file to make workspace dirty
func (env *E2EEnvironment) CreateDirtyWorkspace() {
	dirtyFile := filepath.Join(env.TmpDir, "uncommitted.txt")
	require.NoError(env.T, os.WriteFile(dirtyFile, []byte("dirty"), 0644))
	env.T.Logf("✓ Created dirty file: uncommitted.txt")
}

// DefaultMugenYML returns a minimal mugen.yml using the CLI reasoner
func DefaultMugenYML() string {
	return `version: 1
agents:
  max_concurrent: 5
`
}

// MockReasonerMugenYML returns a mugen.yml wired to the mock reasoner, for
// tests that must not shell out to a real model CLI
func MockReasonerMugenYML() string {
	return `version: 1
agents:
  max_concurrent: 3
reasoning:
  client: mock
`
}
