package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mugen-ai/mugen/internal/reasoning"
	"github.com/mugen-ai/mugen/pkg/coord"
)

// newTestCoord spins up a miniredis-backed coordination client for the
// "test" instance.
func newTestCoord(t *testing.T) *coord.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := coord.NewClient(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// scriptedRole is a Role with a pluggable Execute for engine tests.
type scriptedRole struct {
	name    string
	execute func(ctx context.Context, task *coord.TaskPayload, tk *Toolkit) (*coord.ResultPayload, error)
}

func (r *scriptedRole) Name() string         { return r.name }
func (r *scriptedRole) SystemPrompt() string { return "You are a test role." }
func (r *scriptedRole) Tools() []string      { return []string{"Read"} }

func (r *scriptedRole) Execute(ctx context.Context, task *coord.TaskPayload, tk *Toolkit) (*coord.ResultPayload, error) {
	if r.execute != nil {
		return r.execute(ctx, task, tk)
	}
	return &coord.ResultPayload{Summary: "done"}, nil
}

// newTestEngine wires an engine to a fresh coordination client. The agent
// and a "boss" supervisor handle are pre-registered so messages can be
// queued before the engine starts.
func newTestEngine(t *testing.T, role Role, mock reasoning.Client) (*Engine, *coord.Client, *Config) {
	t.Helper()

	client := newTestCoord(t)
	ctx := context.Background()
	require.NoError(t, client.RegisterAgent(ctx, &coord.AgentHandle{ID: "agent-1", Role: role.Name()}))
	require.NoError(t, client.RegisterAgent(ctx, &coord.AgentHandle{ID: "boss", Role: "supervisor"}))

	cfg := &Config{
		InstanceName:      "test",
		AgentID:           "agent-1",
		Role:              role.Name(),
		RedisURL:          "unused",
		WorkingDir:        t.TempDir(),
		HeartbeatInterval: 25 * time.Millisecond,
		ReceivePoll:       time.Second,
		LockTimeout:       time.Second,
		Reasoner:          "mock",
		ReasoningModel:    "sonnet",
		ReasoningTimeout:  time.Minute,
	}
	return New(cfg, client, mock, role), client, cfg
}

// runEngine starts the engine and returns a channel that yields Run's
// return value.
func runEngine(ctx context.Context, e *Engine) chan error {
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	return done
}

func sendTo(t *testing.T, client *coord.Client, from, to string, kind coord.MessageKind, payload interface{}) {
	t.Helper()
	msg, err := coord.NewMessage(from, to, kind, payload)
	require.NoError(t, err)
	_, err = client.Send(context.Background(), msg)
	require.NoError(t, err)
}

func TestEngineRun_GracefulShutdown(t *testing.T) {
	role := &scriptedRole{name: "executor"}
	engine, client, _ := newTestEngine(t, role, reasoning.NewMockClient())
	ctx := context.Background()

	sendTo(t, client, "boss", "agent-1", coord.KindShutdown, &coord.ShutdownPayload{Reason: "work finished"})

	select {
	case err := <-runEngine(ctx, engine):
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop on shutdown message")
	}

	handle, err := client.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, coord.StatusCompleted, handle.Status)
}

func TestEngineRun_TaskDispatch(t *testing.T) {
	var seen *coord.TaskPayload
	role := &scriptedRole{
		name: "executor",
		execute: func(ctx context.Context, task *coord.TaskPayload, tk *Toolkit) (*coord.ResultPayload, error) {
			seen = task
			return &coord.ResultPayload{Summary: "did the thing"}, nil
		},
	}
	engine, client, _ := newTestEngine(t, role, reasoning.NewMockClient())
	ctx := context.Background()

	sendTo(t, client, "boss", "agent-1", coord.KindTask, &coord.TaskPayload{TaskID: "T001", Description: "build it"})
	sendTo(t, client, "boss", "agent-1", coord.KindShutdown, &coord.ShutdownPayload{Reason: "done"})

	select {
	case err := <-runEngine(ctx, engine):
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}

	require.NotNil(t, seen)
	assert.Equal(t, "T001", seen.TaskID)

	// The boss got the result message
	msg, err := client.Receive(ctx, "boss", 0)
	require.NoError(t, err)
	assert.Equal(t, coord.KindResult, msg.Kind)
	assert.Equal(t, "agent-1", msg.From)

	var result coord.ResultPayload
	require.NoError(t, msg.DecodePayload(&result))
	assert.True(t, result.Success)
	assert.Equal(t, "T001", result.TaskID)
	assert.Equal(t, "did the thing", result.Summary)

	// The latest result is also in shared state
	entry, err := client.GetState(ctx, "result:agent-1")
	require.NoError(t, err)
	var stored coord.ResultPayload
	require.NoError(t, json.Unmarshal([]byte(entry.Value), &stored))
	assert.Equal(t, "T001", stored.TaskID)
}

func TestEngineRun_TaskFailure(t *testing.T) {
	role := &scriptedRole{
		name: "executor",
		execute: func(ctx context.Context, task *coord.TaskPayload, tk *Toolkit) (*coord.ResultPayload, error) {
			return &coord.ResultPayload{Summary: "partial"}, assert.AnError
		},
	}
	engine, client, _ := newTestEngine(t, role, reasoning.NewMockClient())
	ctx := context.Background()

	sendTo(t, client, "boss", "agent-1", coord.KindTask, &coord.TaskPayload{TaskID: "T001", Description: "explode"})
	sendTo(t, client, "boss", "agent-1", coord.KindShutdown, nil)

	select {
	case err := <-runEngine(ctx, engine):
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}

	// A failed task does not kill the agent; it reports and carries on
	msg, err := client.Receive(ctx, "boss", 0)
	require.NoError(t, err)
	var result coord.ResultPayload
	require.NoError(t, msg.DecodePayload(&result))
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, "partial", result.Summary)

	// The failure is recorded on the handle
	handle, err := client.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, coord.StatusCompleted, handle.Status)
	assert.NotEmpty(t, handle.LastError)
}

func TestEngineRun_BadTaskPayload(t *testing.T) {
	role := &scriptedRole{name: "executor"}
	engine, client, _ := newTestEngine(t, role, reasoning.NewMockClient())
	ctx := context.Background()

	bad := &coord.Message{
		From:    "boss",
		To:      "agent-1",
		Kind:    coord.KindTask,
		Payload: json.RawMessage(`{"task_id": 123}`),
	}
	_, err := client.Send(ctx, bad)
	require.NoError(t, err)
	sendTo(t, client, "boss", "agent-1", coord.KindShutdown, nil)

	select {
	case err := <-runEngine(ctx, engine):
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}

	msg, err := client.Receive(ctx, "boss", 0)
	require.NoError(t, err)
	var result coord.ResultPayload
	require.NoError(t, msg.DecodePayload(&result))
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestEngineRun_QueryResponse(t *testing.T) {
	mock := reasoning.NewMockClient()
	mock.Handler = func(ctx context.Context, req *reasoning.Request) (*reasoning.Response, error) {
		return &reasoning.Response{Content: "the answer is 42"}, nil
	}
	role := &scriptedRole{name: "explorer"}
	engine, client, _ := newTestEngine(t, role, mock)
	ctx := context.Background()

	sendTo(t, client, "boss", "agent-1", coord.KindQuery, &coord.QueryPayload{Question: "what is the answer?"})
	sendTo(t, client, "boss", "agent-1", coord.KindShutdown, nil)

	select {
	case err := <-runEngine(ctx, engine):
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}

	msg, err := client.Receive(ctx, "boss", 0)
	require.NoError(t, err)
	assert.Equal(t, coord.KindResponse, msg.Kind)

	var resp coord.ResponsePayload
	require.NoError(t, msg.DecodePayload(&resp))
	assert.Equal(t, "what is the answer?", resp.Question)
	assert.Equal(t, "the answer is 42", resp.Answer)

	// The query went through the role's system prompt
	req := mock.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "You are a test role.", req.SystemPrompt)
	assert.Equal(t, "what is the answer?", req.Prompt)
}

func TestEngineRun_StopsWhenMarkedTerminal(t *testing.T) {
	role := &scriptedRole{name: "executor"}
	engine, client, _ := newTestEngine(t, role, reasoning.NewMockClient())
	ctx := context.Background()

	done := runEngine(ctx, engine)

	// Wait for the agent to come up, then fail it out from under the engine
	require.Eventually(t, func() bool {
		handle, err := client.GetAgent(ctx, "agent-1")
		return err == nil && (handle.Status == coord.StatusRunning || handle.Status == coord.StatusWaiting)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.UpdateStatusDetail(ctx, "agent-1", coord.StatusFailed, coord.KeepDetail, "liveness check failed"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after its status went terminal")
	}

	handle, err := client.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, coord.StatusFailed, handle.Status)
}

func TestEngineRun_ReleasesLocksOnExit(t *testing.T) {
	role := &scriptedRole{name: "executor"}
	engine, client, _ := newTestEngine(t, role, reasoning.NewMockClient())
	ctx := context.Background()

	require.NoError(t, client.AcquireLock(ctx, "agent-1", "/workspace/file.go", 0))
	sendTo(t, client, "boss", "agent-1", coord.KindShutdown, nil)

	select {
	case err := <-runEngine(ctx, engine):
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}

	_, err := client.GetLock(ctx, "/workspace/file.go")
	assert.True(t, coord.IsNotFound(err))
}
