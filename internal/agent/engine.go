package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mugen-ai/mugen/internal/reasoning"
	"github.com/mugen-ai/mugen/pkg/coord"
)

// maxReceiveErrors is how many consecutive receive failures the engine
// tolerates before giving up.
const maxReceiveErrors = 5

// Engine is the agent's run loop. It registers the agent, keeps its
// heartbeat fresh from a background goroutine, and dispatches incoming
// messages to the role until a shutdown message or context cancellation
// stops it.
//
// Status reflects what the agent is doing: running while processing a task
// or query, waiting while idle between messages. A graceful shutdown message
// moves the agent to completed; being killed leaves the final transition to
// the supervisor.
type Engine struct {
	cfg     *Config
	client  *coord.Client
	role    Role
	toolkit *Toolkit
	wg      sync.WaitGroup
}

// New creates an agent engine. The reasoner is injected so tests and dry
// runs can substitute a mock backend; the engine wraps it with this agent's
// conversation history so every call sees the prior exchanges.
func New(cfg *Config, client *coord.Client, reasoner reasoning.Client, role Role) *Engine {
	return &Engine{
		cfg:    cfg,
		client: client,
		role:   role,
		toolkit: &Toolkit{
			Coord:       client,
			Reasoner:    newHistoryReasoner(reasoner),
			AgentID:     cfg.AgentID,
			WorkingDir:  cfg.WorkingDir,
			LockTimeout: cfg.LockTimeout,
		},
	}
}

// Run registers the agent and processes messages until shutdown. It returns
// nil on graceful shutdown or context cancellation, and an error when the
// agent cannot register or loses its coordination backend.
func (e *Engine) Run(ctx context.Context) error {
	log.Printf("[INFO] Agent %s starting (role: %s)", e.cfg.AgentID, e.cfg.Role)

	handle := &coord.AgentHandle{
		ID:   e.cfg.AgentID,
		Role: e.cfg.Role,
		PID:  os.Getpid(),
	}
	if err := e.client.RegisterAgent(ctx, handle); err != nil {
		return fmt.Errorf("failed to register agent: %w", err)
	}
	if err := e.client.UpdateStatus(ctx, e.cfg.AgentID, coord.StatusRunning); err != nil {
		return fmt.Errorf("failed to mark agent running: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.wg.Add(1)
	go e.heartbeatLoop(runCtx, cancel)

	err := e.messageLoop(runCtx)

	cancel()
	e.wg.Wait()
	e.releaseHeldLocks()

	log.Printf("[INFO] Agent %s stopped", e.cfg.AgentID)
	return err
}

// messageLoop receives and dispatches messages until shutdown, context
// cancellation, or persistent receive failures.
func (e *Engine) messageLoop(ctx context.Context) error {
	idle := false
	receiveErrors := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := e.client.Receive(ctx, e.cfg.AgentID, e.cfg.ReceivePoll)
		if err != nil {
			if coord.IsNoMessage(err) {
				receiveErrors = 0
				if ctx.Err() != nil {
					return nil
				}
				if !idle {
					e.setStatus(ctx, coord.StatusWaiting, "", coord.KeepDetail)
					idle = true
				}
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			receiveErrors++
			log.Printf("[ERROR] Failed to receive message: %v", err)
			if receiveErrors >= maxReceiveErrors {
				return fmt.Errorf("giving up after %d consecutive receive failures: %w", receiveErrors, err)
			}
			time.Sleep(time.Second)
			continue
		}
		receiveErrors = 0

		switch msg.Kind {
		case coord.KindTask:
			idle = false
			e.handleTask(ctx, msg)
			idle = true

		case coord.KindQuery:
			idle = false
			e.handleQuery(ctx, msg)
			idle = true

		case coord.KindShutdown:
			var p coord.ShutdownPayload
			if len(msg.Payload) > 0 {
				if err := msg.DecodePayload(&p); err != nil {
					log.Printf("[WARN] Bad shutdown payload from %s: %v", msg.From, err)
				}
			}
			log.Printf("[INFO] Received shutdown from %s: %s", msg.From, p.Reason)
			if err := e.client.UpdateStatus(ctx, e.cfg.AgentID, coord.StatusCompleted); err != nil {
				log.Printf("[WARN] Failed to mark agent completed: %v", err)
			}
			return nil

		case coord.KindStatus:
			var p coord.StatusPayload
			if err := msg.DecodePayload(&p); err == nil {
				log.Printf("[DEBUG] Peer status: %s is now %s (%s)", p.AgentID, p.Status, p.Detail)
			}

		default:
			log.Printf("[WARN] Ignoring unexpected %s message from %s", msg.Kind, msg.From)
		}
	}
}

// handleTask runs one task through the role and reports the result to the
// sender. Task failures do not stop the agent; the failure travels in the
// result message and in the agent's last_error field.
func (e *Engine) handleTask(ctx context.Context, msg *coord.Message) {
	var task coord.TaskPayload
	if err := msg.DecodePayload(&task); err != nil {
		log.Printf("[ERROR] Bad task payload from %s: %v", msg.From, err)
		e.sendResult(ctx, msg.From, &coord.ResultPayload{Success: false, Error: err.Error()})
		return
	}

	log.Printf("[INFO] Received task %s: %s", task.TaskID, task.Description)
	e.setStatus(ctx, coord.StatusRunning, task.Description, coord.KeepDetail)

	result, execErr := e.role.Execute(ctx, &task, e.toolkit)
	if result == nil {
		result = &coord.ResultPayload{}
	}
	result.TaskID = task.TaskID
	result.Success = execErr == nil
	if execErr != nil {
		result.Error = execErr.Error()
		log.Printf("[ERROR] Task %s failed: %v", task.TaskID, execErr)
	} else {
		log.Printf("[INFO] Task %s completed", task.TaskID)
	}

	e.sendResult(ctx, msg.From, result)
	e.storeResult(ctx, result)

	if execErr != nil {
		e.setStatus(ctx, coord.StatusWaiting, "", execErr.Error())
	} else {
		e.setStatus(ctx, coord.StatusWaiting, "", coord.KeepDetail)
	}
}

// handleQuery answers a question from another agent using the role's system
// prompt. On reasoning failure no response is sent; the asker times out and
// the failure lands in this agent's last_error field.
func (e *Engine) handleQuery(ctx context.Context, msg *coord.Message) {
	var query coord.QueryPayload
	if err := msg.DecodePayload(&query); err != nil {
		log.Printf("[ERROR] Bad query payload from %s: %v", msg.From, err)
		return
	}

	log.Printf("[INFO] Received query from %s", msg.From)
	e.setStatus(ctx, coord.StatusRunning, "Answering query", coord.KeepDetail)

	answer, err := e.toolkit.Ask(ctx, e.role.SystemPrompt(), query.Question, e.role.Tools())
	if err != nil {
		log.Printf("[ERROR] Failed to answer query from %s: %v", msg.From, err)
		e.setStatus(ctx, coord.StatusWaiting, "", err.Error())
		return
	}

	reply, err := coord.NewMessage(e.cfg.AgentID, msg.From, coord.KindResponse,
		&coord.ResponsePayload{Question: query.Question, Answer: answer})
	if err != nil {
		log.Printf("[ERROR] Failed to build response: %v", err)
	} else if _, err := e.client.Send(ctx, reply); err != nil {
		log.Printf("[ERROR] Failed to send response to %s: %v", msg.From, err)
	}

	e.setStatus(ctx, coord.StatusWaiting, "", coord.KeepDetail)
}

// heartbeatLoop refreshes the agent's heartbeat until the context ends.
// A rejected heartbeat means the supervisor already moved the agent to a
// terminal status or deregistered it, so the engine stops.
func (e *Engine) heartbeatLoop(ctx context.Context, cancel context.CancelFunc) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			err := e.client.Heartbeat(ctx, e.cfg.AgentID)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if coord.IsInvalidTransition(err) || coord.IsNotFound(err) {
				log.Printf("[WARN] Heartbeat rejected, stopping: %v", err)
				cancel()
				return
			}
			log.Printf("[WARN] Heartbeat failed: %v", err)
		}
	}
}

// sendResult delivers a task result to the given agent.
func (e *Engine) sendResult(ctx context.Context, to string, result *coord.ResultPayload) {
	msg, err := coord.NewMessage(e.cfg.AgentID, to, coord.KindResult, result)
	if err != nil {
		log.Printf("[ERROR] Failed to build result message: %v", err)
		return
	}
	if _, err := e.client.Send(ctx, msg); err != nil {
		log.Printf("[ERROR] Failed to send result to %s: %v", to, err)
	}
}

// storeResult keeps the agent's latest result in shared state under
// result:{agent-id} so it can be inspected after the fact.
func (e *Engine) storeResult(ctx context.Context, result *coord.ResultPayload) {
	data, err := json.Marshal(result)
	if err != nil {
		log.Printf("[WARN] Failed to serialize result for state store: %v", err)
		return
	}
	if _, err := e.client.SetState(ctx, "result:"+e.cfg.AgentID, string(data)); err != nil {
		log.Printf("[WARN] Failed to store result in shared state: %v", err)
	}
}

// setStatus updates this agent's status, logging failures instead of
// propagating them.
func (e *Engine) setStatus(ctx context.Context, status coord.AgentStatus, currentTask, lastError string) {
	if err := e.client.UpdateStatusDetail(ctx, e.cfg.AgentID, status, currentTask, lastError); err != nil {
		log.Printf("[WARN] Failed to update status to %s: %v", status, err)
	}
}

// releaseHeldLocks sweeps any locks the agent still holds on the way out.
func (e *Engine) releaseHeldLocks() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	released, err := e.client.ReleaseAllLocks(ctx, e.cfg.AgentID)
	if err != nil {
		log.Printf("[WARN] Failed to release held locks: %v", err)
		return
	}
	if released > 0 {
		log.Printf("[INFO] Released %d held locks", released)
	}
}
