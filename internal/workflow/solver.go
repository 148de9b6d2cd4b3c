// Package workflow drives problems through the three-phase solve: an
// explorer gathers codebase context, a planner turns the problem and
// context into a task breakdown, and a pool of executors implements the
// tasks. The solver owns the agents it spawns and shuts them down when
// the solve ends, however it ends.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mugen-ai/mugen/internal/agent"
	"github.com/mugen-ai/mugen/internal/config"
	"github.com/mugen-ai/mugen/internal/git"
	"github.com/mugen-ai/mugen/internal/printer"
	"github.com/mugen-ai/mugen/internal/supervisor"
	"github.com/mugen-ai/mugen/pkg/coord"
)

// AgentManager is the slice of the supervisor the solver drives agents
// through. *supervisor.Supervisor implements it.
type AgentManager interface {
	ID() string
	Spawn(ctx context.Context, role string) (string, error)
	Shutdown(ctx context.Context, agentID, reason string, timeout time.Duration) error
}

// Options tune a solve run. Zero values pick the defaults.
type Options struct {
	// MaxExecutors caps how many executor agents the execution phase
	// spawns. Defaults to 3.
	MaxExecutors int

	// ExploreTimeout bounds the wait for the exploration result.
	// Defaults to 60s.
	ExploreTimeout time.Duration

	// PlanTimeout bounds the wait for the planning result. Defaults
	// to 120s.
	PlanTimeout time.Duration

	// TaskTimeout bounds the wait for each execution result. Defaults
	// to 180s.
	TaskTimeout time.Duration

	// ShutdownTimeout is the grace period given to each agent when the
	// solve winds down. Defaults to 5s.
	ShutdownTimeout time.Duration

	// Force runs the execution phase even when the workspace has
	// uncommitted changes.
	Force bool
}

// TaskOutcome is the fate of one planned task.
type TaskOutcome struct {
	TaskID  string
	AgentID string
	Success bool
	Summary string
	Error   string
}

// Summary reports what one solve run did.
type Summary struct {
	Problem     string
	ExplorerID  string
	PlannerID   string
	ExecutorIDs []string
	Exploration *agent.ExploreResult
	Plan        *agent.PlanResult
	Outcomes    []TaskOutcome
	Succeeded   int
}

// Solver runs the explore/plan/execute workflow on top of a started
// supervisor. Results come back on the supervisor's own message queue,
// so one solve runs at a time per supervisor.
type Solver struct {
	manager    AgentManager
	client     *coord.Client
	workingDir string
	opts       Options
}

// New creates a solver that spawns agents through manager and works in
// workingDir.
func New(manager AgentManager, client *coord.Client, workingDir string, opts Options) *Solver {
	if opts.MaxExecutors <= 0 {
		opts.MaxExecutors = 3
	}
	if opts.ExploreTimeout <= 0 {
		opts.ExploreTimeout = 60 * time.Second
	}
	if opts.PlanTimeout <= 0 {
		opts.PlanTimeout = 120 * time.Second
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 180 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if workingDir == "" {
		workingDir = "."
	}
	return &Solver{
		manager:    manager,
		client:     client,
		workingDir: workingDir,
		opts:       opts,
	}
}

// Solve runs one problem through all three phases and returns what
// happened. Exploration or planning failures abort the solve; execution
// failures do not, they land in the summary's task outcomes. Agents
// spawned by the solve are shut down before Solve returns.
func (s *Solver) Solve(ctx context.Context, problem string) (*Summary, error) {
	if strings.TrimSpace(problem) == "" {
		return nil, fmt.Errorf("problem statement cannot be empty")
	}
	if s.manager.ID() == "" {
		return nil, fmt.Errorf("supervisor is not started")
	}

	printer.Println()
	printer.Printf("Problem: %s\n", problem)

	summary := &Summary{Problem: problem}
	defer func() {
		var ids []string
		if summary.ExplorerID != "" {
			ids = append(ids, summary.ExplorerID)
		}
		if summary.PlannerID != "" {
			ids = append(ids, summary.PlannerID)
		}
		ids = append(ids, summary.ExecutorIDs...)
		s.shutdownAgents(ids)
	}()

	// The planner queries the explorer while planning, so both come up
	// before the first phase starts.
	explorerID, err := s.manager.Spawn(ctx, coord.RoleExplorer)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn explorer: %w", err)
	}
	summary.ExplorerID = explorerID
	printer.Success("Spawned explorer agent: %s\n", explorerID)

	plannerID, err := s.manager.Spawn(ctx, coord.RolePlanner)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn planner: %w", err)
	}
	summary.PlannerID = plannerID
	printer.Success("Spawned planner agent: %s\n", plannerID)

	printer.Println()
	printer.Step("Phase 1: Exploration\n")
	summary.Exploration, err = s.explore(ctx, explorerID, problem)
	if err != nil {
		printer.Failure("Exploration failed\n")
		return nil, err
	}
	printer.Success("Exploration complete\n")

	printer.Println()
	printer.Step("Phase 2: Planning\n")
	summary.Plan, err = s.plan(ctx, plannerID, explorerID, problem, summary.Exploration)
	if err != nil {
		printer.Failure("Planning failed\n")
		return nil, err
	}
	printer.Success("Planning complete: %d structured tasks\n", len(summary.Plan.Tasks))

	printer.Println()
	printer.Println("Implementation Plan:")
	printer.Println(summary.Plan.Plan)

	if len(summary.Plan.RequiredAgentTypes) > 0 {
		printer.Warning("Plan calls for specialized agents: %s\n",
			strings.Join(summary.Plan.RequiredAgentTypes, ", "))
		printer.Warning("Define them under roles in %s to use them; generic executors handle their tasks otherwise.\n",
			config.DefaultFileName)
	}

	// Keep the plan inspectable in shared state while execution runs.
	if _, err := s.client.SetState(ctx, "plan", summary.Plan.Plan); err != nil {
		log.Printf("[WARN] Failed to store plan in shared state: %v", err)
	}

	if len(summary.Plan.Tasks) == 0 {
		printer.Warning("Plan has no structured task breakdown, skipping execution.\n")
		s.printSummary(summary)
		return summary, nil
	}

	if err := s.checkWorkspace(); err != nil {
		return nil, err
	}

	printer.Println()
	printer.Step("Phase 3: Execution\n")
	if err := s.execute(ctx, summary, summary.Plan.Tasks); err != nil {
		return nil, err
	}

	s.printSummary(summary)
	return summary, nil
}

// explore sends the exploration task and collects its result.
func (s *Solver) explore(ctx context.Context, explorerID, problem string) (*agent.ExploreResult, error) {
	spec := &agent.ExploreSpec{
		Target:   s.workingDir,
		Question: "Explore the codebase to gather context for: " + problem,
	}
	if err := s.sendTask(ctx, explorerID, "", spec.Question, spec); err != nil {
		return nil, err
	}
	printer.Step("Sent exploration task to %s\n", explorerID)

	result, err := s.awaitResult(ctx, explorerID, s.opts.ExploreTimeout)
	if err != nil {
		return nil, fmt.Errorf("exploration failed: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("exploration failed: %s", result.Error)
	}

	var exploration agent.ExploreResult
	if len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, &exploration); err != nil {
			return nil, fmt.Errorf("exploration result does not parse: %w", err)
		}
	}
	return &exploration, nil
}

// plan sends the planning task, carrying the exploration result as
// context and the explorer's ID so the planner can ask follow-ups.
func (s *Solver) plan(ctx context.Context, plannerID, explorerID, problem string, exploration *agent.ExploreResult) (*agent.PlanResult, error) {
	explorationJSON, err := json.Marshal(exploration)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize exploration context: %w", err)
	}
	spec := &agent.PlanSpec{
		Problem:    problem,
		Context:    string(explorationJSON),
		ExplorerID: explorerID,
	}
	if err := s.sendTask(ctx, plannerID, "", problem, spec); err != nil {
		return nil, err
	}
	printer.Step("Sent planning task to %s\n", plannerID)

	result, err := s.awaitResult(ctx, plannerID, s.opts.PlanTimeout)
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("planning failed: %s", result.Error)
	}

	var plan agent.PlanResult
	if len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, &plan); err != nil {
			return nil, fmt.Errorf("plan result does not parse: %w", err)
		}
	}
	return &plan, nil
}

// execute spawns the executor pool, distributes every task round-robin
// and collects results until all tasks are settled or the wait times
// out. Executor IDs and task outcomes land in sum.
func (s *Solver) execute(ctx context.Context, sum *Summary, tasks []agent.PlannedTask) error {
	executorCount := s.opts.MaxExecutors
	if executorCount > len(tasks) {
		executorCount = len(tasks)
	}

	for i := 0; i < executorCount; i++ {
		id, err := s.manager.Spawn(ctx, coord.RoleExecutor)
		if err != nil {
			if errors.Is(err, supervisor.ErrCapReached) && len(sum.ExecutorIDs) > 0 {
				printer.Warning("Agent cap reached, continuing with %d executors\n", len(sum.ExecutorIDs))
				break
			}
			return fmt.Errorf("failed to spawn executor: %w", err)
		}
		sum.ExecutorIDs = append(sum.ExecutorIDs, id)
		printer.Success("Spawned executor agent: %s\n", id)
	}

	outcomes := make([]TaskOutcome, len(tasks))
	indexByID := make(map[string]int, len(tasks))
	pendingByAgent := make(map[string][]string)
	for i, task := range tasks {
		taskID := task.TaskID
		if taskID == "" {
			taskID = fmt.Sprintf("T%d", i+1)
		}
		agentID := sum.ExecutorIDs[i%len(sum.ExecutorIDs)]
		outcomes[i] = TaskOutcome{TaskID: taskID, AgentID: agentID}
		indexByID[taskID] = i
		pendingByAgent[agentID] = append(pendingByAgent[agentID], taskID)

		spec := &agent.ImplementSpec{
			Description:        task.Description,
			Files:              task.Files,
			Specifications:     task.Description,
			AcceptanceCriteria: task.AcceptanceCriteria,
			WorkingDirectory:   s.workingDir,
		}
		if err := s.sendTask(ctx, agentID, taskID, task.Description, spec); err != nil {
			return err
		}
		printer.Printf("  Assigned %s to %s\n", taskID, agentID)
	}

	printer.Printf("Waiting for %d tasks to complete...\n", len(tasks))

	settled := make([]bool, len(tasks))
	executorSet := make(map[string]bool, len(sum.ExecutorIDs))
	for _, id := range sum.ExecutorIDs {
		executorSet[id] = true
	}

	pending := len(tasks)
	for pending > 0 {
		event, err := s.awaitEvent(ctx, executorSet, s.opts.TaskTimeout)
		if err != nil {
			if errors.Is(err, errAwaitTimeout) {
				break
			}
			return err
		}

		if event.result == nil {
			// The executor died. Every task still assigned to it is lost.
			for _, taskID := range pendingByAgent[event.from] {
				i := indexByID[taskID]
				if settled[i] {
					continue
				}
				settled[i] = true
				pending--
				outcomes[i].Error = fmt.Sprintf("executor %s failed: %s", event.from, event.failure)
				printer.Failure("Task %s failed: %s\n", taskID, outcomes[i].Error)
			}
			delete(pendingByAgent, event.from)
			delete(executorSet, event.from)
			if len(executorSet) == 0 {
				break
			}
			continue
		}

		result := event.result
		i, ok := indexByID[result.TaskID]
		if !ok || settled[i] {
			log.Printf("[WARN] Ignoring result for unexpected task %q from %s", result.TaskID, event.from)
			continue
		}
		settled[i] = true
		pending--
		pendingByAgent[event.from] = removeString(pendingByAgent[event.from], result.TaskID)

		outcomes[i].Success = result.Success
		outcomes[i].Summary = result.Summary
		outcomes[i].Error = result.Error
		if result.Success {
			sum.Succeeded++
			printer.Success("Task %s completed: %s\n", result.TaskID, result.Summary)
		} else {
			printer.Failure("Task %s failed: %s\n", result.TaskID, result.Error)
		}
	}

	for i := range outcomes {
		if !settled[i] {
			outcomes[i].Error = fmt.Sprintf("no result within %s", s.opts.TaskTimeout)
			printer.Failure("Task %s failed: %s\n", outcomes[i].TaskID, outcomes[i].Error)
		}
	}

	sum.Outcomes = outcomes
	return nil
}

// checkWorkspace refuses to run execution over uncommitted changes so
// agent-written code stays separable from the operator's own work.
// Non-repository workspaces pass; Force skips the check entirely.
func (s *Solver) checkWorkspace() error {
	if s.opts.Force {
		return nil
	}
	checker := git.NewChecker(s.workingDir)
	isRepo, err := checker.IsGitRepository()
	if err != nil || !isRepo {
		return nil
	}
	clean, err := checker.IsWorkspaceClean()
	if err != nil || clean {
		return nil
	}
	dirty, err := checker.GetDirtyFiles()
	if err != nil {
		dirty = ""
	}
	return fmt.Errorf("workspace has uncommitted changes\n\n%s\nCommit or stash them first, or re-run with --force", dirty)
}

// errAwaitTimeout marks a result wait that ran out of time.
var errAwaitTimeout = errors.New("timed out waiting for agent results")

// solveEvent is one observation from the solver's queue: a result from a
// watched agent, or notice that one of them reached a terminal status
// (result nil, failure set).
type solveEvent struct {
	from    string
	result  *coord.ResultPayload
	failure string
}

// awaitResult waits for a single agent's result.
func (s *Solver) awaitResult(ctx context.Context, agentID string, timeout time.Duration) (*coord.ResultPayload, error) {
	event, err := s.awaitEvent(ctx, map[string]bool{agentID: true}, timeout)
	if err != nil {
		return nil, err
	}
	if event.result == nil {
		return nil, fmt.Errorf("agent %s failed: %s", agentID, event.failure)
	}
	return event.result, nil
}

// awaitEvent waits for the next result from any of the given senders.
// Failure broadcasts about a watched sender end the wait early so the
// solve does not sit out the full timeout on a dead agent. Anything else
// arriving on the queue is logged and skipped.
func (s *Solver) awaitEvent(ctx context.Context, senders map[string]bool, timeout time.Duration) (*solveEvent, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg, err := s.client.Receive(ctx, s.manager.ID(), time.Second)
		if err != nil {
			if coord.IsNoMessage(err) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to receive results: %w", err)
		}

		switch msg.Kind {
		case coord.KindResult:
			if !senders[msg.From] {
				log.Printf("[WARN] Ignoring result from unexpected agent %s", msg.From)
				continue
			}
			var result coord.ResultPayload
			if err := msg.DecodePayload(&result); err != nil {
				return nil, fmt.Errorf("result from %s does not parse: %w", msg.From, err)
			}
			return &solveEvent{from: msg.From, result: &result}, nil

		case coord.KindStatus:
			var status coord.StatusPayload
			if err := msg.DecodePayload(&status); err != nil {
				log.Printf("[WARN] Bad status broadcast from %s: %v", msg.From, err)
				continue
			}
			if senders[status.AgentID] && status.Status.Terminal() {
				return &solveEvent{from: status.AgentID, failure: status.Detail}, nil
			}
			log.Printf("[DEBUG] Agent %s is now %s", status.AgentID, status.Status)

		default:
			log.Printf("[DEBUG] Ignoring %s message from %s while waiting for results", msg.Kind, msg.From)
		}
	}

	return nil, fmt.Errorf("%w after %s", errAwaitTimeout, timeout)
}

// sendTask wraps a role spec in a task message and queues it for the
// agent.
func (s *Solver) sendTask(ctx context.Context, agentID, taskID, description string, spec any) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to serialize task spec: %w", err)
	}
	msg, err := coord.NewMessage(s.manager.ID(), agentID, coord.KindTask, &coord.TaskPayload{
		TaskID:      taskID,
		Description: description,
		Spec:        data,
	})
	if err != nil {
		return err
	}
	if _, err := s.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send task to %s: %w", agentID, err)
	}
	return nil
}

// shutdownAgents stops every agent this solve spawned. Runs from a
// defer with its own context so cleanup happens even when the solve's
// context is gone.
func (s *Solver) shutdownAgents(ids []string) {
	if len(ids) == 0 {
		return
	}
	budget := time.Duration(len(ids))*s.opts.ShutdownTimeout + 5*time.Second
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	printer.Println()
	printer.Step("Shutting down agents...\n")
	for _, id := range ids {
		if err := s.manager.Shutdown(ctx, id, "workflow finished", s.opts.ShutdownTimeout); err != nil {
			log.Printf("[WARN] Failed to shut down %s: %v", id, err)
		}
	}
}

// printSummary renders the closing report of a solve.
func (s *Solver) printSummary(sum *Summary) {
	printer.Println()
	printer.Println(strings.Repeat("=", 60))
	printer.Success("Workflow complete\n")
	printer.Println("Exploration: ✓")
	printer.Println("Planning: ✓")
	if len(sum.Outcomes) > 0 {
		printer.Printf("Execution: %d/%d tasks succeeded\n", sum.Succeeded, len(sum.Outcomes))
	} else {
		printer.Println("Execution: no structured tasks")
	}
}

// removeString drops the first occurrence of v from s.
func removeString(s []string, v string) []string {
	for i, item := range s {
		if item == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
