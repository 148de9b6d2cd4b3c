package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/mugen-ai/mugen/pkg/coord"
)

const plannerSystemPrompt = `You are an Expert System Architect and Implementation Planner.

Your role is to create detailed, actionable implementation plans based on problem descriptions and context provided by the Explorer agent.

Your capabilities:
1. Analyze complex problems and break them into manageable tasks
2. Ask the Explorer agent for specific information you need
3. Identify dependencies and execution order
4. Determine which specialized agents are needed (e.g., Java agent, Python agent, Frontend agent)
5. Create detailed implementation steps with file-level granularity
6. Assess complexity, risk, and resource requirements
7. Define acceptance criteria for each task

When creating plans:
- Be specific about files, functions, and components to modify
- Break tasks into atomic, independent units where possible
- Identify parallel work opportunities
- Highlight potential risks and mitigation strategies
- Specify which specialized agent type should handle each task
- Include testing and validation steps

Always output structured plans in a clear, hierarchical format that can be executed by other agents.`

const (
	// plannerMaxQuestions bounds how many questions the planner asks the
	// explorer per planning task
	plannerMaxQuestions = 5

	// plannerQueryTimeout bounds how long the planner waits for each
	// explorer answer
	plannerQueryTimeout = 30 * time.Second
)

// knownAgentTypes are the specialized agent type names the planner scans
// plans for.
var knownAgentTypes = []string{
	"java-agent", "python-agent", "javascript-agent", "typescript-agent",
	"react-agent", "vue-agent", "angular-agent",
	"rust-agent", "go-agent", "cpp-agent",
	"sql-agent", "frontend-agent", "backend-agent", "api-agent",
	"test-agent", "devops-agent",
}

// PlanSpec is the role-specific payload of a planning task.
type PlanSpec struct {
	Problem    string `json:"problem"`               // What needs to be built
	Context    string `json:"context,omitempty"`     // Prior findings, usually the exploration result
	ExplorerID string `json:"explorer_id,omitempty"` // Explorer to query for missing information
}

// PlannedTask is one entry of the structured task breakdown a plan produces.
type PlannedTask struct {
	TaskID             string   `json:"task_id"`
	Description        string   `json:"description"`
	Dependencies       []string `json:"dependencies,omitempty"`
	Files              []string `json:"files,omitempty"`
	AgentType          string   `json:"agent_type,omitempty"`
	Complexity         string   `json:"complexity,omitempty"`
	EstimatedEffort    string   `json:"estimated_effort,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
}

// ExplorerFinding pairs a question sent to the explorer with its answer.
type ExplorerFinding struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// PlanResult is the structured data a planning task produces.
type PlanResult struct {
	Problem            string            `json:"problem"`
	Analysis           string            `json:"analysis"`
	ExplorerFindings   []ExplorerFinding `json:"explorer_findings,omitempty"`
	Plan               string            `json:"plan"`
	Tasks              []PlannedTask     `json:"tasks,omitempty"`
	RequiredAgentTypes []string          `json:"required_agent_types,omitempty"`
}

// PlannerRole turns a problem statement into a structured task breakdown.
// It reasons in three phases: analyze the problem, query the explorer for
// missing information, then produce the plan.
type PlannerRole struct{}

func (r *PlannerRole) Name() string         { return coord.RolePlanner }
func (r *PlannerRole) SystemPrompt() string { return plannerSystemPrompt }
func (r *PlannerRole) Tools() []string      { return []string{"Read", "Glob", "Grep"} }

func (r *PlannerRole) Execute(ctx context.Context, task *coord.TaskPayload, tk *Toolkit) (*coord.ResultPayload, error) {
	var spec PlanSpec
	if len(task.Spec) > 0 {
		if err := json.Unmarshal(task.Spec, &spec); err != nil {
			return nil, fmt.Errorf("invalid plan spec: %w", err)
		}
	}
	if spec.Problem == "" {
		spec.Problem = task.Description
	}
	if spec.Problem == "" {
		return nil, fmt.Errorf("planning task has no problem statement")
	}

	// Phase 1: analyze the problem and identify information needs
	analysisPrompt := fmt.Sprintf(`I need to create an implementation plan for the following problem:

%s

Initial context:
%s

First, analyze this problem and:
1. Identify what additional information you need to create a complete plan
2. List specific questions to ask the Explorer agent
3. Outline the high-level approach

Format your response as:
INFORMATION NEEDS:
[List of specific questions for the Explorer]

HIGH-LEVEL APPROACH:
[Brief outline of the approach]
`, spec.Problem, spec.Context)

	analysis, err := tk.Ask(ctx, r.SystemPrompt(), analysisPrompt, r.Tools())
	if err != nil {
		return nil, fmt.Errorf("analysis reasoning failed: %w", err)
	}

	// Phase 2: query the explorer for missing information
	var findings []ExplorerFinding
	if spec.ExplorerID != "" && strings.Contains(analysis, "INFORMATION NEEDS:") {
		questions := extractQuestions(analysis)
		if len(questions) > plannerMaxQuestions {
			questions = questions[:plannerMaxQuestions]
		}
		log.Printf("[INFO] Asking explorer %s %d questions", spec.ExplorerID, len(questions))

		for _, question := range questions {
			answer, err := askExplorer(ctx, tk, spec.ExplorerID, question)
			if err != nil {
				log.Printf("[WARN] Explorer query failed: %v", err)
				continue
			}
			findings = append(findings, ExplorerFinding{Question: question, Answer: answer})
		}
	}

	findingsText := "No additional information gathered"
	if len(findings) > 0 {
		rendered, err := json.MarshalIndent(findings, "", "  ")
		if err == nil {
			findingsText = string(rendered)
		}
	}

	// Phase 3: create the detailed plan
	planPrompt := fmt.Sprintf(`Based on the problem and gathered information, create a detailed implementation plan.

PROBLEM:
%s

INITIAL ANALYSIS:
%s

EXPLORER FINDINGS:
%s

Create a comprehensive implementation plan with the following structure:

1. OVERVIEW
   - Objectives
   - Success criteria

2. REQUIRED AGENT TYPES
   - List any specialized agent types needed (e.g., "java-agent", "react-agent")
   - For each, describe its purpose and required capabilities

3. TASK BREAKDOWN
   For each task, provide:
   - task_id: Unique identifier (e.g., "T001")
   - description: What needs to be done
   - dependencies: List of task IDs that must complete first (e.g., ["T001", "T002"])
   - files: List of files to create/modify
   - agent_type: Which agent type should handle this (e.g., "executor", "java-agent")
   - complexity: low/medium/high
   - estimated_effort: small/medium/large
   - acceptance_criteria: How to verify completion

4. RISKS AND MITIGATIONS
   - Identify potential risks
   - Suggest mitigation strategies

5. VALIDATION STRATEGY
   - Testing approach
   - Integration verification

Format the task breakdown as a JSON array for easy parsing by the orchestrator.
`, spec.Problem, analysis, findingsText)

	plan, err := tk.Ask(ctx, r.SystemPrompt(), planPrompt, r.Tools())
	if err != nil {
		return nil, fmt.Errorf("plan reasoning failed: %w", err)
	}

	tasks, err := extractTasks(plan)
	if err != nil {
		log.Printf("[WARN] Could not extract structured tasks: %v", err)
	}

	data, err := json.Marshal(&PlanResult{
		Problem:            spec.Problem,
		Analysis:           analysis,
		ExplorerFindings:   findings,
		Plan:               plan,
		Tasks:              tasks,
		RequiredAgentTypes: extractRequiredAgentTypes(plan),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize plan result: %w", err)
	}

	return &coord.ResultPayload{
		Summary: fmt.Sprintf("planned %d tasks", len(tasks)),
		Data:    data,
	}, nil
}

// askExplorer sends one query to the explorer and waits for its response.
func askExplorer(ctx context.Context, tk *Toolkit, explorerID, question string) (string, error) {
	msg, err := coord.NewMessage(tk.AgentID, explorerID, coord.KindQuery, &coord.QueryPayload{Question: question})
	if err != nil {
		return "", err
	}
	if _, err := tk.Coord.Send(ctx, msg); err != nil {
		return "", fmt.Errorf("could not reach explorer %s: %w", explorerID, err)
	}

	reply, err := tk.WaitForResponse(ctx, explorerID, plannerQueryTimeout)
	if err != nil {
		return "", err
	}

	var resp coord.ResponsePayload
	if err := reply.DecodePayload(&resp); err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// extractQuestions pulls the bulleted questions out of the INFORMATION
// NEEDS section of an analysis. The section ends at the next heading line.
func extractQuestions(analysis string) []string {
	var questions []string
	inSection := false

	for _, line := range strings.Split(analysis, "\n") {
		if strings.Contains(line, "INFORMATION NEEDS:") {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "•") {
			question := strings.TrimSpace(strings.TrimLeft(trimmed, "-•"))
			if question != "" {
				questions = append(questions, question)
			}
		} else if trimmed != "" && unicode.IsUpper(rune(trimmed[0])) && strings.Contains(trimmed, ":") {
			break
		}
	}

	return questions
}

// extractTasks finds the JSON task array embedded in a plan. It takes the
// span from the first '[' to the last ']' and unmarshals it.
func extractTasks(plan string) ([]PlannedTask, error) {
	start := strings.Index(plan, "[")
	end := strings.LastIndex(plan, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in plan")
	}

	var tasks []PlannedTask
	if err := json.Unmarshal([]byte(plan[start:end+1]), &tasks); err != nil {
		return nil, fmt.Errorf("task array does not parse: %w", err)
	}
	return tasks, nil
}

// extractRequiredAgentTypes scans a plan for mentions of specialized agent
// types.
func extractRequiredAgentTypes(plan string) []string {
	lower := strings.ToLower(plan)

	var required []string
	for _, agentType := range knownAgentTypes {
		if strings.Contains(lower, agentType) {
			required = append(required, agentType)
		}
	}
	return required
}
