package agent

import (
	"context"
	"fmt"

	"github.com/mugen-ai/mugen/pkg/coord"
)

// Role defines the behavior of one agent type. Built-in roles (explorer,
// planner, executor) are compiled in; custom roles are defined in mugen.yml
// and passed to the agent through the environment.
type Role interface {
	// Name is the role identifier, e.g. "explorer".
	Name() string

	// SystemPrompt is the system prompt used for this role's reasoning calls.
	SystemPrompt() string

	// Tools lists the tool names this role may use when reasoning.
	Tools() []string

	// Execute processes one task and returns its result. The engine fills in
	// TaskID, Success and Error; the role fills Summary and Data. A non-nil
	// error marks the task failed; the returned payload is still delivered
	// so partial results survive.
	Execute(ctx context.Context, task *coord.TaskPayload, tk *Toolkit) (*coord.ResultPayload, error)
}

// ResolveRole maps the configured role name to an implementation. Unknown
// names build a custom role from the MUGEN_ROLE_* fields; those require a
// system prompt.
func ResolveRole(cfg *Config) (Role, error) {
	switch cfg.Role {
	case coord.RoleExplorer:
		return &ExplorerRole{}, nil
	case coord.RolePlanner:
		return &PlannerRole{}, nil
	case coord.RoleExecutor:
		return &ExecutorRole{}, nil
	}

	if cfg.RoleSystemPrompt == "" {
		return nil, fmt.Errorf("custom role %q requires MUGEN_ROLE_SYSTEM_PROMPT", cfg.Role)
	}

	return &CustomRole{
		RoleName:    cfg.Role,
		Description: cfg.RoleDescription,
		Prompt:      cfg.RoleSystemPrompt,
		ToolList:    cfg.RoleTools,
	}, nil
}

// CustomRole is a role defined in mugen.yml rather than compiled in. It
// behaves like an executor with its own system prompt and tool list, so
// specialized roles (say, a java-agent) can implement tasks in their domain.
type CustomRole struct {
	RoleName    string
	Description string
	Prompt      string
	ToolList    []string
}

func (r *CustomRole) Name() string         { return r.RoleName }
func (r *CustomRole) SystemPrompt() string { return r.Prompt }

func (r *CustomRole) Tools() []string {
	if len(r.ToolList) > 0 {
		return r.ToolList
	}
	return []string{"Read", "Write", "Edit", "Bash"}
}

func (r *CustomRole) Execute(ctx context.Context, task *coord.TaskPayload, tk *Toolkit) (*coord.ResultPayload, error) {
	spec, err := decodeImplementSpec(task)
	if err != nil {
		return nil, err
	}
	return runImplementation(ctx, task.TaskID, spec, r, tk)
}
