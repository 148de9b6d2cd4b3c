package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mugen-ai/mugen/pkg/coord"
)

const executorSystemPrompt = `You are an Expert Software Developer and Implementation Agent.

Your role is to execute implementation tasks by writing, modifying, and testing code according to specifications provided in the task.

Your capabilities:
1. Write clean, maintainable, well-documented code
2. Modify existing files while preserving compatibility
3. Create new files with proper structure
4. Follow existing code patterns and conventions
5. Implement proper error handling and edge cases
6. Write tests to validate implementations
7. Coordinate with other executors to avoid conflicts

When implementing:
- Read existing code to understand patterns and conventions
- Use file locking when modifying files to prevent conflicts
- Write clear, self-documenting code
- Include error handling and edge cases
- Follow the language's best practices
- Add appropriate comments for complex logic
- Verify your implementation meets acceptance criteria

Always respond with:
1. Summary of what was implemented
2. Files created/modified
3. Key decisions made
4. Any issues or concerns
5. Validation results

If you encounter a file that's locked by another agent, wait and retry or report the conflict.`

// fileContextLimit bounds how much of each existing file is quoted in the
// implementation prompt.
const fileContextLimit = 2000

// ImplementSpec is the role-specific payload of an implementation task.
type ImplementSpec struct {
	Description        string   `json:"description"`
	Files              []string `json:"files,omitempty"`               // Files the task expects to touch
	Specifications     string   `json:"specifications,omitempty"`      // Detailed requirements
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"` // How to verify completion
	WorkingDirectory   string   `json:"working_directory,omitempty"`   // Overrides the agent's working directory
}

// ExecutionResult is the structured data an implementation task produces.
type ExecutionResult struct {
	TaskID         string   `json:"task_id"`
	Description    string   `json:"description"`
	Implementation string   `json:"implementation"` // Full model response
	WrittenFiles   []string `json:"written_files,omitempty"`
	Errors         []string `json:"errors,omitempty"`
	Validation     string   `json:"validation,omitempty"`
}

// ExecutorRole implements planned tasks: it asks the model for complete file
// contents and writes them out under cross-agent file locks.
type ExecutorRole struct{}

func (r *ExecutorRole) Name() string         { return coord.RoleExecutor }
func (r *ExecutorRole) SystemPrompt() string { return executorSystemPrompt }
func (r *ExecutorRole) Tools() []string      { return []string{"Read", "Write", "Edit", "Bash"} }

func (r *ExecutorRole) Execute(ctx context.Context, task *coord.TaskPayload, tk *Toolkit) (*coord.ResultPayload, error) {
	spec, err := decodeImplementSpec(task)
	if err != nil {
		return nil, err
	}
	return runImplementation(ctx, task.TaskID, spec, r, tk)
}

// decodeImplementSpec parses the implementation details out of a task,
// falling back to the task description when the spec carries none.
func decodeImplementSpec(task *coord.TaskPayload) (*ImplementSpec, error) {
	var spec ImplementSpec
	if len(task.Spec) > 0 {
		if err := json.Unmarshal(task.Spec, &spec); err != nil {
			return nil, fmt.Errorf("invalid implement spec: %w", err)
		}
	}
	if spec.Description == "" {
		spec.Description = task.Description
	}
	if spec.Description == "" {
		return nil, fmt.Errorf("implementation task has no description")
	}
	if spec.Specifications == "" {
		spec.Specifications = spec.Description
	}
	return &spec, nil
}

// runImplementation drives one implementation task with the given role's
// prompt and tools. Shared between the executor and custom roles.
func runImplementation(ctx context.Context, taskID string, spec *ImplementSpec, role Role, tk *Toolkit) (*coord.ResultPayload, error) {
	if spec.WorkingDirectory != "" {
		scoped := *tk
		scoped.WorkingDir = spec.WorkingDirectory
		tk = &scoped
	}

	// Quote existing file contents so the model preserves conventions
	var contextParts []string
	for _, file := range spec.Files {
		contextParts = append(contextParts,
			fmt.Sprintf("=== %s ===\n%s", file, readFileContext(tk.WorkingDir, file)))
	}

	var criteria []string
	for _, c := range spec.AcceptanceCriteria {
		criteria = append(criteria, "- "+c)
	}

	prompt := fmt.Sprintf(`I need to implement the following task:

TASK ID: %s
DESCRIPTION: %s

SPECIFICATIONS:
%s

ACCEPTANCE CRITERIA:
%s

EXISTING FILES:
%s

WORKING DIRECTORY: %s

Please provide:
1. Complete implementation for each file
2. Explanation of key decisions
3. How each acceptance criterion is met
4. Any potential issues or limitations

Format each file implementation as:
`+"```"+`filename: path/to/file.ext
[complete file content]
`+"```"+`

After all implementations, provide a summary.
`, taskID, spec.Description, spec.Specifications,
		strings.Join(criteria, "\n"), strings.Join(contextParts, "\n\n"), tk.WorkingDir)

	implementation, err := tk.Ask(ctx, role.SystemPrompt(), prompt, role.Tools())
	if err != nil {
		return nil, fmt.Errorf("implementation reasoning failed: %w", err)
	}

	impls := extractFileImplementations(implementation)

	var written []string
	var writeErrors []string
	for _, impl := range impls {
		if err := tk.WriteFileLocked(ctx, impl.Path, []byte(impl.Content)); err != nil {
			// A lock timeout means another agent is editing the same
			// file; the task carries on with the rest
			if coord.IsLockTimeout(err) {
				log.Printf("[WARN] Skipping %s, locked by another agent: %v", impl.Path, err)
			} else {
				log.Printf("[WARN] %v", err)
			}
			writeErrors = append(writeErrors, err.Error())
			continue
		}
		log.Printf("[INFO] Wrote file: %s", impl.Path)
		written = append(written, impl.Path)
	}

	// Ask the model to check its own work against the criteria
	validation := ""
	if len(spec.AcceptanceCriteria) > 0 && len(written) > 0 {
		validationPrompt := fmt.Sprintf(`The implementation below is complete. Verify if it meets these acceptance criteria:

%s

IMPLEMENTATION:
%s

For each criterion, state whether it's met and why.
`, strings.Join(criteria, "\n"), implementation)

		validation, err = tk.Ask(ctx, role.SystemPrompt(), validationPrompt, role.Tools())
		if err != nil {
			log.Printf("[WARN] Validation reasoning failed: %v", err)
			validation = ""
		}
	}

	data, err := json.Marshal(&ExecutionResult{
		TaskID:         taskID,
		Description:    spec.Description,
		Implementation: implementation,
		WrittenFiles:   written,
		Errors:         writeErrors,
		Validation:     validation,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize execution result: %w", err)
	}

	result := &coord.ResultPayload{
		Summary: fmt.Sprintf("wrote %d files", len(written)),
		Data:    data,
	}

	if len(impls) == 0 {
		return result, fmt.Errorf("no file implementations found in response")
	}
	if len(writeErrors) > 0 {
		return result, fmt.Errorf("wrote %d of %d files: %s",
			len(written), len(impls), strings.Join(writeErrors, "; "))
	}
	return result, nil
}

// readFileContext returns up to fileContextLimit characters of an existing
// file, or a marker for new/unreadable files.
func readFileContext(workingDir, file string) string {
	fullPath := file
	if !filepath.IsAbs(file) {
		fullPath = filepath.Join(workingDir, file)
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "[New file]"
		}
		return fmt.Sprintf("[Could not read: %v]", err)
	}

	if len(content) > fileContextLimit {
		return string(content[:fileContextLimit]) + "..."
	}
	return string(content)
}

// FileImplementation is one file parsed out of a model response.
type FileImplementation struct {
	Path    string
	Content string
}

// extractFileImplementations parses fenced code blocks of the form
//
//	```filename: path/to/file.ext
//	content
//	```
//
// out of a model response. A repeated path keeps the last block's content.
func extractFileImplementations(implementation string) []FileImplementation {
	var impls []FileImplementation
	index := make(map[string]int)

	currentFile := ""
	var currentContent []string

	flush := func() {
		if currentFile == "" || len(currentContent) == 0 {
			return
		}
		content := strings.Join(currentContent, "\n")
		if i, ok := index[currentFile]; ok {
			impls[i].Content = content
		} else {
			index[currentFile] = len(impls)
			impls = append(impls, FileImplementation{Path: currentFile, Content: content})
		}
	}

	for _, line := range strings.Split(implementation, "\n") {
		lower := strings.ToLower(line)

		switch {
		case strings.HasPrefix(line, "```") && strings.Contains(lower, "filename:"):
			flush()
			currentContent = nil

			marker := strings.Index(lower, "filename:")
			path := line[marker+len("filename:"):]
			currentFile = strings.TrimSpace(strings.Trim(strings.TrimSpace(path), "`"))

		case strings.HasPrefix(line, "```") && currentFile != "":
			flush()
			currentFile = ""
			currentContent = nil

		case currentFile != "":
			currentContent = append(currentContent, line)
		}
	}
	flush()

	return impls
}
