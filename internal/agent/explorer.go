package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mugen-ai/mugen/pkg/coord"
)

const explorerSystemPrompt = `You are an Expert Code Explorer Agent.

Your role is to explore codebases, analyze file structures, search for patterns, and gather relevant information to understand problems deeply.

Your capabilities:
1. Analyze directory structures and identify key files
2. Search for code patterns, functions, classes, and implementations
3. Understand existing architectures and design patterns
4. Identify dependencies and relationships between components
5. Extract relevant context about specific features or problems
6. Provide detailed, structured information to help plan implementations

When exploring:
- Be thorough but focused - prioritize relevant information
- Provide file paths and line numbers when referencing code
- Explain relationships between components
- Identify potential challenges or constraints
- Rate your findings by complexity and relevance

Always respond with structured, actionable information that helps other agents make informed decisions.`

const (
	// treeMaxDepth bounds directory tree traversal
	treeMaxDepth = 3

	// treeMaxEntries bounds entries listed per directory
	treeMaxEntries = 50

	// scopeFileLimit bounds how many scope-matching files are reported
	scopeFileLimit = 20

	// statsTopN bounds how many file extensions are reported
	statsTopN = 10
)

// ignoredDirs are directory names skipped during exploration.
var ignoredDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
	".venv":        true,
	"venv":         true,
	".eggs":        true,
	"build":        true,
	"dist":         true,
}

// ExploreSpec is the role-specific payload of an exploration task.
type ExploreSpec struct {
	Target   string `json:"target"`   // Path to explore, defaults to the working directory
	Question string `json:"question"` // What to find out
	Scope    string `json:"scope"`    // Optional name filter narrowing the search
}

// ExploreResult is the structured data an exploration task produces.
type ExploreResult struct {
	Question string `json:"question"`
	Target   string `json:"target"`
	Context  string `json:"context"`  // Gathered directory structure and statistics
	Analysis string `json:"analysis"` // The model's findings
}

// ExplorerRole explores codebases and answers questions about them. It
// gathers the directory structure, scope-matching files and file statistics
// itself, then asks the model to analyze them.
type ExplorerRole struct{}

func (r *ExplorerRole) Name() string         { return coord.RoleExplorer }
func (r *ExplorerRole) SystemPrompt() string { return explorerSystemPrompt }
func (r *ExplorerRole) Tools() []string      { return []string{"Read", "Glob", "Grep"} }

func (r *ExplorerRole) Execute(ctx context.Context, task *coord.TaskPayload, tk *Toolkit) (*coord.ResultPayload, error) {
	var spec ExploreSpec
	if len(task.Spec) > 0 {
		if err := json.Unmarshal(task.Spec, &spec); err != nil {
			return nil, fmt.Errorf("invalid explore spec: %w", err)
		}
	}
	if spec.Target == "" {
		spec.Target = "."
	}
	if !filepath.IsAbs(spec.Target) {
		spec.Target = filepath.Join(tk.WorkingDir, spec.Target)
	}
	if spec.Question == "" {
		spec.Question = task.Description
	}
	if spec.Question == "" {
		spec.Question = "Explore the codebase structure"
	}

	gathered := gatherContext(spec.Target, spec.Scope)

	scopeLine := spec.Scope
	if scopeLine == "" {
		scopeLine = "Full codebase"
	}
	prompt := fmt.Sprintf(`I need to explore a codebase to answer this question:
%s

Target path: %s
Scope: %s

Here's what I found in the codebase:

%s

Please analyze this information and provide:
1. A summary of relevant findings
2. Key files and their purposes
3. Important patterns or architectural decisions
4. Potential challenges or constraints
5. Recommendations for the planner

Rate each finding by:
- Complexity (low/medium/high)
- Relevance (low/medium/high)
- Implementation cost (low/medium/high)
`, spec.Question, spec.Target, scopeLine, gathered)

	analysis, err := tk.Ask(ctx, r.SystemPrompt(), prompt, r.Tools())
	if err != nil {
		return nil, fmt.Errorf("exploration reasoning failed: %w", err)
	}

	data, err := json.Marshal(&ExploreResult{
		Question: spec.Question,
		Target:   spec.Target,
		Context:  gathered,
		Analysis: analysis,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize exploration result: %w", err)
	}

	return &coord.ResultPayload{
		Summary: fmt.Sprintf("explored %s", spec.Target),
		Data:    data,
	}, nil
}

// gatherContext assembles what the explorer found: the directory tree,
// scope-matching files and file-type statistics.
func gatherContext(target, scope string) string {
	var parts []string

	parts = append(parts, "=== Directory Structure ===")
	parts = append(parts, directoryTree(target, scope, treeMaxDepth))

	if scope != "" {
		parts = append(parts, fmt.Sprintf("\n=== Files matching scope '%s' ===", scope))
		files := findScopeFiles(target, scope)
		if len(files) > scopeFileLimit {
			files = files[:scopeFileLimit]
		}
		for _, f := range files {
			parts = append(parts, "  - "+f)
		}
	}

	parts = append(parts, "\n=== File Statistics ===")
	for _, line := range fileStatistics(target) {
		parts = append(parts, "  "+line)
	}

	return strings.Join(parts, "\n")
}

// directoryTree renders the directory structure under root, directories
// first, down to maxDepth levels with at most treeMaxEntries entries per
// directory. When scope is set, only entries whose name contains it are
// shown.
func directoryTree(root, scope string, maxDepth int) string {
	var lines []string

	var walk func(dir, prefix string, depth int)
	walk = func(dir, prefix string, depth int) {
		if depth >= maxDepth {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			lines = append(lines, prefix+"[Permission Denied]")
			return
		}

		sort.Slice(entries, func(i, j int) bool {
			if entries[i].IsDir() != entries[j].IsDir() {
				return entries[i].IsDir()
			}
			return entries[i].Name() < entries[j].Name()
		})

		var kept []fs.DirEntry
		for _, e := range entries {
			if ignoredDirs[e.Name()] {
				continue
			}
			if scope != "" && !strings.Contains(strings.ToLower(e.Name()), strings.ToLower(scope)) {
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) > treeMaxEntries {
			kept = kept[:treeMaxEntries]
		}

		for i, e := range kept {
			connector := "├── "
			childPrefix := prefix + "│   "
			if i == len(kept)-1 {
				connector = "└── "
				childPrefix = prefix + "    "
			}
			lines = append(lines, prefix+connector+e.Name())

			if e.IsDir() {
				walk(filepath.Join(dir, e.Name()), childPrefix, depth+1)
			}
		}
	}

	walk(root, "", 0)
	if len(lines) == 0 {
		return "[Empty or inaccessible]"
	}
	return strings.Join(lines, "\n")
}

// findScopeFiles returns the relative paths of files whose path contains the
// scope string, sorted.
func findScopeFiles(root, scope string) []string {
	var files []string
	lowScope := strings.ToLower(scope)

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if strings.Contains(strings.ToLower(rel), lowScope) {
			files = append(files, rel)
		}
		return nil
	})

	sort.Strings(files)
	return files
}

// fileStatistics counts files by extension under root and renders the top
// entries as "ext: N files" lines, most common first.
func fileStatistics(root string) []string {
	counts := make(map[string]int)

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(d.Name())
		if ext == "" {
			ext = "[no extension]"
		}
		counts[ext]++
		return nil
	})

	exts := make([]string, 0, len(counts))
	for ext := range counts {
		exts = append(exts, ext)
	}
	sort.Slice(exts, func(i, j int) bool {
		if counts[exts[i]] != counts[exts[j]] {
			return counts[exts[i]] > counts[exts[j]]
		}
		return exts[i] < exts[j]
	})
	if len(exts) > statsTopN {
		exts = exts[:statsTopN]
	}

	lines := make([]string, 0, len(exts))
	for _, ext := range exts {
		lines = append(lines, fmt.Sprintf("%s: %d files", ext, counts[ext]))
	}
	return lines
}
