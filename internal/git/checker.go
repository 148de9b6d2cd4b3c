package git

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Checker validates the Git state of a workspace directory.
type Checker struct {
	// Dir is the directory git commands run in. Empty means the current
	// directory.
	Dir string
}

// NewChecker creates a checker for the given workspace directory.
func NewChecker(dir string) *Checker {
	return &Checker{Dir: dir}
}

func (c *Checker) command(args ...string) *exec.Cmd {
	cmd := exec.Command("git", args...)
	cmd.Dir = c.Dir
	return cmd
}

// IsGitRepository checks if the workspace is within a Git repository.
func (c *Checker) IsGitRepository() (bool, error) {
	err := c.command("rev-parse", "--git-dir").Run()
	if err != nil {
		// Distinguish "git missing" from "not a repository"
		if _, ok := err.(*exec.Error); ok {
			return false, fmt.Errorf("git not found in PATH\nInstall Git: https://git-scm.com/downloads")
		}
		return false, nil
	}
	return true, nil
}

// GetGitRoot returns the absolute path to the Git repository root.
func (c *Checker) GetGitRoot() (string, error) {
	output, err := c.command("rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get Git root: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// IsGitRoot checks if the workspace directory is the Git repository root.
func (c *Checker) IsGitRoot() (bool, string, error) {
	dir := c.Dir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return false, "", fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	gitRoot, err := c.GetGitRoot()
	if err != nil {
		return false, "", err
	}

	// Resolve symlinks so aliased paths like /var vs /private/var compare
	// equal.
	dirReal, err := filepath.EvalSymlinks(filepath.Clean(dir))
	if err != nil {
		dirReal = filepath.Clean(dir)
	}
	rootReal, err := filepath.EvalSymlinks(filepath.Clean(gitRoot))
	if err != nil {
		rootReal = filepath.Clean(gitRoot)
	}

	return dirReal == rootReal, gitRoot, nil
}

// ValidateGitContext validates that the workspace is a Git repository at
// its root. Returns a user-friendly error if validation fails.
func (c *Checker) ValidateGitContext() error {
	isRepo, err := c.IsGitRepository()
	if err != nil {
		return err
	}

	if !isRepo {
		return fmt.Errorf("not a Git repository\n\nmugen needs a Git repository so agent-written changes stay reviewable.\n\nRun 'git init' first, then 'mugen init'")
	}

	isRoot, gitRoot, err := c.IsGitRoot()
	if err != nil {
		return err
	}

	if !isRoot {
		return fmt.Errorf("must run from the Git repository root\n\nGit root: %s\nWorkspace: %s\n\nPlease cd to the Git root and run 'mugen init'", gitRoot, c.Dir)
	}

	return nil
}

// IsWorkspaceClean returns true if the Git working directory has no
// uncommitted changes. This includes staged, unstaged, and untracked files.
func (c *Checker) IsWorkspaceClean() (bool, error) {
	output, err := c.command("status", "--porcelain").Output()
	if err != nil {
		return false, fmt.Errorf("failed to check Git status: %w", err)
	}
	return len(strings.TrimSpace(string(output))) == 0, nil
}

// GetDirtyFiles returns a formatted list of uncommitted changes for error
// messages. Returns empty string if the workspace is clean.
func (c *Checker) GetDirtyFiles() (string, error) {
	output, err := c.command("status", "--porcelain").Output()
	if err != nil {
		return "", fmt.Errorf("failed to check Git status: %w", err)
	}

	porcelain := strings.TrimSpace(string(output))
	if porcelain == "" {
		return "", nil
	}

	var modified, untracked []string
	for _, line := range strings.Split(porcelain, "\n") {
		if len(line) < 3 {
			continue
		}
		status := line[:2]
		file := strings.TrimSpace(line[2:])

		if strings.HasPrefix(status, "??") {
			untracked = append(untracked, file)
		} else {
			modified = append(modified, file)
		}
	}

	var parts []string
	if len(modified) > 0 {
		parts = append(parts, "Uncommitted changes:")
		for _, file := range modified {
			parts = append(parts, fmt.Sprintf(" M %s", file))
		}
	}
	if len(untracked) > 0 {
		if len(parts) > 0 {
			parts = append(parts, "")
		}
		parts = append(parts, "Untracked files:")
		for _, file := range untracked {
			parts = append(parts, fmt.Sprintf("?? %s", file))
		}
	}

	return strings.Join(parts, "\n"), nil
}
