package instance

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	dockerpkg "github.com/mugen-ai/mugen/internal/docker"
)

// canonicalWorkspacePath resolves symlinks and relative segments so
// workspace comparisons survive /tmp-style symlinked paths.
func canonicalWorkspacePath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace path: %w", err)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute workspace path: %w", err)
	}
	return abs, nil
}

// listProjectContainers returns every container carrying the given label
// filters plus the mugen project label, running or not.
func listProjectContainers(ctx context.Context, cli *client.Client, labelPairs ...string) ([]types.Container, error) {
	filter := filters.NewArgs()
	for _, pair := range labelPairs {
		filter.Add("label", pair)
	}

	containers, err := cli.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return containers, nil
}

// FindInstanceByWorkspace maps a workspace path to the one instance
// whose containers carry it. Zero matches and ambiguous matches are both
// errors; callers turn them into --name suggestions.
func FindInstanceByWorkspace(ctx context.Context, cli *client.Client, workspacePath string) (string, error) {
	canonical, err := canonicalWorkspacePath(workspacePath)
	if err != nil {
		return "", err
	}

	containers, err := listProjectContainers(ctx, cli,
		fmt.Sprintf("%s=true", dockerpkg.LabelProject))
	if err != nil {
		return "", err
	}

	seen := make(map[string]bool)
	var matches []string
	for _, container := range containers {
		if container.Labels[dockerpkg.LabelWorkspacePath] != canonical {
			continue
		}
		name := container.Labels[dockerpkg.LabelInstanceName]
		if !seen[name] {
			seen[name] = true
			matches = append(matches, name)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no instances found")
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("multiple instances found: %v", matches)
	}
}

// GetInstanceRedisPort reads the host port of an instance's Redis
// container from its port label.
func GetInstanceRedisPort(ctx context.Context, cli *client.Client, instanceName string) (int, error) {
	containers, err := listProjectContainers(ctx, cli,
		fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, instanceName),
		fmt.Sprintf("%s=redis", dockerpkg.LabelComponent))
	if err != nil {
		return 0, err
	}
	if len(containers) == 0 {
		return 0, fmt.Errorf("Redis container not found for instance '%s'", instanceName)
	}

	portStr, ok := containers[0].Labels[dockerpkg.LabelRedisPort]
	if !ok {
		return 0, fmt.Errorf("Redis port label missing for instance '%s'", instanceName)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid Redis port '%s': %w", portStr, err)
	}
	return port, nil
}

// VerifyInstanceRunning checks that the instance's Redis container is up.
// Redis is the only essential container in this topology: agents run as
// host processes, tracked through the registry rather than Docker.
func VerifyInstanceRunning(ctx context.Context, cli *client.Client, instanceName string) error {
	containers, err := listProjectContainers(ctx, cli,
		fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, instanceName))
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		return fmt.Errorf("instance '%s' not found", instanceName)
	}

	for _, container := range containers {
		if container.Labels[dockerpkg.LabelComponent] != "redis" {
			continue
		}
		if container.State != "running" {
			return fmt.Errorf("instance '%s' is not running (component 'redis' is %s)", instanceName, container.State)
		}
		return nil
	}

	return fmt.Errorf("instance '%s' is missing essential component 'redis'", instanceName)
}

// InferInstanceFromWorkspace resolves the current git repository root to
// its instance. Errors carry the operator-facing hint text directly.
func InferInstanceFromWorkspace(ctx context.Context, cli *client.Client) (string, error) {
	output, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("not in a Git repository")
	}
	gitRoot := strings.TrimSpace(string(output))

	instanceName, err := FindInstanceByWorkspace(ctx, cli, gitRoot)
	if err != nil {
		if strings.Contains(err.Error(), "no instances found") {
			return "", fmt.Errorf("no mugen instances found for this workspace")
		}
		if strings.Contains(err.Error(), "multiple instances found") {
			return "", fmt.Errorf("multiple instances found for this workspace, use --name to specify which one")
		}
		return "", err
	}
	return instanceName, nil
}
