package instance

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	dockerpkg "github.com/mugen-ai/mugen/internal/docker"
)

// appMountPoint is where a dev container mounts the workspace. Paths
// under it must be mapped back to the host before they are compared or
// handed to Docker as bind sources.
const appMountPoint = "/app"

// GetCanonicalWorkspacePath resolves the Git repository root to a
// symlink-free absolute path. Instances are keyed on this path for
// collision detection, so two checkouts of the same repo in different
// directories count as different workspaces.
func GetCanonicalWorkspacePath() (string, error) {
	out, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get git root: %w", err)
	}

	realPath, err := filepath.EvalSymlinks(strings.TrimSpace(string(out)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve symlinks: %w", err)
	}
	absPath, err := filepath.Abs(realPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return hostifyPath(absPath), nil
}

// hostifyPath maps a path under the container's /app mount back to its
// host source when the CLI runs inside Docker. Outside a container, or
// when the mount source cannot be determined, the path passes through
// untouched.
func hostifyPath(path string) string {
	if !strings.HasPrefix(path, appMountPoint) {
		return path
	}
	if _, err := os.Stat(dockerSentinel); err != nil {
		return path
	}

	source := appMountSource()
	if source == "" {
		return path
	}
	return filepath.Join(source, path[len(appMountPoint):])
}

// appMountSource inspects the CLI's own container (hostname == container
// ID) and returns the host directory mounted at /app, or "" if that
// cannot be determined.
func appMountSource() string {
	hostname, err := os.Hostname()
	if err != nil {
		return ""
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return ""
	}
	defer cli.Close()

	inspect, err := cli.ContainerInspect(context.Background(), hostname)
	if err != nil {
		return ""
	}

	for _, m := range inspect.Mounts {
		if m.Destination == appMountPoint {
			return m.Source
		}
	}
	return ""
}

// WorkspaceCollision identifies another instance already claiming a
// workspace path.
type WorkspaceCollision struct {
	InstanceName  string
	WorkspacePath string
	ContainerID   string
}

// CheckWorkspaceCollision reports whether an instance other than
// currentInstanceName already has containers labelled with
// workspacePath. Returns nil when the workspace is free.
func CheckWorkspaceCollision(ctx context.Context, cli *client.Client, workspacePath, currentInstanceName string) (*WorkspaceCollision, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", dockerpkg.LabelProject))

	containers, err := cli.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	for _, c := range containers {
		owner := c.Labels[dockerpkg.LabelInstanceName]
		if owner == currentInstanceName {
			continue
		}
		if c.Labels[dockerpkg.LabelWorkspacePath] == workspacePath {
			return &WorkspaceCollision{
				InstanceName:  owner,
				WorkspacePath: workspacePath,
				ContainerID:   c.ID,
			}, nil
		}
	}

	return nil, nil
}
