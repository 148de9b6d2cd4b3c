package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// NewClient builds a Docker API client from the environment and verifies
// the daemon answers before anything is built on top of it. Instance
// discovery, `mugen up` and `mugen down` all start here, so an unreachable
// daemon is reported once with a hint instead of failing later mid-command.
func NewClient(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf(`Docker daemon not accessible: %w

mugen runs each instance's Redis in a container. Start Docker first:
  • macOS: Docker Desktop
  • Linux: sudo systemctl start docker`, err)
	}

	return cli, nil
}
