package instance

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	dockerpkg "github.com/mugen-ai/mugen/internal/docker"
)

// Each instance gets its own Redis container on its own host port. The
// range gives room for 100 instances side by side.
const (
	startPort = 6379
	endPort   = 6478
)

// FindNextAvailablePort picks the lowest free Redis port in the range.
//
// A port counts as taken if any mugen Redis container claims it via its
// port label (even a stopped one, so restarting that instance keeps its
// port) or if something else on the host is already bound to it.
func FindNextAvailablePort(ctx context.Context, cli *client.Client) (int, error) {
	claimed, err := portsClaimedByContainers(ctx, cli)
	if err != nil {
		return 0, err
	}

	for port := startPort; port <= endPort; port++ {
		if _, taken := claimed[port]; taken {
			continue
		}
		if isPortBindable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no available Redis ports (range %d-%d exhausted)", startPort, endPort)
}

// portsClaimedByContainers reads the port labels of every mugen Redis
// container, running or not.
func portsClaimedByContainers(ctx context.Context, cli *client.Client) (map[int]struct{}, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", dockerpkg.LabelProject))
	filter.Add("label", fmt.Sprintf("%s=redis", dockerpkg.LabelComponent))

	containers, err := cli.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Docker containers: %w", err)
	}

	claimed := make(map[int]struct{}, len(containers))
	for _, c := range containers {
		portStr, ok := c.Labels[dockerpkg.LabelRedisPort]
		if !ok {
			continue
		}
		if port, err := strconv.Atoi(portStr); err == nil {
			claimed[port] = struct{}{}
		}
	}
	return claimed, nil
}

func isPortBindable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}
