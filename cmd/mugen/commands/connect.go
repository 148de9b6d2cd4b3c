package commands

import (
	"context"
	"fmt"

	dockerpkg "github.com/mugen-ai/mugen/internal/docker"
	"github.com/mugen-ai/mugen/internal/instance"
	"github.com/mugen-ai/mugen/internal/printer"
	"github.com/mugen-ai/mugen/pkg/coord"
	"github.com/redis/go-redis/v9"
)

// connection is a live link to a running mugen instance: the resolved
// instance name, a connected coordination client, and the Redis URL the
// client was built from (supervisors spawned by this process hand it to
// their agents).
type connection struct {
	InstanceName string
	RedisURL     string
	Client       *coord.Client
}

// Close releases the coordination client.
func (c *connection) Close() {
	c.Client.Close()
}

// connectToInstance runs the discovery-and-connect sequence shared by every
// command that talks to a running instance: resolve the target instance
// (explicit --name or inferred from the workspace), verify its containers
// are running, read the Redis port label, and ping Redis.
func connectToInstance(ctx context.Context, instanceName string) (*connection, error) {
	// Phase 1: Instance discovery
	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	defer cli.Close()

	targetInstanceName := instanceName
	if targetInstanceName == "" {
		targetInstanceName, err = instance.InferInstanceFromWorkspace(ctx, cli)
		if err != nil {
			if err.Error() == "no mugen instances found for this workspace" {
				return nil, printer.Error(
					"no mugen instances found",
					"No running instances found for this workspace.",
					[]string{"Start an instance first:\n  mugen up"},
				)
			}
			if err.Error() == "multiple instances found for this workspace, use --name to specify which one" {
				return nil, printer.Error(
					"multiple instances found",
					"Found multiple running instances for this workspace.",
					[]string{
						"Specify which instance to target:\n  mugen <command> --name <instance-name>",
						"List instances:\n  mugen list",
					},
				)
			}
			return nil, fmt.Errorf("failed to infer instance: %w", err)
		}
	}

	// Phase 2: Verify instance is running
	if err := instance.VerifyInstanceRunning(ctx, cli, targetInstanceName); err != nil {
		return nil, printer.Error(
			fmt.Sprintf("instance '%s' is not running", targetInstanceName),
			fmt.Sprintf("Error: %v", err),
			[]string{
				fmt.Sprintf("Start the instance:\n  mugen up --name %s", targetInstanceName),
				fmt.Sprintf("Or if stuck, restart:\n  mugen down --name %s\n  mugen up --name %s", targetInstanceName, targetInstanceName),
			},
		)
	}

	// Phase 3: Get Redis port
	redisPort, err := instance.GetInstanceRedisPort(ctx, cli, targetInstanceName)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"Redis port not found",
			fmt.Sprintf("Instance '%s' exists but Redis port label is missing.", targetInstanceName),
			nil,
			[]string{fmt.Sprintf("Restart the instance:\n  mugen down --name %s\n  mugen up --name %s", targetInstanceName, targetInstanceName)},
		)
	}

	// Phase 4: Connect to the coordination layer
	redisURL := instance.GetRedisURL(redisPort)
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	coordClient, err := coord.NewClient(redisOpts, targetInstanceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordination client: %w", err)
	}

	// Verify Redis connectivity
	if err := coordClient.Ping(ctx); err != nil {
		coordClient.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", redisURL),
			nil,
			[]string{
				fmt.Sprintf("Check Redis container status:\n  docker logs %s", dockerpkg.RedisContainerName(targetInstanceName)),
				fmt.Sprintf("Restart if needed:\n  mugen down --name %s\n  mugen up --name %s", targetInstanceName, targetInstanceName),
			},
		)
	}

	return &connection{
		InstanceName: targetInstanceName,
		RedisURL:     redisURL,
		Client:       coordClient,
	}, nil
}
