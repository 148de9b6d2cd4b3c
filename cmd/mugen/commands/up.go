package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/mugen-ai/mugen/internal/config"
	dockerpkg "github.com/mugen-ai/mugen/internal/docker"
	"github.com/mugen-ai/mugen/internal/git"
	"github.com/mugen-ai/mugen/internal/instance"
	"github.com/spf13/cobra"
)

var (
	upInstanceName string
	upForce        bool
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start a mugen instance",
	Long: `Start a new mugen instance in the current Git repository.

Creates and starts:
  • Isolated Docker network
  • Redis container (coordination storage)

Agents are NOT started by this command; they run as host processes managed
by 'mugen solve', 'mugen spawn', or a supervisor embedded in your own code.

The instance name is auto-generated (mugen-N) unless specified with --name
or pinned in mugen.yml. Workspace safety checks prevent multiple instances
on the same directory unless --force is used.`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringVar(&upInstanceName, "name", "", "Instance name (auto-generated if omitted)")
	upCmd.Flags().BoolVar(&upForce, "force", false, "Bypass workspace collision check")
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Phase 1: Environment Validation
	if err := validateEnvironment(); err != nil {
		return err
	}

	// Phase 2: Configuration Validation
	cfg, err := config.Load(config.DefaultFileName)
	if err != nil {
		return fmt.Errorf(`mugen.yml not found or invalid

No configuration file found in the current directory.

Initialize your project first:
  mugen init

Then retry: mugen up

Error details: %w`, err)
	}

	// Create Docker client
	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	// Phase 3: Instance Name Determination
	// Precedence: --name flag, then mugen.yml instance.name, then mugen-N
	targetInstanceName := upInstanceName
	if targetInstanceName == "" {
		targetInstanceName = cfg.Instance.Name
	}
	if targetInstanceName == "" {
		targetInstanceName, err = instance.GenerateDefaultName(ctx, cli)
		if err != nil {
			return fmt.Errorf("failed to generate instance name: %w", err)
		}
	}

	// Validate instance name
	if err := instance.ValidateName(targetInstanceName); err != nil {
		return err
	}

	// Check for name collision
	nameCollision, err := instance.CheckNameCollision(ctx, cli, targetInstanceName)
	if err != nil {
		return err
	}
	if nameCollision {
		return fmt.Errorf(`instance '%s' already exists

Found existing containers with this instance name.

Either:
  1. Stop the existing instance: mugen down --name %s
  2. Choose a different name: mugen up --name other-name`, targetInstanceName, targetInstanceName)
	}

	// Phase 4: Workspace Safety Check
	workspacePath, err := instance.GetCanonicalWorkspacePath()
	if err != nil {
		return fmt.Errorf("failed to get workspace path: %w", err)
	}

	if !upForce {
		collision, err := instance.CheckWorkspaceCollision(ctx, cli, workspacePath, targetInstanceName)
		if err != nil {
			return fmt.Errorf("failed to check workspace collision: %w", err)
		}
		if collision != nil {
			return fmt.Errorf(`workspace in use

Another instance '%s' is already running on this workspace:
  Workspace: %s
  Instance:  %s

Either:
  1. Stop the other instance: mugen down --name %s
  2. Use --force to bypass this check (not recommended)`, collision.InstanceName, collision.WorkspacePath, collision.InstanceName, collision.InstanceName)
		}
	}

	// Phase 5: Resource Creation
	runID := dockerpkg.GenerateRunID()
	if err := createInstance(ctx, cli, targetInstanceName, runID, workspacePath); err != nil {
		// Attempt rollback on failure
		fmt.Printf("\nResource creation failed. Rolling back...\n")
		if rollbackErr := rollbackInstance(ctx, cli, targetInstanceName); rollbackErr != nil {
			fmt.Printf("Warning: rollback encountered errors: %v\n", rollbackErr)
		}
		return fmt.Errorf("failed to create instance: %w", err)
	}

	// Success message
	printUpSuccess(targetInstanceName, workspacePath)

	return nil
}

func validateEnvironment() error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	// Check Git context
	checker := git.NewChecker(wd)
	if err := checker.ValidateGitContext(); err != nil {
		return fmt.Errorf(`not a Git repository

Mugen requires initialization from within a Git repository.

Run these commands in order:
  1. git init
  2. mugen init
  3. mugen up

Error: %w`, err)
	}

	return nil
}

func createInstance(ctx context.Context, cli *client.Client, instanceName, runID, workspacePath string) error {
	// Step 1: Allocate Redis port
	redisPort, err := instance.FindNextAvailablePort(ctx, cli)
	if err != nil {
		return fmt.Errorf("failed to allocate Redis port: %w", err)
	}

	fmt.Printf("✓ Allocated Redis port: %d\n", redisPort)

	// Step 2: Create isolated network
	networkName := dockerpkg.NetworkName(instanceName)
	networkLabels := dockerpkg.BuildLabels(instanceName, runID, workspacePath, "")

	_, err = cli.NetworkCreate(ctx, networkName, types.NetworkCreate{
		Driver: "bridge",
		Labels: networkLabels,
	})
	if err != nil {
		return fmt.Errorf("failed to create network '%s': %w", networkName, err)
	}

	fmt.Printf("✓ Created network: %s\n", networkName)

	// Step 3: Start Redis container with port mapping
	redisName := dockerpkg.RedisContainerName(instanceName)
	redisLabels := dockerpkg.BuildLabels(instanceName, runID, workspacePath, "redis")
	// Add Redis port label
	redisLabels[dockerpkg.LabelRedisPort] = fmt.Sprintf("%d", redisPort)

	redisResp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:  "redis:7-alpine",
		Labels: redisLabels,
		ExposedPorts: nat.PortSet{
			"6379/tcp": struct{}{},
		},
		Healthcheck: &container.HealthConfig{
			Test:     []string{"CMD", "redis-cli", "ping"},
			Interval: 5 * time.Second,
			Timeout:  3 * time.Second,
			Retries:  3,
		},
	}, &container.HostConfig{
		NetworkMode: container.NetworkMode(networkName),
		PortBindings: nat.PortMap{
			"6379/tcp": []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: fmt.Sprintf("%d", redisPort),
				},
			},
		},
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyUnlessStopped,
		},
	}, nil, nil, redisName)
	if err != nil {
		return fmt.Errorf("failed to create Redis container: %w", err)
	}

	if err := cli.ContainerStart(ctx, redisResp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start Redis container: %w", err)
	}

	fmt.Printf("✓ Started Redis container: %s (port %d)\n", redisName, redisPort)

	return nil
}

func rollbackInstance(ctx context.Context, cli *client.Client, instanceName string) error {
	timeout := 10

	// Find all containers for this instance
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, instanceName)),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	// Stop and remove containers
	for _, c := range containers {
		fmt.Printf("  Stopping %s...\n", c.Names[0])
		_ = cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})

		fmt.Printf("  Removing %s...\n", c.Names[0])
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			fmt.Printf("  Warning: failed to remove %s: %v\n", c.Names[0], err)
		}
	}

	// Remove network
	networks, err := cli.NetworkList(ctx, types.NetworkListOptions{
		Filters: filters.NewArgs(
			filters.Arg("label", fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, instanceName)),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}

	for _, net := range networks {
		fmt.Printf("  Removing network %s...\n", net.Name)
		if err := cli.NetworkRemove(ctx, net.ID); err != nil {
			fmt.Printf("  Warning: failed to remove network %s: %v\n", net.Name, err)
		}
	}

	return nil
}

func printUpSuccess(instanceName, workspacePath string) {
	fmt.Printf("\n✓ Instance '%s' started successfully\n\n", instanceName)
	fmt.Printf("Containers:\n")
	fmt.Printf("  • %s (running)\n", dockerpkg.RedisContainerName(instanceName))
	fmt.Printf("\n")
	fmt.Printf("Network:\n")
	fmt.Printf("  • %s\n", dockerpkg.NetworkName(instanceName))
	fmt.Printf("\n")
	fmt.Printf("Workspace: %s\n", workspacePath)
	fmt.Printf("\n")
	fmt.Printf("Next steps:\n")
	fmt.Printf("  1. Run 'mugen solve \"your problem\"' to start a workflow\n")
	fmt.Printf("  2. Run 'mugen status' to view agents\n")
	fmt.Printf("  3. Run 'mugen down --name %s' when finished\n", instanceName)
}
