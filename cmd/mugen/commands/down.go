package commands

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	dockerpkg "github.com/mugen-ai/mugen/internal/docker"
	"github.com/mugen-ai/mugen/internal/instance"
	"github.com/mugen-ai/mugen/internal/printer"
	"github.com/spf13/cobra"
)

var downInstanceName string

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop a mugen instance",
	Long: `Stop and remove all Docker resources associated with a mugen instance.

This includes:
  • Redis container (all coordination state is lost)
  • Docker network

Host agent processes are not managed by Docker; shut them down first with
'mugen shutdown' if any are still running.

The instance name is auto-inferred from the current workspace if not specified.
The command does not prompt for confirmation and executes immediately.

Examples:
  # Stop the instance for current workspace
  mugen down

  # Stop a specific instance
  mugen down --name prod-instance`,
	RunE: runDown,
}

func init() {
	downCmd.Flags().StringVarP(&downInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	name, err := resolveDownTarget(ctx, cli)
	if err != nil {
		return err
	}

	instanceFilter := filters.NewArgs()
	instanceFilter.Add("label", fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, name))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: instanceFilter,
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}
	if len(containers) == 0 {
		return printer.Error(
			fmt.Sprintf("instance '%s' not found", name),
			fmt.Sprintf("No containers found with instance name '%s'.", name),
			[]string{"Run 'mugen list' to see available instances"},
		)
	}

	// Stop everything before removing anything, so a removal failure
	// never leaves half the instance still serving.
	gracePeriod := 10
	for _, c := range containers {
		printer.Step("Stopping %s...\n", c.Names[0])
		if err := cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &gracePeriod}); err != nil {
			printer.Warning("failed to stop %s: %v\n", c.Names[0], err)
		}
	}
	for _, c := range containers {
		printer.Step("Removing %s...\n", c.Names[0])
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			return fmt.Errorf("failed to remove %s: %w", c.Names[0], err)
		}
	}

	networks, err := cli.NetworkList(ctx, types.NetworkListOptions{Filters: instanceFilter})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	for _, net := range networks {
		printer.Step("Removing network %s...\n", net.Name)
		if err := cli.NetworkRemove(ctx, net.ID); err != nil {
			return fmt.Errorf("failed to remove network %s: %w", net.Name, err)
		}
	}

	printer.Success("\nInstance '%s' removed successfully\n", name)
	return nil
}

// resolveDownTarget picks the instance to tear down: the --name flag if
// given, otherwise the instance inferred from the current workspace.
func resolveDownTarget(ctx context.Context, cli *client.Client) (string, error) {
	if downInstanceName != "" {
		return downInstanceName, nil
	}

	name, err := instance.InferInstanceFromWorkspace(ctx, cli)
	if err == nil {
		return name, nil
	}

	switch err.Error() {
	case "no mugen instances found for this workspace":
		return "", printer.Error(
			"no mugen instances found",
			"No running instances found for this workspace.",
			[]string{"Start an instance first:\n  mugen up"},
		)
	case "multiple instances found for this workspace, use --name to specify which one":
		return "", printer.Error(
			"multiple instances found",
			"Found multiple running instances for this workspace.",
			[]string{
				"Specify which instance to stop:\n  mugen down --name <instance-name>",
				"List instances:\n  mugen list",
			},
		)
	}
	return "", fmt.Errorf("failed to infer instance: %w", err)
}
