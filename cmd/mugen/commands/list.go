package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	dockerpkg "github.com/mugen-ai/mugen/internal/docker"
	"github.com/mugen-ai/mugen/internal/instance"
	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all mugen instances",
	Long: `List every mugen instance on this machine, grouped from the containers
carrying the mugen.project label: name, status (Running/Degraded/Stopped),
workspace path, and uptime for running instances.

Use --json for machine-readable output. For the agents inside one
instance, see 'mugen status'.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	containerFilters := filters.NewArgs()
	containerFilters.Add("label", fmt.Sprintf("%s=true", dockerpkg.LabelProject))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: containerFilters,
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	infos := buildInstanceInfos(containers)

	if len(infos) == 0 {
		if listJSON {
			fmt.Println("[]")
		} else {
			fmt.Println("No mugen instances found.")
			fmt.Println()
			fmt.Println("Run 'mugen up' to start a new instance.")
		}
		return nil
	}

	if listJSON {
		outputInstancesJSON(infos)
	} else {
		outputInstancesTable(infos)
	}
	return nil
}

// buildInstanceInfos groups containers by their instance label and folds
// each group into one list row. Every container of an instance carries
// the same workspace label, so the first one is as good as any.
func buildInstanceInfos(containers []types.Container) []instance.InstanceInfo {
	byInstance := make(map[string][]types.Container)
	for _, c := range containers {
		name := c.Labels[dockerpkg.LabelInstanceName]
		byInstance[name] = append(byInstance[name], c)
	}

	var infos []instance.InstanceInfo
	for name, group := range byInstance {
		status := instance.DetermineStatus(group)

		uptime := "-"
		if status == instance.StatusRunning {
			uptime = formatDuration(time.Since(time.Unix(group[0].Created, 0)))
		}

		infos = append(infos, instance.InstanceInfo{
			Name:      name,
			Status:    status,
			Workspace: group[0].Labels[dockerpkg.LabelWorkspacePath],
			Uptime:    uptime,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	hours := d / time.Hour
	d -= hours * time.Hour

	minutes := d / time.Minute
	d -= minutes * time.Minute

	seconds := d / time.Second

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

func outputInstancesJSON(infos []instance.InstanceInfo) {
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func outputInstancesTable(infos []instance.InstanceInfo) {
	fmt.Printf("%-15s %-10s %-30s %s\n", "INSTANCE", "STATUS", "WORKSPACE", "UPTIME")
	for _, info := range infos {
		workspace := info.Workspace
		if len(workspace) > 30 {
			workspace = "..." + workspace[len(workspace)-27:]
		}
		fmt.Printf("%-15s %-10s %-30s %s\n", info.Name, info.Status, workspace, info.Uptime)
	}
}
