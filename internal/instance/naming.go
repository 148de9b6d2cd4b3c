package instance

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	dockerpkg "github.com/mugen-ai/mugen/internal/docker"
)

const (
	// DefaultNamePrefix starts every auto-generated instance name.
	DefaultNamePrefix = "mugen-"

	// MaxNameLength caps instance names at the DNS label limit; names
	// flow into container and network names, which share that limit.
	MaxNameLength = 63
)

// namePattern accepts DNS-label names: lowercase alphanumeric with
// interior hyphens. A single character is valid.
var namePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateName rejects instance names that cannot serve as DNS labels.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}
	return nil
}

// GenerateDefaultName picks the next free mugen-N name by scanning the
// instance labels of every existing mugen container. Gaps are not
// reused: the result is always one past the highest N seen.
func GenerateDefaultName(ctx context.Context, cli *client.Client) (string, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", dockerpkg.LabelProject))

	containers, err := cli.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list containers: %w", err)
	}

	highest := 0
	for _, container := range containers {
		n, ok := defaultNameNumber(container.Labels[dockerpkg.LabelInstanceName])
		if ok && n > highest {
			highest = n
		}
	}

	return fmt.Sprintf("%s%d", DefaultNamePrefix, highest+1), nil
}

// defaultNameNumber extracts N from a mugen-N instance name. Named
// instances and malformed suffixes report false.
func defaultNameNumber(instanceName string) (int, bool) {
	if !strings.HasPrefix(instanceName, DefaultNamePrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(instanceName, DefaultNamePrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// CheckNameCollision reports whether any container already carries the
// given instance name, running or not.
func CheckNameCollision(ctx context.Context, cli *client.Client, instanceName string) (bool, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, instanceName))

	containers, err := cli.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check for name collision: %w", err)
	}

	return len(containers) > 0, nil
}
