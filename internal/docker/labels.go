package docker

import (
	"fmt"

	"github.com/google/uuid"
)

// Label keys used for mugen resources
const (
	LabelProject       = "mugen.project"
	LabelInstanceName  = "mugen.instance.name"
	LabelInstanceRunID = "mugen.instance.run_id"
	LabelWorkspacePath = "mugen.workspace.path"
	LabelComponent     = "mugen.component"
	LabelRedisPort     = "mugen.redis.port"
)

// BuildLabels creates the standard label set for all mugen resources.
// All parameters are required except component (which is resource-specific).
func BuildLabels(instanceName, runID, workspacePath, component string) map[string]string {
	labels := map[string]string{
		LabelProject:       "true",
		LabelInstanceName:  instanceName,
		LabelInstanceRunID: runID,
		LabelWorkspacePath: workspacePath,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// GenerateRunID creates a new UUID for an instance run.
// Each invocation of `mugen up` gets a unique run ID.
func GenerateRunID() string {
	return uuid.New().String()
}

// Resource naming conventions for mugen components

// NetworkName returns the Docker network name for an instance
func NetworkName(instanceName string) string {
	return fmt.Sprintf("mugen-%s-network", instanceName)
}

// RedisContainerName returns the Redis container name for an instance
func RedisContainerName(instanceName string) string {
	return fmt.Sprintf("mugen-%s-redis", instanceName)
}
