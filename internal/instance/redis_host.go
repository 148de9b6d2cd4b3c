package instance

import (
	"fmt"
	"os"
)

// dockerSentinel marks a containerized environment. When the CLI itself
// runs inside a container, an instance's published Redis port is only
// reachable through the host gateway.
const dockerSentinel = "/.dockerenv"

// GetRedisHost returns the hostname agents and CLI commands use to reach
// an instance's Redis: the Docker host gateway when running containerized,
// plain localhost otherwise.
func GetRedisHost() string {
	if _, err := os.Stat(dockerSentinel); err == nil {
		return "host.docker.internal"
	}
	return "localhost"
}

// GetRedisURL builds the redis:// URL for an instance's published port.
func GetRedisURL(port int) string {
	return fmt.Sprintf("redis://%s:%d", GetRedisHost(), port)
}
