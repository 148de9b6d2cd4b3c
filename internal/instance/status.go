package instance

import (
	"github.com/docker/docker/api/types"
)

// Status is the aggregate health of one mugen instance.
type Status string

const (
	// StatusRunning means every container backing the instance is up.
	StatusRunning Status = "Running"

	// StatusDegraded means the instance is partially up. With the single
	// Redis container mugen creates today this only appears when extra
	// labeled containers exist alongside it.
	StatusDegraded Status = "Degraded"

	// StatusStopped means the instance's containers exist but none run.
	StatusStopped Status = "Stopped"
)

// DetermineStatus folds the states of an instance's labeled containers
// into one Status.
func DetermineStatus(containers []types.Container) Status {
	if len(containers) == 0 {
		return StatusStopped
	}

	running := 0
	for _, c := range containers {
		if c.State == "running" {
			running++
		}
	}

	switch {
	case running == len(containers):
		return StatusRunning
	case running > 0:
		return StatusDegraded
	default:
		return StatusStopped
	}
}

// InstanceInfo is one row of `mugen list`.
type InstanceInfo struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Workspace string `json:"workspace"`
	Uptime    string `json:"uptime"`
}
