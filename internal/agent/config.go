package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds the agent runtime configuration loaded from environment
// variables. The supervisor sets these when it spawns the process; required
// fields are validated at startup so a misconfigured agent fails fast.
type Config struct {
	// InstanceName is the mugen instance identifier (from MUGEN_INSTANCE_NAME)
	InstanceName string

	// AgentID is this agent's unique ID, e.g. "explorer-1" (from MUGEN_AGENT_ID)
	AgentID string

	// Role is the agent's role name (from MUGEN_AGENT_ROLE)
	Role string

	// RedisURL is the Redis connection string (from REDIS_URL)
	RedisURL string

	// WorkingDir is the directory agents explore and write into
	// (from MUGEN_WORKING_DIR, defaults to the process working directory)
	WorkingDir string

	// HeartbeatInterval is how often the agent refreshes its heartbeat
	// (from MUGEN_HEARTBEAT_INTERVAL, defaults to 2s)
	HeartbeatInterval time.Duration

	// ReceivePoll is how long each blocking message receive waits
	// (from MUGEN_RECEIVE_POLL, defaults to 1s)
	ReceivePoll time.Duration

	// LockTimeout bounds how long the agent waits for a file lock
	// (from MUGEN_LOCK_TIMEOUT, defaults to 10s)
	LockTimeout time.Duration

	// Reasoner selects the reasoning backend, "cli" or "mock"
	// (from MUGEN_REASONER, defaults to "cli")
	Reasoner string

	// ReasoningModel is the default model for reasoning calls
	// (from MUGEN_REASONING_MODEL, defaults to "sonnet")
	ReasoningModel string

	// ReasoningTimeout bounds each reasoning call
	// (from MUGEN_REASONING_TIMEOUT, defaults to 120s)
	ReasoningTimeout time.Duration

	// RoleDescription describes a custom role (from MUGEN_ROLE_DESCRIPTION).
	// Unused for the built-in roles.
	RoleDescription string

	// RoleSystemPrompt is the system prompt for a custom role
	// (from MUGEN_ROLE_SYSTEM_PROMPT). Required when Role is not built-in.
	RoleSystemPrompt string

	// RoleTools is the tool list for a custom role (from MUGEN_ROLE_TOOLS).
	// Expected format: JSON array like ["Read","Write","Bash"]
	RoleTools []string
}

// LoadConfig reads and validates configuration from environment variables.
// Returns an error if any required variable is missing or invalid.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		InstanceName:     os.Getenv("MUGEN_INSTANCE_NAME"),
		AgentID:          os.Getenv("MUGEN_AGENT_ID"),
		Role:             os.Getenv("MUGEN_AGENT_ROLE"),
		RedisURL:         os.Getenv("REDIS_URL"),
		WorkingDir:       os.Getenv("MUGEN_WORKING_DIR"),
		Reasoner:         os.Getenv("MUGEN_REASONER"),
		ReasoningModel:   os.Getenv("MUGEN_REASONING_MODEL"),
		RoleDescription:  os.Getenv("MUGEN_ROLE_DESCRIPTION"),
		RoleSystemPrompt: os.Getenv("MUGEN_ROLE_SYSTEM_PROMPT"),
	}

	var err error
	cfg.HeartbeatInterval, err = durationEnv("MUGEN_HEARTBEAT_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.ReceivePoll, err = durationEnv("MUGEN_RECEIVE_POLL", time.Second)
	if err != nil {
		return nil, err
	}
	cfg.LockTimeout, err = durationEnv("MUGEN_LOCK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.ReasoningTimeout, err = durationEnv("MUGEN_REASONING_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, err
	}

	// Parse tool list from JSON
	toolsJSON := os.Getenv("MUGEN_ROLE_TOOLS")
	if toolsJSON != "" {
		if err := json.Unmarshal([]byte(toolsJSON), &cfg.RoleTools); err != nil {
			return nil, fmt.Errorf("failed to parse MUGEN_ROLE_TOOLS as JSON array: %w", err)
		}
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "."
	}
	if cfg.Reasoner == "" {
		cfg.Reasoner = "cli"
	}
	if cfg.ReasoningModel == "" {
		cfg.ReasoningModel = "sonnet"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns the first validation error encountered.
func (c *Config) Validate() error {
	if c.InstanceName == "" {
		return fmt.Errorf("MUGEN_INSTANCE_NAME environment variable is required")
	}

	if c.AgentID == "" {
		return fmt.Errorf("MUGEN_AGENT_ID environment variable is required")
	}

	if c.Role == "" {
		return fmt.Errorf("MUGEN_AGENT_ROLE environment variable is required")
	}

	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL environment variable is required")
	}

	if c.Reasoner != "cli" && c.Reasoner != "mock" {
		return fmt.Errorf("MUGEN_REASONER must be \"cli\" or \"mock\", got %q", c.Reasoner)
	}

	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("MUGEN_HEARTBEAT_INTERVAL must be positive")
	}

	if c.ReceivePoll <= 0 {
		return fmt.Errorf("MUGEN_RECEIVE_POLL must be positive")
	}

	return nil
}

// durationEnv reads a duration-valued environment variable, returning the
// fallback when unset.
func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid duration: %w", name, err)
	}
	return d, nil
}
