package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file mugen commands look for in the
// workspace root.
const DefaultFileName = "mugen.yml"

// Duration is a time.Duration that unmarshals from yaml strings like "2s"
// or "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q (use forms like 2s, 500ms, 1m)", raw)
	}

	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the top-level mugen.yml configuration.
type Config struct {
	Version   int                   `yaml:"version"`
	Instance  InstanceConfig        `yaml:"instance,omitempty"`
	Agents    AgentsConfig          `yaml:"agents,omitempty"`
	Reasoning ReasoningConfig       `yaml:"reasoning,omitempty"`
	Roles     map[string]RoleConfig `yaml:"roles,omitempty"`
}

// InstanceConfig names the instance this workspace belongs to.
type InstanceConfig struct {
	Name string `yaml:"name,omitempty"` // Defaults to the name inferred from the workspace
}

// AgentsConfig tunes agent process behavior.
type AgentsConfig struct {
	MaxConcurrent     int      `yaml:"max_concurrent,omitempty"`     // Spawn cap across all roles (default 5)
	HeartbeatInterval Duration `yaml:"heartbeat_interval,omitempty"` // How often agents heartbeat (default 2s)
	ReceivePoll       Duration `yaml:"receive_poll,omitempty"`       // Run-loop receive timeout (default 1s)
	LockTimeout       Duration `yaml:"lock_timeout,omitempty"`       // Default file lock acquisition timeout (default 10s)
}

// ReasoningConfig selects and tunes the reasoning backend.
type ReasoningConfig struct {
	Client  string   `yaml:"client,omitempty"`  // "cli" (claude CLI subprocess) or "mock"
	Model   string   `yaml:"model,omitempty"`   // Model passed to the CLI (default "sonnet")
	Timeout Duration `yaml:"timeout,omitempty"` // Per-request timeout (default 120s)
}

// RoleConfig defines a custom agent role. Custom roles run the generic
// implement pipeline with their own system prompt and tool list.
type RoleConfig struct {
	Description  string   `yaml:"description"`
	Capabilities []string `yaml:"capabilities,omitempty"`
	Tools        []string `yaml:"tools,omitempty"`
	SystemPrompt string   `yaml:"system_prompt"`
}

// Reserved names no custom role may claim: coordination recipients plus the
// built-in roles, which cannot be redefined from configuration.
var reservedRoleNames = map[string]bool{
	"supervisor": true,
	"broadcast":  true,
	"explorer":   true,
	"planner":    true,
	"executor":   true,
}

// Default returns a configuration with every default applied and no custom
// roles. Used when a workspace carries no mugen.yml.
func Default() *Config {
	cfg := &Config{Version: 1}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills unset fields with their documented defaults.
func (c *Config) applyDefaults() {
	if c.Agents.MaxConcurrent == 0 {
		c.Agents.MaxConcurrent = 5
	}
	if c.Agents.HeartbeatInterval == 0 {
		c.Agents.HeartbeatInterval = Duration(2 * time.Second)
	}
	if c.Agents.ReceivePoll == 0 {
		c.Agents.ReceivePoll = Duration(time.Second)
	}
	if c.Agents.LockTimeout == 0 {
		c.Agents.LockTimeout = Duration(10 * time.Second)
	}
	if c.Reasoning.Client == "" {
		c.Reasoning.Client = "cli"
	}
	if c.Reasoning.Model == "" {
		c.Reasoning.Model = "sonnet"
	}
	if c.Reasoning.Timeout == 0 {
		c.Reasoning.Timeout = Duration(120 * time.Second)
	}
}

// Validate applies defaults and performs strict validation on the
// configuration.
func (c *Config) Validate() error {
	// Required: version
	if c.Version != 1 {
		return fmt.Errorf("unsupported version: %d (expected: 1)", c.Version)
	}

	c.applyDefaults()

	if c.Agents.MaxConcurrent < 1 {
		return fmt.Errorf("agents.max_concurrent must be >= 1, got %d", c.Agents.MaxConcurrent)
	}
	if c.Agents.HeartbeatInterval <= 0 {
		return fmt.Errorf("agents.heartbeat_interval must be positive")
	}
	if c.Agents.ReceivePoll <= 0 {
		return fmt.Errorf("agents.receive_poll must be positive")
	}
	if c.Agents.LockTimeout <= 0 {
		return fmt.Errorf("agents.lock_timeout must be positive")
	}

	if c.Reasoning.Client != "cli" && c.Reasoning.Client != "mock" {
		return fmt.Errorf("invalid reasoning.client: %s (must be 'cli' or 'mock')", c.Reasoning.Client)
	}
	if c.Reasoning.Timeout <= 0 {
		return fmt.Errorf("reasoning.timeout must be positive")
	}

	// Validate each custom role
	for name, role := range c.Roles {
		if err := role.Validate(name); err != nil {
			return err
		}
	}

	return nil
}

// Validate performs validation on a single role configuration.
func (r *RoleConfig) Validate(name string) error {
	if name == "" {
		return fmt.Errorf("role name cannot be empty")
	}

	if reservedRoleNames[name] {
		return fmt.Errorf("role '%s': name is reserved", name)
	}

	// Required: description
	if r.Description == "" {
		return fmt.Errorf("role '%s': description is required", name)
	}

	// Required: system prompt
	if r.SystemPrompt == "" {
		return fmt.Errorf("role '%s': system_prompt is required", name)
	}

	return nil
}

// Load reads and validates mugen.yml from the specified path. Unknown
// fields are rejected so typos surface at load time instead of silently
// falling back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
