package agent

import (
	"os"
	"testing"
	"time"
)

// agentEnvVars is every environment variable LoadConfig reads.
var agentEnvVars = []string{
	"MUGEN_INSTANCE_NAME",
	"MUGEN_AGENT_ID",
	"MUGEN_AGENT_ROLE",
	"REDIS_URL",
	"MUGEN_WORKING_DIR",
	"MUGEN_HEARTBEAT_INTERVAL",
	"MUGEN_RECEIVE_POLL",
	"MUGEN_LOCK_TIMEOUT",
	"MUGEN_REASONER",
	"MUGEN_REASONING_MODEL",
	"MUGEN_REASONING_TIMEOUT",
	"MUGEN_ROLE_DESCRIPTION",
	"MUGEN_ROLE_SYSTEM_PROMPT",
	"MUGEN_ROLE_TOOLS",
}

// clearAgentEnv unsets all agent environment variables so tests start from
// a clean slate.
func clearAgentEnv() {
	for _, v := range agentEnvVars {
		os.Unsetenv(v)
	}
}

func setRequiredEnv() {
	os.Setenv("MUGEN_INSTANCE_NAME", "test-instance")
	os.Setenv("MUGEN_AGENT_ID", "explorer-1")
	os.Setenv("MUGEN_AGENT_ROLE", "explorer")
	os.Setenv("REDIS_URL", "redis://localhost:6379")
}

func TestLoadConfig_Success(t *testing.T) {
	clearAgentEnv()
	setRequiredEnv()
	os.Setenv("MUGEN_WORKING_DIR", "/workspace")
	os.Setenv("MUGEN_HEARTBEAT_INTERVAL", "500ms")
	os.Setenv("MUGEN_RECEIVE_POLL", "2s")
	os.Setenv("MUGEN_LOCK_TIMEOUT", "30s")
	os.Setenv("MUGEN_REASONER", "mock")
	os.Setenv("MUGEN_REASONING_MODEL", "opus")
	os.Setenv("MUGEN_REASONING_TIMEOUT", "3m")
	defer clearAgentEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.InstanceName != "test-instance" {
		t.Errorf("Expected InstanceName='test-instance', got '%s'", cfg.InstanceName)
	}
	if cfg.AgentID != "explorer-1" {
		t.Errorf("Expected AgentID='explorer-1', got '%s'", cfg.AgentID)
	}
	if cfg.Role != "explorer" {
		t.Errorf("Expected Role='explorer', got '%s'", cfg.Role)
	}
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Errorf("Expected RedisURL='redis://localhost:6379', got '%s'", cfg.RedisURL)
	}
	if cfg.WorkingDir != "/workspace" {
		t.Errorf("Expected WorkingDir='/workspace', got '%s'", cfg.WorkingDir)
	}
	if cfg.HeartbeatInterval != 500*time.Millisecond {
		t.Errorf("Expected HeartbeatInterval=500ms, got %v", cfg.HeartbeatInterval)
	}
	if cfg.ReceivePoll != 2*time.Second {
		t.Errorf("Expected ReceivePoll=2s, got %v", cfg.ReceivePoll)
	}
	if cfg.LockTimeout != 30*time.Second {
		t.Errorf("Expected LockTimeout=30s, got %v", cfg.LockTimeout)
	}
	if cfg.Reasoner != "mock" {
		t.Errorf("Expected Reasoner='mock', got '%s'", cfg.Reasoner)
	}
	if cfg.ReasoningModel != "opus" {
		t.Errorf("Expected ReasoningModel='opus', got '%s'", cfg.ReasoningModel)
	}
	if cfg.ReasoningTimeout != 3*time.Minute {
		t.Errorf("Expected ReasoningTimeout=3m, got %v", cfg.ReasoningTimeout)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearAgentEnv()
	setRequiredEnv()
	defer clearAgentEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cfg.WorkingDir != "." {
		t.Errorf("Expected default WorkingDir='.', got '%s'", cfg.WorkingDir)
	}
	if cfg.HeartbeatInterval != 2*time.Second {
		t.Errorf("Expected default HeartbeatInterval=2s, got %v", cfg.HeartbeatInterval)
	}
	if cfg.ReceivePoll != time.Second {
		t.Errorf("Expected default ReceivePoll=1s, got %v", cfg.ReceivePoll)
	}
	if cfg.LockTimeout != 10*time.Second {
		t.Errorf("Expected default LockTimeout=10s, got %v", cfg.LockTimeout)
	}
	if cfg.Reasoner != "cli" {
		t.Errorf("Expected default Reasoner='cli', got '%s'", cfg.Reasoner)
	}
	if cfg.ReasoningModel != "sonnet" {
		t.Errorf("Expected default ReasoningModel='sonnet', got '%s'", cfg.ReasoningModel)
	}
	if cfg.ReasoningTimeout != 120*time.Second {
		t.Errorf("Expected default ReasoningTimeout=120s, got %v", cfg.ReasoningTimeout)
	}
}

func TestLoadConfig_MissingInstanceName(t *testing.T) {
	clearAgentEnv()
	setRequiredEnv()
	os.Unsetenv("MUGEN_INSTANCE_NAME")
	defer clearAgentEnv()

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("Expected error for missing MUGEN_INSTANCE_NAME, got nil")
	}

	expected := "MUGEN_INSTANCE_NAME environment variable is required"
	if err.Error() != expected {
		t.Errorf("Expected error '%s', got '%s'", expected, err.Error())
	}
}

func TestLoadConfig_MissingAgentID(t *testing.T) {
	clearAgentEnv()
	setRequiredEnv()
	os.Unsetenv("MUGEN_AGENT_ID")
	defer clearAgentEnv()

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("Expected error for missing MUGEN_AGENT_ID, got nil")
	}

	expected := "MUGEN_AGENT_ID environment variable is required"
	if err.Error() != expected {
		t.Errorf("Expected error '%s', got '%s'", expected, err.Error())
	}
}

func TestLoadConfig_MissingRole(t *testing.T) {
	clearAgentEnv()
	setRequiredEnv()
	os.Unsetenv("MUGEN_AGENT_ROLE")
	defer clearAgentEnv()

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("Expected error for missing MUGEN_AGENT_ROLE, got nil")
	}
}

func TestLoadConfig_MissingRedisURL(t *testing.T) {
	clearAgentEnv()
	setRequiredEnv()
	os.Unsetenv("REDIS_URL")
	defer clearAgentEnv()

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("Expected error for missing REDIS_URL, got nil")
	}

	expected := "REDIS_URL environment variable is required"
	if err.Error() != expected {
		t.Errorf("Expected error '%s', got '%s'", expected, err.Error())
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearAgentEnv()
	setRequiredEnv()
	os.Setenv("MUGEN_HEARTBEAT_INTERVAL", "not-a-duration")
	defer clearAgentEnv()

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("Expected error for invalid MUGEN_HEARTBEAT_INTERVAL, got nil")
	}
}

func TestLoadConfig_InvalidReasoner(t *testing.T) {
	clearAgentEnv()
	setRequiredEnv()
	os.Setenv("MUGEN_REASONER", "carrier-pigeon")
	defer clearAgentEnv()

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("Expected error for invalid MUGEN_REASONER, got nil")
	}
}

func TestLoadConfig_RoleTools(t *testing.T) {
	clearAgentEnv()
	setRequiredEnv()
	os.Setenv("MUGEN_AGENT_ROLE", "java-agent")
	os.Setenv("MUGEN_ROLE_SYSTEM_PROMPT", "You are a Java expert.")
	os.Setenv("MUGEN_ROLE_TOOLS", `["Read","Write","Bash"]`)
	defer clearAgentEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(cfg.RoleTools) != 3 {
		t.Fatalf("Expected 3 tools, got %d", len(cfg.RoleTools))
	}
	if cfg.RoleTools[0] != "Read" || cfg.RoleTools[1] != "Write" || cfg.RoleTools[2] != "Bash" {
		t.Errorf("Expected tools [Read Write Bash], got %v", cfg.RoleTools)
	}
}

func TestLoadConfig_InvalidRoleTools(t *testing.T) {
	clearAgentEnv()
	setRequiredEnv()
	os.Setenv("MUGEN_ROLE_TOOLS", "Read,Write")
	defer clearAgentEnv()

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("Expected error for non-JSON MUGEN_ROLE_TOOLS, got nil")
	}
}

func TestResolveRole_Builtins(t *testing.T) {
	for _, name := range []string{"explorer", "planner", "executor"} {
		role, err := ResolveRole(&Config{Role: name})
		if err != nil {
			t.Fatalf("Expected no error resolving %s, got: %v", name, err)
		}
		if role.Name() != name {
			t.Errorf("Expected role name '%s', got '%s'", name, role.Name())
		}
		if role.SystemPrompt() == "" {
			t.Errorf("Expected non-empty system prompt for %s", name)
		}
		if len(role.Tools()) == 0 {
			t.Errorf("Expected non-empty tool list for %s", name)
		}
	}
}

func TestResolveRole_Custom(t *testing.T) {
	role, err := ResolveRole(&Config{
		Role:             "java-agent",
		RoleSystemPrompt: "You are a Java expert.",
		RoleTools:        []string{"Read", "Write"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if role.Name() != "java-agent" {
		t.Errorf("Expected role name 'java-agent', got '%s'", role.Name())
	}
	if role.SystemPrompt() != "You are a Java expert." {
		t.Errorf("Unexpected system prompt: %s", role.SystemPrompt())
	}
	if len(role.Tools()) != 2 {
		t.Errorf("Expected 2 tools, got %v", role.Tools())
	}
}

func TestResolveRole_CustomDefaultTools(t *testing.T) {
	role, err := ResolveRole(&Config{
		Role:             "sql-agent",
		RoleSystemPrompt: "You write SQL.",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(role.Tools()) == 0 {
		t.Error("Expected custom role to fall back to default tools")
	}
}

func TestResolveRole_CustomWithoutPrompt(t *testing.T) {
	_, err := ResolveRole(&Config{Role: "java-agent"})
	if err == nil {
		t.Fatal("Expected error for custom role without system prompt, got nil")
	}
}
