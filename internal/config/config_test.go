package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "agent.toml")
	os.WriteFile(configPath, []byte(`
[agent]
name = "Aigent"
user_name = "Alice"
workspace_path = "/workspace"

[llm]
provider = "anthropic"
ollama_model = "llama3"
openrouter_model = "anthropic/claude-3.5-sonnet"

[memory]
night_sleep_start_hour = 23
night_sleep_end_hour = 7
`), 0644)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Agent.UserName != "Alice" {
		t.Errorf("expected user_name Alice, got %s", cfg.Agent.UserName)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected provider anthropic, got %s", cfg.LLM.Provider)
	}
	if cfg.Memory.NightSleepStartHour != 23 {
		t.Errorf("expected night_sleep_start_hour 23, got %d", cfg.Memory.NightSleepStartHour)
	}
	// Defaults not present in the file must survive.
	if cfg.Daemon.SocketPath != "/tmp/aigent.sock" {
		t.Errorf("expected default socket path, got %s", cfg.Daemon.SocketPath)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile("/nonexistent/agent.toml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://example.local:11434")
	t.Setenv("AIGENT_SLEEP_INTERVAL_HOURS", "3")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "agent.toml")
	os.WriteFile(configPath, []byte("[agent]\nname = \"Aigent\"\n"), 0644)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.LLM.OllamaBaseURL != "http://example.local:11434" {
		t.Errorf("expected env override for ollama base url, got %s", cfg.LLM.OllamaBaseURL)
	}
	if cfg.Memory.SleepIntervalHours != 3 {
		t.Errorf("expected sleep interval override 3, got %d", cfg.Memory.SleepIntervalHours)
	}
}
