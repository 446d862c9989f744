// Package config provides configuration loading for the aigent daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level daemon configuration, loaded from agent.toml.
type Config struct {
	Agent        AgentConfig        `toml:"agent"`
	LLM          LLMConfig          `toml:"llm"`
	Memory       MemoryConfig       `toml:"memory"`
	Safety       SafetyConfig       `toml:"safety"`
	Tools        ToolsConfig        `toml:"tools"`
	Daemon       DaemonConfig       `toml:"daemon"`
	Integrations IntegrationsConfig `toml:"integrations"`
	Git          GitConfig          `toml:"git"`
}

// ActiveModel returns the model name for whichever provider is configured
// as primary.
func (c *Config) ActiveModel() string {
	if strings.EqualFold(c.LLM.Provider, "openrouter") {
		return c.LLM.OpenRouterModel
	}
	return c.LLM.OllamaModel
}

// PrimaryProvider normalizes llm.provider to one of "ollama"/"openrouter",
// defaulting to "ollama" for any other value.
func (c *Config) PrimaryProvider() string {
	if strings.EqualFold(c.LLM.Provider, "openrouter") {
		return "openrouter"
	}
	return "ollama"
}

// AgentConfig identifies the agent and its working directory.
type AgentConfig struct {
	Name          string `toml:"name"`
	UserName      string `toml:"user_name"`
	WorkspacePath string `toml:"workspace_path"`
	ThinkingLevel string `toml:"thinking_level"`
}

// LLMConfig configures the primary/fallback LLM providers (C10).
type LLMConfig struct {
	Provider        string `toml:"provider"`
	OllamaModel     string `toml:"ollama_model"`
	OpenRouterModel string `toml:"openrouter_model"`
	OllamaBaseURL   string `toml:"ollama_base_url"`
	MaxRetries      int    `toml:"max_retries"`
	RetryBackoff    string `toml:"retry_backoff"`
}

// MemoryConfig configures the memory substrate and sleep scheduling (C1-C9, C15).
type MemoryConfig struct {
	AutoSleepTurnInterval   int    `toml:"auto_sleep_turn_interval"`
	AutoSleepMode           string `toml:"auto_sleep_mode"` // "interval" | "nightly"
	NightSleepStartHour     int    `toml:"night_sleep_start_hour"`
	NightSleepEndHour       int    `toml:"night_sleep_end_hour"`
	MultiAgentSleepBatch    int    `toml:"multi_agent_sleep_batch_size"`
	KVTierLimit             int    `toml:"kv_tier_limit"`
	Timezone                string `toml:"timezone"`
	ForgetEpisodicAfterDays int    `toml:"forget_episodic_after_days"`
	ForgetMinConfidence     float32 `toml:"forget_min_confidence"`
	ProactiveIntervalMin    int    `toml:"proactive_interval_minutes"`
	ProactiveDNDStartHour   int    `toml:"proactive_dnd_start_hour"`
	ProactiveDNDEndHour     int    `toml:"proactive_dnd_end_hour"`
	MaxBeliefsInPrompt      int    `toml:"max_beliefs_in_prompt"`
	ProactiveCooldownMin    int    `toml:"proactive_cooldown_minutes"`
	SleepIntervalHours      int    `toml:"sleep_interval_hours"`
}

// SafetyConfig gates tool execution (C11).
type SafetyConfig struct {
	ApprovalRequired    bool     `toml:"approval_required"`
	AllowShell          bool     `toml:"allow_shell"`
	AllowWASM           bool     `toml:"allow_wasm"`
	ToolAllowlist       []string `toml:"tool_allowlist"`
	ToolDenylist        []string `toml:"tool_denylist"`
	ApprovalExemptTools []string `toml:"approval_exempt_tools"`
}

// ToolsConfig configures specific tool integrations.
type ToolsConfig struct {
	ApprovalMode  string `toml:"approval_mode"` // safer | balanced | autonomous
	BraveAPIKey   string `toml:"brave_api_key"`
	GitAutoCommit bool   `toml:"git_auto_commit"`
	SandboxEnabled bool  `toml:"sandbox_enabled"`
}

// DaemonConfig configures the IPC server (C14).
type DaemonConfig struct {
	SocketPath string `toml:"socket_path"`
}

// IntegrationsConfig toggles external bridges (out of core scope; contract only).
type IntegrationsConfig struct {
	TelegramEnabled bool `toml:"telegram_enabled"`
}

// GitConfig scopes git-related tool capability.
type GitConfig struct {
	TrustedRepos      []string `toml:"trusted_repos"`
	TrustedWritePaths []string `toml:"trusted_write_paths"`
	AllowSystemRead   bool     `toml:"allow_system_read"`
}

// New returns a Config populated with the defaults named throughout spec §6.
func New() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:          "Aigent",
			ThinkingLevel: "auto",
		},
		LLM: LLMConfig{
			Provider:     "ollama",
			MaxRetries:   5,
			RetryBackoff: "60s",
		},
		Memory: MemoryConfig{
			AutoSleepMode:         "interval",
			SleepIntervalHours:    8,
			NightSleepStartHour:   22,
			NightSleepEndHour:     6,
			MultiAgentSleepBatch:  40,
			Timezone:              "UTC",
			ForgetEpisodicAfterDays: 30,
			ForgetMinConfidence:   0.3,
			ProactiveCooldownMin:  120,
		},
		Tools: ToolsConfig{
			ApprovalMode: "balanced",
		},
		Daemon: DaemonConfig{
			SocketPath: "/tmp/aigent.sock",
		},
	}
}

// Default is an alias for New.
func Default() *Config { return New() }

// LoadFile loads configuration from a TOML file, defaults first.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadDefault loads agent.toml from the current working directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: failed to get working directory: %w", err)
	}
	return LoadFile(filepath.Join(cwd, "agent.toml"))
}

// applyEnvOverrides applies the environment variables named in spec §6.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.LLM.OllamaBaseURL = v
	}
	if v := os.Getenv("BRAVE_API_KEY"); v != "" {
		cfg.Tools.BraveAPIKey = v
	}
	if v := os.Getenv("AIGENT_SLEEP_INTERVAL_HOURS"); v != "" {
		var hrs int
		if _, err := fmt.Sscanf(v, "%d", &hrs); err == nil && hrs > 0 {
			cfg.Memory.SleepIntervalHours = hrs
		}
	}
}
