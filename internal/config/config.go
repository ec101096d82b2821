package config

import (
	"fmt"

	"github.com/harun/nalar/internal/logger"
)

// Config is the top-level nalar configuration.
type Config struct {
	// Provider selects the model client: "anthropic" or "openai".
	Provider string `json:"provider" mapstructure:"provider"`

	// Model is the provider model identifier.
	Model string `json:"model" mapstructure:"model"`

	// APIKey authenticates against the selected provider.
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// Agent holds the turn loop budgets and prompt.
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Events holds the persistence sink settings.
	Events EventsConfig `json:"events" mapstructure:"events"`

	// Logging configures the root logger.
	Logging logger.Config `json:"logging" mapstructure:"logging"`
}

// AgentConfig bounds one agent run.
type AgentConfig struct {
	MaxTurns           int    `json:"max_turns" mapstructure:"max_turns"`
	MaxOutputTokens    int    `json:"max_output_tokens" mapstructure:"max_output_tokens"`
	ContextTokenBudget int    `json:"context_token_budget" mapstructure:"context_token_budget"`
	SystemPrompt       string `json:"system_prompt" mapstructure:"system_prompt"`
}

// EventsConfig locates the append-only event database.
type EventsConfig struct {
	DBPath string `json:"db_path" mapstructure:"db_path"`
}

// DefaultConfig returns the defaults used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Provider: "anthropic",
		Model:    "claude-sonnet-4-20250514",
		Agent: AgentConfig{
			MaxTurns:           200,
			MaxOutputTokens:    8192,
			ContextTokenBudget: 120000,
		},
		Events: EventsConfig{
			DBPath: "", // resolved by the loader under the user's home
		},
		Logging: logger.DefaultConfig(),
	}
}

// Validate checks the configuration before any run starts.
func (c *Config) Validate() error {
	switch c.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api key cannot be empty")
	}
	if c.Agent.MaxTurns < 0 {
		return fmt.Errorf("max turns cannot be negative")
	}
	if c.Agent.MaxOutputTokens < 0 {
		return fmt.Errorf("max output tokens cannot be negative")
	}
	if c.Agent.ContextTokenBudget < 0 {
		return fmt.Errorf("context token budget cannot be negative")
	}
	return nil
}
