// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/isol178/agent-omoikane/internal/errors"
	"gopkg.in/yaml.v3"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	ToolErrorsReport = "report"
	ToolErrorsFail   = "fail"
)

// Config holds the whole client configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Agent    AgentConfig    `yaml:"agent"`
	MCP      MCPConfig      `yaml:"mcp"`
	Logging  LoggingConfig  `yaml:"logging"`
	Store    StoreConfig    `yaml:"store"`
}

// ProviderConfig selects and authenticates the LLM provider.
type ProviderConfig struct {
	Name            string        `yaml:"name"`
	Model           string        `yaml:"model"`
	MaxTokens       int64         `yaml:"max_tokens"`
	APIKey          string        `yaml:"api_key"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	BaseURL         string        `yaml:"base_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// AgentConfig tunes the orchestration loop.
type AgentConfig struct {
	MaxRounds         int           `yaml:"max_rounds"`
	ToolErrorPolicy   string        `yaml:"tool_error_policy"`
	AnnotateToolCalls bool          `yaml:"annotate_tool_calls"`
	SystemPrompt      string        `yaml:"system_prompt"`
	QueryTimeout      time.Duration `yaml:"query_timeout"` // watch mode only
}

// MCPConfig locates the tool server catalog and tunes the handshake.
type MCPConfig struct {
	ConfigFilePath   string        `yaml:"config_file"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ClientName       string        `yaml:"client_name"`
	ClientVersion    string        `yaml:"client_version"`
}

// LoggingConfig controls log level and destination.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file"`
}

// StoreConfig controls the query history database.
type StoreConfig struct {
	DBPath   string `yaml:"db_path"`
	Disabled bool   `yaml:"disabled"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Provider: ProviderConfig{
			Name:           ProviderAnthropic,
			MaxTokens:      1000,
			RequestTimeout: 2 * time.Minute,
		},
		Agent: AgentConfig{
			MaxRounds:         20,
			ToolErrorPolicy:   ToolErrorsReport,
			AnnotateToolCalls: true,
			QueryTimeout:      5 * time.Minute,
		},
		MCP: MCPConfig{
			ConfigFilePath:   "mcp_client_config.json",
			HandshakeTimeout: 30 * time.Second,
			ClientName:       "omoikane",
			ClientVersion:    "1.0.0",
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
		Store: StoreConfig{
			DBPath: filepath.Join(home, ".omoikane", "history.db"),
		},
	}
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	default:
		return "claude-3-5-sonnet-20241022"
	}
}

// LoadFile overlays the YAML settings file at path onto cfg. A missing file
// is not an error.
func LoadFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return &errors.ConfigurationError{Reason: "parse " + path, Err: err}
	}
	return nil
}

// FromEnv overlays environment variables onto cfg.
func FromEnv(cfg *Config) {
	setString(&cfg.Provider.Name, "OMOIKANE_PROVIDER")
	setString(&cfg.Provider.Model, "OMOIKANE_MODEL")
	setString(&cfg.Provider.APIKey, "OMOIKANE_API_KEY")
	setString(&cfg.Provider.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Provider.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.Provider.BaseURL, "OPENAI_BASE_URL")
	if v := os.Getenv("OMOIKANE_MAX_TOKENS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Provider.MaxTokens = n
		}
	}

	if v := os.Getenv("OMOIKANE_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxRounds = n
		}
	}
	setString(&cfg.Agent.ToolErrorPolicy, "OMOIKANE_TOOL_ERRORS")
	if v := os.Getenv("OMOIKANE_ANNOTATE_TOOL_CALLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Agent.AnnotateToolCalls = b
		}
	}

	if v := os.Getenv("OMOIKANE_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Agent.QueryTimeout = d
		}
	}

	setString(&cfg.MCP.ConfigFilePath, "OMOIKANE_MCP_CONFIG")
	if v := os.Getenv("OMOIKANE_HANDSHAKE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.MCP.HandshakeTimeout = d
		}
	}

	setString(&cfg.Logging.Level, "OMOIKANE_LOG_LEVEL")
	setString(&cfg.Logging.FilePath, "OMOIKANE_LOG_FILE")
	setString(&cfg.Store.DBPath, "OMOIKANE_DB_PATH")
	if v := os.Getenv("OMOIKANE_NO_HISTORY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Store.Disabled = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// ProviderAPIKey returns the key for the configured provider, falling back
// to the generic key.
func (c *Config) ProviderAPIKey() string {
	var key string
	switch strings.ToLower(c.Provider.Name) {
	case ProviderAnthropic:
		key = c.Provider.AnthropicAPIKey
	case ProviderOpenAI:
		key = c.Provider.OpenAIAPIKey
	}
	if key == "" {
		key = c.Provider.APIKey
	}
	return key
}

// ResolvedModel returns the configured model or the provider default.
func (c *Config) ResolvedModel() string {
	if c.Provider.Model != "" {
		return c.Provider.Model
	}
	return DefaultModel(c.Provider.Name)
}

// Validate checks the configuration for values the client cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Provider.Name) {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return errors.InvalidInput(fmt.Sprintf("unknown provider: %s", c.Provider.Name))
	}
	if c.Provider.MaxTokens <= 0 {
		return errors.InvalidInput("provider max_tokens must be positive")
	}
	if c.Agent.MaxRounds <= 0 {
		return errors.InvalidInput("agent max_rounds must be positive")
	}
	switch c.Agent.ToolErrorPolicy {
	case ToolErrorsReport, ToolErrorsFail:
	default:
		return errors.InvalidInput(fmt.Sprintf("unknown tool error policy: %s", c.Agent.ToolErrorPolicy))
	}
	if c.MCP.HandshakeTimeout <= 0 {
		return errors.InvalidInput("mcp handshake_timeout must be positive")
	}
	return nil
}
