// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/isol178/agent-omoikane/internal/config"
)

const version = "1.0.0"

// flags holds the persistent command line options shared by every command.
type flags struct {
	configPath    string
	envFile       string
	mcpConfigPath string
	provider      string
	model         string
	baseURL       string
	maxTokens     int64
	maxRounds     int
	toolErrors    string
	noAnnotations bool
	systemPrompt  string
	logLevel      string
	logFile       string
	dbPath        string
	noHistory     bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "omoikane",
		Short:         "Chat with an LLM that can call the tools of an MCP server",
		Long:          "omoikane connects to an MCP tool server over stdio and lets an Anthropic or OpenAI model answer queries with its tools.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	bindFlags(root.PersistentFlags(), f)

	root.AddCommand(newChatCmd(f))
	root.AddCommand(newAskCmd(f))
	root.AddCommand(newWatchCmd(f))
	root.AddCommand(newToolsCmd(f))
	root.AddCommand(newHistoryCmd(f))

	return root
}

func bindFlags(pf *pflag.FlagSet, f *flags) {
	pf.StringVarP(&f.configPath, "config", "c", "omoikane.yaml", "YAML settings file")
	pf.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.StringVarP(&f.mcpConfigPath, "mcp-config", "m", "", "MCP server catalog (default: mcp_client_config.json)")
	pf.StringVarP(&f.provider, "provider", "p", "", "LLM provider: anthropic or openai (default: anthropic)")
	pf.StringVar(&f.model, "model", "", "Model name (default depends on the provider)")
	pf.StringVar(&f.baseURL, "base-url", "", "Custom base URL for OpenAI-compatible endpoints")
	pf.Int64Var(&f.maxTokens, "max-tokens", 0, "Maximum tokens per completion (default: 1000)")
	pf.IntVar(&f.maxRounds, "max-rounds", 0, "Maximum provider calls per query (default: 20)")
	pf.StringVar(&f.toolErrors, "tool-errors", "", "What to do when a tool fails: report or fail (default: report)")
	pf.BoolVar(&f.noAnnotations, "no-annotations", false, "Leave tool call annotations out of answers")
	pf.StringVar(&f.systemPrompt, "system-prompt", "", "System prompt sent with every completion")
	pf.StringVar(&f.logLevel, "log-level", "", "Logging level: debug, info, warn, error, fatal")
	pf.StringVar(&f.logFile, "log-file", "", "Log file path (default: stderr)")
	pf.StringVar(&f.dbPath, "db-path", "", "Path to the query history database (default: ~/.omoikane/history.db)")
	pf.BoolVar(&f.noHistory, "no-history", false, "Do not record query history")
}

// loadConfig builds the configuration: defaults, then the YAML file, then the
// environment (after loading the dotenv file), then command line flags.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f.envFile, err)
		}
	}

	cfg := config.DefaultConfig()
	if err := config.LoadFile(cfg, f.configPath); err != nil {
		return nil, err
	}
	config.FromEnv(cfg)
	applyFlags(cmd, f, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("mcp-config") {
		cfg.MCP.ConfigFilePath = f.mcpConfigPath
	}
	if fs.Changed("provider") {
		cfg.Provider.Name = f.provider
	}
	if fs.Changed("model") {
		cfg.Provider.Model = f.model
	}
	if fs.Changed("base-url") {
		cfg.Provider.BaseURL = f.baseURL
	}
	if fs.Changed("max-tokens") {
		cfg.Provider.MaxTokens = f.maxTokens
	}
	if fs.Changed("max-rounds") {
		cfg.Agent.MaxRounds = f.maxRounds
	}
	if fs.Changed("tool-errors") {
		cfg.Agent.ToolErrorPolicy = f.toolErrors
	}
	if fs.Changed("no-annotations") {
		cfg.Agent.AnnotateToolCalls = !f.noAnnotations
	}
	if fs.Changed("system-prompt") {
		cfg.Agent.SystemPrompt = f.systemPrompt
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if fs.Changed("log-file") {
		cfg.Logging.FilePath = f.logFile
	}
	if fs.Changed("db-path") {
		cfg.Store.DBPath = f.dbPath
	}
	if fs.Changed("no-history") {
		cfg.Store.Disabled = f.noHistory
	}
}
