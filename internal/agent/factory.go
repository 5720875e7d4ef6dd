// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/isol178/agent-omoikane/internal/config"
	"github.com/isol178/agent-omoikane/internal/errors"
	openaiopt "github.com/openai/openai-go/option"
)

// NewChatProvider builds the ChatProvider selected by cfg.Provider.Name. An
// unknown provider name fails here, never later in the loop.
func NewChatProvider(cfg *config.Config) (ChatProvider, error) {
	profile, err := ParseProfile(cfg.Provider.Name)
	if err != nil {
		return nil, err
	}
	apiKey := cfg.ProviderAPIKey()
	switch profile {
	case ProfileAnthropic:
		if apiKey == "" {
			return nil, &errors.ConfigurationError{Reason: "Anthropic API key is not set in configuration"}
		}
		var opts []anthropicopt.RequestOption
		if cfg.Provider.RequestTimeout > 0 {
			opts = append(opts, anthropicopt.WithRequestTimeout(cfg.Provider.RequestTimeout))
		}
		return NewAnthropicProvider(apiKey, cfg.Provider.MaxTokens, opts...), nil
	default:
		if apiKey == "" {
			return nil, &errors.ConfigurationError{Reason: "OpenAI API key is not set in configuration"}
		}
		var opts []openaiopt.RequestOption
		if cfg.Provider.RequestTimeout > 0 {
			opts = append(opts, openaiopt.WithRequestTimeout(cfg.Provider.RequestTimeout))
		}
		return NewOpenAIProvider(apiKey, cfg.Provider.BaseURL, cfg.Provider.MaxTokens, opts...), nil
	}
}

// OptionsFromConfig maps the agent section of cfg onto loop Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Model:             cfg.ResolvedModel(),
		SystemPrompt:      cfg.Agent.SystemPrompt,
		MaxRounds:         cfg.Agent.MaxRounds,
		ToolErrors:        ToolErrorPolicy(cfg.Agent.ToolErrorPolicy),
		AnnotateToolCalls: cfg.Agent.AnnotateToolCalls,
	}
}
