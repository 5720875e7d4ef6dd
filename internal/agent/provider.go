// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/isol178/agent-omoikane/internal/errors"
	"github.com/isol178/agent-omoikane/internal/model"
)

// Profile names one of the supported LLM wire formats.
type Profile string

const (
	// ProfileAnthropic returns typed content blocks and expects tool results
	// as tool_result blocks inside a user message.
	ProfileAnthropic Profile = "anthropic"
	// ProfileOpenAI returns a tool_calls list on the assistant message and
	// expects one tool-role message per result.
	ProfileOpenAI Profile = "openai"
)

// ParseProfile validates a provider name. The match is case-insensitive.
func ParseProfile(name string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(name))); p {
	case ProfileAnthropic, ProfileOpenAI:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %s", errors.ErrUnknownProfile, name)
	}
}

// ChatProvider abstracts a chat-completion backend so the agent loop can work
// with either profile.
type ChatProvider interface {
	// Profile reports the wire format this provider speaks.
	Profile() Profile

	// CreateCompletion sends one chat completion request and returns the
	// assistant's response normalized to text plus tool calls in provider
	// order. systemMsg is optional (empty string to omit). Failures are
	// *errors.ProviderError and are never retried here.
	CreateCompletion(ctx context.Context, modelName string, systemMsg string, messages []model.Message, tools ToolSpecs) (*model.Message, error)
}
