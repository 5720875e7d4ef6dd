// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/isol178/agent-omoikane/internal/errors"
	"github.com/isol178/agent-omoikane/internal/model"
)

// AnthropicProvider implements ChatProvider using the Anthropic SDK.
type AnthropicProvider struct {
	client    *anthropic.Client
	maxTokens int64
}

// NewAnthropicProvider creates a new Anthropic-backed ChatProvider. SDK
// retries are disabled; retry policy belongs to the caller.
func NewAnthropicProvider(apiKey string, maxTokens int64, opts ...option.RequestOption) *AnthropicProvider {
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := anthropic.NewClient(all...)
	return &AnthropicProvider{client: &client, maxTokens: maxTokens}
}

func (p *AnthropicProvider) Profile() Profile { return ProfileAnthropic }

func (p *AnthropicProvider) CreateCompletion(ctx context.Context, modelName string, systemMsg string, messages []model.Message, tools ToolSpecs) (*model.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		Messages:  toAnthropicMessages(messages),
		MaxTokens: p.maxTokens,
	}
	if systemMsg != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemMsg},
		}
	}
	if len(tools.Anthropic) > 0 {
		params.Tools = tools.Anthropic
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapAnthropicError(err)
	}
	return fromAnthropicMessage(resp), nil
}

func wrapAnthropicError(err error) error {
	pe := &errors.ProviderError{Provider: string(ProfileAnthropic), Kind: errors.ProviderUnknown, Err: err}
	var apiErr *anthropic.Error
	if stderrors.As(err, &apiErr) {
		pe.StatusCode = apiErr.StatusCode
		pe.Kind = errors.KindForStatus(apiErr.StatusCode)
	}
	return pe
}

// toAnthropicMessages converts provider-agnostic messages to Anthropic SDK
// message params.
//
// Anthropic's API requires:
//   - Only "user" and "assistant" roles (no "tool" role)
//   - Tool results are sent as user messages with ToolResultBlockParam content
//   - Assistant messages with tool calls use ToolUseBlockParam content
func toAnthropicMessages(messages []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case model.RoleUser:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolResults)+1)
			for _, r := range m.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(r.ToolCallID, r.Content, r.IsError))
			}
			if m.Content != "" || len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		case model.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		case model.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage("{}")
				if tc.Arguments != "" {
					input = json.RawMessage(tc.Arguments)
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out
}

// fromAnthropicMessage converts an Anthropic SDK response to the
// provider-agnostic Message type. Tool calls keep block order.
func fromAnthropicMessage(resp *anthropic.Message) *model.Message {
	msg := &model.Message{
		Role: model.RoleAssistant,
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if msg.Content != "" {
				msg.Content += "\n\n"
			}
			msg.Content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: string(tu.Input),
			})
		}
	}
	return msg
}
