// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/isol178/agent-omoikane/internal/errors"
	"github.com/isol178/agent-omoikane/internal/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider implements ChatProvider using the OpenAI SDK.
// It supports any OpenAI-compatible endpoint (OpenAI, Ollama, vLLM, Groq, etc.)
// via a configurable base URL.
type OpenAIProvider struct {
	client    *openai.Client
	maxTokens int64
}

// NewOpenAIProvider creates a new OpenAI-backed ChatProvider.
// If baseURL is non-empty it overrides the default API endpoint, which allows
// pointing at any OpenAI-compatible server.
func NewOpenAIProvider(apiKey string, baseURL string, maxTokens int64, opts ...option.RequestOption) *OpenAIProvider {
	all := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	all = append(all, opts...)
	client := openai.NewClient(all...)
	return &OpenAIProvider{client: &client, maxTokens: maxTokens}
}

func (p *OpenAIProvider) Profile() Profile { return ProfileOpenAI }

func (p *OpenAIProvider) CreateCompletion(ctx context.Context, modelName string, systemMsg string, messages []model.Message, tools ToolSpecs) (*model.Message, error) {
	oaiMsgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemMsg != "" {
		oaiMsgs = append(oaiMsgs, openai.SystemMessage(systemMsg))
	}
	oaiMsgs = append(oaiMsgs, toOpenAIMessages(messages)...)

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelName),
		Messages: oaiMsgs,
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(p.maxTokens)
	}
	if len(tools.OpenAI) > 0 {
		params.Tools = tools.OpenAI
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &errors.ProviderError{
			Provider: string(ProfileOpenAI),
			Kind:     errors.ProviderUnknown,
			Err:      fmt.Errorf("completion returned no choices"),
		}
	}
	return fromOpenAIMessage(resp.Choices[0].Message), nil
}

func wrapOpenAIError(err error) error {
	pe := &errors.ProviderError{Provider: string(ProfileOpenAI), Kind: errors.ProviderUnknown, Err: err}
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		pe.StatusCode = apiErr.StatusCode
		pe.Kind = errors.KindForStatus(apiErr.StatusCode)
	}
	return pe
}

// toOpenAIMessages converts a transcript to OpenAI SDK message unions. A user
// message carrying tool result blocks expands into one tool message per
// result followed by its text, if any.
func toOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleUser && len(m.ToolResults) > 0 {
			for _, r := range m.ToolResults {
				out = append(out, openai.ToolMessage(r.Content, r.ToolCallID))
			}
			if m.Content == "" {
				continue
			}
		}
		out = append(out, toOpenAIMessage(m))
	}
	return out
}

// toOpenAIMessage converts a provider-agnostic Message to an OpenAI SDK message
// union.
func toOpenAIMessage(m model.Message) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case model.RoleTool:
		return openai.ToolMessage(m.Content, m.ToolCallID)
	case model.RoleUser:
		return openai.UserMessage(m.Content)
	default: // assistant
		asst := openai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = openai.String(m.Content)
		}
		if len(m.ToolCalls) > 0 {
			asst.ToolCalls = make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				args := tc.Arguments
				if args == "" {
					args = "{}"
				}
				asst.ToolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: args,
					},
				}
			}
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
	}
}

// fromOpenAIMessage converts an OpenAI SDK response message to the
// provider-agnostic Message type.
func fromOpenAIMessage(m openai.ChatCompletionMessage) *model.Message {
	msg := &model.Message{
		Role:    model.RoleAssistant,
		Content: m.Content,
	}
	if len(m.ToolCalls) > 0 {
		msg.ToolCalls = make([]model.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			msg.ToolCalls[i] = model.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
		}
	}
	return msg
}
