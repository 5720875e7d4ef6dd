// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/isol178/agent-omoikane/internal/errors"
	"github.com/isol178/agent-omoikane/internal/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// ToolSpecs is a tool catalog in the shape one profile's API expects. Only
// the slice matching Profile is populated.
type ToolSpecs struct {
	Profile   Profile
	Anthropic []anthropic.ToolUnionParam
	OpenAI    []openai.ChatCompletionToolParam
}

// Len returns the number of tools in the catalog.
func (s ToolSpecs) Len() int {
	switch s.Profile {
	case ProfileAnthropic:
		return len(s.Anthropic)
	case ProfileOpenAI:
		return len(s.OpenAI)
	}
	return 0
}

// FormatTools converts provider-agnostic tool definitions into the catalog
// layout of profile. Names and schemas are carried over unmodified.
func FormatTools(tools []model.ToolDefinition, profile Profile) (ToolSpecs, error) {
	switch profile {
	case ProfileAnthropic:
		return ToolSpecs{Profile: profile, Anthropic: toAnthropicTools(tools)}, nil
	case ProfileOpenAI:
		return ToolSpecs{Profile: profile, OpenAI: toOpenAITools(tools)}, nil
	default:
		return ToolSpecs{}, fmt.Errorf("%w: %s", errors.ErrUnknownProfile, profile)
	}
}

// toAnthropicTools converts provider-agnostic tool definitions to Anthropic SDK
// tool params.
func toAnthropicTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropicInputSchema(t.InputSchema),
			},
		}
	}
	return out
}

// anthropicInputSchema splits a JSON-schema map into the SDK's typed fields.
// Keys the SDK does not model travel as extra fields so the schema reaches
// the API intact.
func anthropicInputSchema(schema map[string]interface{}) anthropic.ToolInputSchemaParam {
	var required []string
	switch req := schema["required"].(type) {
	case []interface{}:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
	case []string:
		// Already typed (e.g. built in Go rather than decoded from JSON).
		required = append(required, req...)
	}

	var extra map[string]interface{}
	for k, v := range schema {
		switch k {
		case "type", "properties", "required":
			continue
		}
		if extra == nil {
			extra = make(map[string]interface{})
		}
		extra[k] = v
	}

	in := anthropic.ToolInputSchemaParam{
		Required:    required,
		ExtraFields: extra,
	}
	// Absent properties stay absent on the wire.
	if props, ok := schema["properties"]; ok {
		in.Properties = props
	}
	return in
}

// toOpenAITools converts provider-agnostic tool definitions to the OpenAI SDK
// representation.
func toOpenAITools(tools []model.ToolDefinition) []openai.ChatCompletionToolParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		out[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.InputSchema),
			},
		}
	}
	return out
}
