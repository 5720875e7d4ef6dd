// SPDX-License-Identifier: AGPL-3.0-only
package model

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolDefinition is a provider-agnostic tool descriptor as reported by the
// tool server. InputSchema is an opaque JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ToolCall represents a single tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON object
}

// ToolResult is the outcome of one ToolCall, correlated by ToolCallID.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Message is a provider-agnostic chat message.
//
// Tool results are framed differently per provider: a user message whose
// ToolResults hold one block per result, or one RoleTool message per result
// carrying ToolCallID and Name.
type Message struct {
	Role        Role
	Content     string       // text content
	ToolCalls   []ToolCall   // tool calls requested by the assistant
	ToolResults []ToolResult // tool result blocks inside a user message
	ToolCallID  string       // set when Role == RoleTool
	Name        string       // tool name when Role == RoleTool
	IsError     bool         // the RoleTool result reports a failure
}

// HasToolCalls reports whether the message requests any tool invocation.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}
