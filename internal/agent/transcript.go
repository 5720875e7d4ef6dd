// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"fmt"

	"github.com/isol178/agent-omoikane/internal/model"
)

// Transcript is the append-only message list for one query. Tool results
// are framed according to the profile it was created for.
type Transcript struct {
	profile  Profile
	messages []model.Message
	pending  []model.ToolCall
}

// NewTranscript starts a transcript with a single user message.
func NewTranscript(profile Profile, query string) *Transcript {
	return &Transcript{
		profile:  profile,
		messages: []model.Message{{Role: model.RoleUser, Content: query}},
	}
}

// Messages returns the transcript in order. The caller must not modify it.
func (t *Transcript) Messages() []model.Message {
	return t.messages[:len(t.messages):len(t.messages)]
}

// Len returns the number of messages.
func (t *Transcript) Len() int { return len(t.messages) }

// Pending returns the tool calls still awaiting a result.
func (t *Transcript) Pending() []model.ToolCall {
	out := make([]model.ToolCall, len(t.pending))
	copy(out, t.pending)
	return out
}

// AppendAssistant records an assistant completion. Its tool calls become
// pending until their results are appended.
func (t *Transcript) AppendAssistant(msg model.Message) error {
	if len(t.pending) > 0 {
		return fmt.Errorf("transcript: %d tool calls still pending", len(t.pending))
	}
	msg.Role = model.RoleAssistant
	t.messages = append(t.messages, msg)
	t.pending = append(t.pending, msg.ToolCalls...)
	return nil
}

// AppendToolResult records the result of a pending tool call. The result is
// correlated to the call by ID regardless of what result.ToolCallID holds.
func (t *Transcript) AppendToolResult(call model.ToolCall, result model.ToolResult) error {
	idx := -1
	for i, p := range t.pending {
		if p.ID == call.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("transcript: no pending tool call with id %q", call.ID)
	}
	t.pending = append(t.pending[:idx], t.pending[idx+1:]...)
	result.ToolCallID = call.ID

	switch t.profile {
	case ProfileAnthropic:
		// All results answering one assistant turn share a single user message.
		if last := &t.messages[len(t.messages)-1]; last.Role == model.RoleUser && len(last.ToolResults) > 0 {
			last.ToolResults = append(last.ToolResults, result)
			return nil
		}
		t.messages = append(t.messages, model.Message{
			Role:        model.RoleUser,
			ToolResults: []model.ToolResult{result},
		})
	default:
		t.messages = append(t.messages, model.Message{
			Role:       model.RoleTool,
			Content:    result.Content,
			ToolCallID: call.ID,
			Name:       call.Name,
			IsError:    result.IsError,
		})
	}
	return nil
}

// ToolResults reads back every tool result in the order it was appended.
func (t *Transcript) ToolResults() []model.ToolResult {
	var out []model.ToolResult
	for _, m := range t.messages {
		switch {
		case m.Role == model.RoleUser && len(m.ToolResults) > 0:
			out = append(out, m.ToolResults...)
		case m.Role == model.RoleTool:
			out = append(out, model.ToolResult{ToolCallID: m.ToolCallID, Content: m.Content, IsError: m.IsError})
		}
	}
	return out
}
