// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/isol178/agent-omoikane/internal/errors"
	"github.com/isol178/agent-omoikane/internal/logging"
	"github.com/isol178/agent-omoikane/internal/model"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Options{Output: io.Discard, Level: logging.Fatal})
}

// eventLog records the order in which the loop talks to its collaborators.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// scriptedProvider replays one response per completion request.
type scriptedProvider struct {
	profile Profile
	steps   []func(messages []model.Message) (*model.Message, error)
	log     *eventLog

	calls    int
	seen     [][]model.Message
	seenTool []ToolSpecs
}

func (p *scriptedProvider) Profile() Profile { return p.profile }

func (p *scriptedProvider) CreateCompletion(_ context.Context, _ string, _ string, messages []model.Message, tools ToolSpecs) (*model.Message, error) {
	p.seen = append(p.seen, append([]model.Message(nil), messages...))
	p.seenTool = append(p.seenTool, tools)
	if p.log != nil {
		p.log.add("complete")
	}
	if p.calls >= len(p.steps) {
		return nil, fmt.Errorf("unexpected completion request %d", p.calls+1)
	}
	step := p.steps[p.calls]
	p.calls++
	return step(messages)
}

func reply(text string, calls ...model.ToolCall) func([]model.Message) (*model.Message, error) {
	return func([]model.Message) (*model.Message, error) {
		return &model.Message{Role: model.RoleAssistant, Content: text, ToolCalls: calls}, nil
	}
}

func fail(err error) func([]model.Message) (*model.Message, error) {
	return func([]model.Message) (*model.Message, error) { return nil, err }
}

// fakeTools is an in-process tool server.
type fakeTools struct {
	defs     []model.ToolDefinition
	handlers map[string]func(ctx context.Context, args map[string]interface{}) (string, error)
	log      *eventLog
	listErr  error

	mu       sync.Mutex
	inFlight int
	overlap  bool
}

func (f *fakeTools) ListTools(context.Context) ([]model.ToolDefinition, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.defs, nil
}

func (f *fakeTools) CallTool(ctx context.Context, call model.ToolCall) (model.ToolResult, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > 1 {
		f.overlap = true
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.log != nil {
		f.log.add("call:" + call.ID)
	}
	h, ok := f.handlers[call.Name]
	if !ok {
		return model.ToolResult{}, fmt.Errorf("unknown tool %s", call.Name)
	}
	args := map[string]interface{}{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return model.ToolResult{}, err
		}
	}
	out, err := h(ctx, args)
	if err != nil {
		return model.ToolResult{}, err
	}
	return model.ToolResult{ToolCallID: call.ID, Content: out}, nil
}

func mathTools(log *eventLog) *fakeTools {
	return &fakeTools{
		defs: []model.ToolDefinition{{
			Name:        "add",
			Description: "Add two numbers",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"a": map[string]interface{}{"type": "number"},
					"b": map[string]interface{}{"type": "number"},
				},
				"required": []interface{}{"a", "b"},
			},
		}},
		handlers: map[string]func(context.Context, map[string]interface{}) (string, error){
			"add": func(_ context.Context, args map[string]interface{}) (string, error) {
				a, _ := args["a"].(float64)
				b, _ := args["b"].(float64)
				return fmt.Sprintf("%g", a+b), nil
			},
		},
		log: log,
	}
}

// historyRecorder is an in-memory model.HistoryStore.
type historyRecorder struct {
	records []*model.QueryRecord
}

func (h *historyRecorder) SaveQuery(r *model.QueryRecord) error {
	h.records = append(h.records, r)
	return nil
}
func (h *historyRecorder) GetQuery(int64) (*model.QueryRecord, error)    { return nil, nil }
func (h *historyRecorder) ListQueries(int) ([]*model.QueryRecord, error) { return nil, nil }
func (h *historyRecorder) Close() error                                  { return nil }

func TestRunWithoutToolCalls(t *testing.T) {
	p := &scriptedProvider{profile: ProfileAnthropic, steps: []func([]model.Message) (*model.Message, error){
		reply("4"),
	}}
	a := New(p, mathTools(nil), Options{}, testLogger())

	answer, err := a.ProcessQuery(context.Background(), "What is 2+2?")
	if err != nil {
		t.Fatalf("ProcessQuery failed: %v", err)
	}
	if answer != "4" {
		t.Errorf("Expected answer '4', got %q", answer)
	}
	if p.calls != 1 {
		t.Fatalf("Expected 1 completion request, got %d", p.calls)
	}
	msgs := p.seen[0]
	if len(msgs) != 1 || msgs[0].Role != model.RoleUser || msgs[0].Content != "What is 2+2?" {
		t.Errorf("Expected transcript [user(query)], got %+v", msgs)
	}
	if p.seenTool[0].Len() != 1 || p.seenTool[0].Profile != ProfileAnthropic {
		t.Errorf("Expected anthropic catalog with 1 tool, got %+v", p.seenTool[0])
	}
}

func TestRunJoinsAnthropicTextBlocks(t *testing.T) {
	srv := anthropicServer(t, http.StatusOK, `{
		"id": "msg_2", "type": "message", "role": "assistant", "model": "claude-test",
		"content": [
			{"type": "text", "text": "First"},
			{"type": "text", "text": "Second"}
		],
		"stop_reason": "end_turn", "stop_sequence": null,
		"usage": {"input_tokens": 3, "output_tokens": 2}
	}`, nil)
	p := NewAnthropicProvider("test-key", 1000, option.WithBaseURL(srv.URL))
	a := New(p, mathTools(nil), Options{Model: "claude-test"}, testLogger())

	answer, err := a.ProcessQuery(context.Background(), "Say two things")
	if err != nil {
		t.Fatalf("ProcessQuery failed: %v", err)
	}
	if answer != "First\n\nSecond" {
		t.Errorf("Expected text blocks separated by a blank line, got %q", answer)
	}
}

func TestRunAddScenario(t *testing.T) {
	for _, profile := range []Profile{ProfileAnthropic, ProfileOpenAI} {
		t.Run(string(profile), func(t *testing.T) {
			call := model.ToolCall{ID: "call_1", Name: "add", Arguments: `{"a":2,"b":2}`}
			p := &scriptedProvider{profile: profile, steps: []func([]model.Message) (*model.Message, error){
				reply("", call),
				reply("The sum is 4"),
			}}
			a := New(p, mathTools(nil), Options{AnnotateToolCalls: true}, testLogger())

			out, err := a.Run(context.Background(), "Add 2 and 2")
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			want := "[Calling tool add with args {\"a\":2,\"b\":2}]\n\nThe sum is 4"
			if out.Answer != want {
				t.Errorf("Expected answer %q, got %q", want, out.Answer)
			}
			if out.Rounds != 2 {
				t.Errorf("Expected 2 rounds, got %d", out.Rounds)
			}
			if len(out.ToolCalls) != 1 || out.ToolCalls[0].Result != "4" {
				t.Fatalf("Expected one recorded call with result 4, got %+v", out.ToolCalls)
			}

			second := p.seen[1]
			if len(second) != 3 {
				t.Fatalf("Expected 3 messages in second request, got %d", len(second))
			}
			if !second[1].HasToolCalls() || second[1].ToolCalls[0].ID != "call_1" {
				t.Errorf("Expected assistant tool request, got %+v", second[1])
			}
			switch profile {
			case ProfileAnthropic:
				if second[2].Role != model.RoleUser || len(second[2].ToolResults) != 1 {
					t.Fatalf("Expected user message with one tool result, got %+v", second[2])
				}
				r := second[2].ToolResults[0]
				if r.ToolCallID != "call_1" || r.Content != "4" {
					t.Errorf("Unexpected tool result %+v", r)
				}
			case ProfileOpenAI:
				m := second[2]
				if m.Role != model.RoleTool || m.ToolCallID != "call_1" || m.Content != "4" || m.Name != "add" {
					t.Errorf("Unexpected tool message %+v", m)
				}
			}
		})
	}
}

func TestRunSequentialToolCalls(t *testing.T) {
	log := &eventLog{}
	tools := mathTools(log)
	p := &scriptedProvider{profile: ProfileAnthropic, log: log, steps: []func([]model.Message) (*model.Message, error){
		reply("Working on it",
			model.ToolCall{ID: "c1", Name: "add", Arguments: `{"a":1,"b":1}`},
			model.ToolCall{ID: "c2", Name: "add", Arguments: `{"a":2,"b":3}`},
		),
		reply("Done"),
	}}
	a := New(p, tools, Options{}, testLogger())

	answer, err := a.ProcessQuery(context.Background(), "two sums")
	if err != nil {
		t.Fatalf("ProcessQuery failed: %v", err)
	}
	if answer != "Working on it\n\nDone" {
		t.Errorf("Unexpected answer %q", answer)
	}

	want := []string{"complete", "call:c1", "call:c2", "complete"}
	got := log.list()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected events %v, got %v", want, got)
	}
	if tools.overlap {
		t.Error("Tool calls overlapped")
	}

	// Anthropic framing: both results in one user message, in call order.
	last := p.seen[1][2]
	if len(last.ToolResults) != 2 {
		t.Fatalf("Expected 2 merged tool results, got %d", len(last.ToolResults))
	}
	if last.ToolResults[0].ToolCallID != "c1" || last.ToolResults[0].Content != "2" {
		t.Errorf("Unexpected first result %+v", last.ToolResults[0])
	}
	if last.ToolResults[1].ToolCallID != "c2" || last.ToolResults[1].Content != "5" {
		t.Errorf("Unexpected second result %+v", last.ToolResults[1])
	}
}

func TestRunRateLimitAbortsOnlyThatQuery(t *testing.T) {
	rateLimited := &errors.ProviderError{
		Provider:   string(ProfileOpenAI),
		Kind:       errors.ProviderRateLimit,
		StatusCode: 429,
		Err:        fmt.Errorf("too many requests"),
	}
	p := &scriptedProvider{profile: ProfileOpenAI, steps: []func([]model.Message) (*model.Message, error){
		reply("", model.ToolCall{ID: "c1", Name: "add", Arguments: `{"a":2,"b":2}`}),
		fail(rateLimited),
		reply("4"),
	}}
	history := &historyRecorder{}
	a := New(p, mathTools(nil), Options{History: history}, testLogger())

	_, err := a.ProcessQuery(context.Background(), "first")
	var pe *errors.ProviderError
	if !stderrors.As(err, &pe) {
		t.Fatalf("Expected ProviderError, got %T: %v", err, err)
	}
	if pe.Kind != errors.ProviderRateLimit {
		t.Errorf("Expected rate_limit kind, got %s", pe.Kind)
	}

	answer, err := a.ProcessQuery(context.Background(), "second")
	if err != nil {
		t.Fatalf("Second query failed: %v", err)
	}
	if answer != "4" {
		t.Errorf("Expected '4', got %q", answer)
	}
	if len(p.seen[2]) != 1 || p.seen[2][0].Content != "second" {
		t.Errorf("Second query must start from a fresh transcript, got %+v", p.seen[2])
	}

	if len(history.records) != 2 {
		t.Fatalf("Expected 2 history records, got %d", len(history.records))
	}
	if history.records[0].Error == "" || history.records[1].Error != "" {
		t.Errorf("Unexpected history errors: %q, %q", history.records[0].Error, history.records[1].Error)
	}
}

func TestRunRoundLimit(t *testing.T) {
	p := &scriptedProvider{profile: ProfileAnthropic}
	for i := 0; i < 5; i++ {
		p.steps = append(p.steps, reply("", model.ToolCall{ID: fmt.Sprintf("c%d", i), Name: "add", Arguments: `{"a":1,"b":1}`}))
	}
	a := New(p, mathTools(nil), Options{MaxRounds: 3}, testLogger())

	_, err := a.ProcessQuery(context.Background(), "loop forever")
	if !stderrors.Is(err, errors.ErrRoundLimit) {
		t.Fatalf("Expected ErrRoundLimit, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("Expected 3 completion requests, got %d", p.calls)
	}
}

func failingTools() *fakeTools {
	tools := mathTools(nil)
	tools.handlers["add"] = func(context.Context, map[string]interface{}) (string, error) {
		return "", fmt.Errorf("boom")
	}
	return tools
}

func TestRunToolErrorReported(t *testing.T) {
	p := &scriptedProvider{profile: ProfileAnthropic, steps: []func([]model.Message) (*model.Message, error){
		reply("", model.ToolCall{ID: "c1", Name: "add", Arguments: `{}`}),
		reply("The tool failed"),
	}}
	a := New(p, failingTools(), Options{ToolErrors: ReportToolErrors}, testLogger())

	out, err := a.Run(context.Background(), "add nothing")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Answer != "The tool failed" {
		t.Errorf("Unexpected answer %q", out.Answer)
	}
	r := p.seen[1][2].ToolResults[0]
	if !r.IsError {
		t.Error("Expected error tool result")
	}
	if r.Content != "ERROR: tool add failed: boom" {
		t.Errorf("Unexpected error content %q", r.Content)
	}
	if !out.ToolCalls[0].IsError {
		t.Error("Expected recorded invocation to be marked as error")
	}
}

func TestRunToolErrorFails(t *testing.T) {
	p := &scriptedProvider{profile: ProfileOpenAI, steps: []func([]model.Message) (*model.Message, error){
		reply("", model.ToolCall{ID: "c1", Name: "add", Arguments: `{}`}),
	}}
	a := New(p, failingTools(), Options{ToolErrors: FailOnToolErrors}, testLogger())

	_, err := a.ProcessQuery(context.Background(), "add nothing")
	var te *errors.ToolExecutionError
	if !stderrors.As(err, &te) {
		t.Fatalf("Expected ToolExecutionError, got %T: %v", err, err)
	}
	if te.Tool != "add" || te.CallID != "c1" {
		t.Errorf("Unexpected error fields %+v", te)
	}
	if p.calls != 1 {
		t.Errorf("Expected no further completion requests, got %d", p.calls)
	}
}

func TestRunCancelledBetweenToolCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &eventLog{}
	tools := mathTools(log)
	tools.handlers["cancel"] = func(context.Context, map[string]interface{}) (string, error) {
		cancel()
		return "cancelled", nil
	}
	p := &scriptedProvider{profile: ProfileAnthropic, log: log, steps: []func([]model.Message) (*model.Message, error){
		reply("",
			model.ToolCall{ID: "c1", Name: "cancel"},
			model.ToolCall{ID: "c2", Name: "add", Arguments: `{"a":1,"b":2}`},
		),
		reply("never"),
	}}
	a := New(p, tools, Options{}, testLogger())

	_, err := a.ProcessQuery(ctx, "stop midway")
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	got := strings.Join(log.list(), ",")
	if got != "complete,call:c1" {
		t.Errorf("Expected loop to stop after first call, got %s", got)
	}
}

func TestRunListToolsFailure(t *testing.T) {
	tools := mathTools(nil)
	tools.listErr = errors.ErrNotConnected
	p := &scriptedProvider{profile: ProfileAnthropic}
	a := New(p, tools, Options{}, testLogger())

	_, err := a.ProcessQuery(context.Background(), "anything")
	if !stderrors.Is(err, errors.ErrNotConnected) {
		t.Fatalf("Expected ErrNotConnected, got %v", err)
	}
	if p.calls != 0 {
		t.Errorf("Expected no completion requests, got %d", p.calls)
	}
}

func TestRunRecordsHistory(t *testing.T) {
	history := &historyRecorder{}
	p := &scriptedProvider{profile: ProfileAnthropic, steps: []func([]model.Message) (*model.Message, error){
		reply("", model.ToolCall{ID: "c1", Name: "add", Arguments: `{"a":2,"b":2}`}),
		reply("4"),
	}}
	a := New(p, mathTools(nil), Options{Model: "claude-test", Server: "math", History: history}, testLogger())

	if _, err := a.ProcessQuery(context.Background(), "2+2"); err != nil {
		t.Fatalf("ProcessQuery failed: %v", err)
	}
	if len(history.records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(history.records))
	}
	r := history.records[0]
	if r.Server != "math" || r.Provider != "anthropic" || r.Model != "claude-test" {
		t.Errorf("Unexpected record identity %+v", r)
	}
	if r.Answer != "4" || r.Rounds != 2 || len(r.ToolCalls) != 1 {
		t.Errorf("Unexpected record outcome %+v", r)
	}
	if r.ToolCalls[0].Sequence != 1 || r.ToolCalls[0].Round != 1 {
		t.Errorf("Unexpected invocation numbering %+v", r.ToolCalls[0])
	}
	if r.EndTime.Before(r.StartTime) {
		t.Error("EndTime before StartTime")
	}
}

func TestNewDefaults(t *testing.T) {
	a := New(&scriptedProvider{profile: ProfileOpenAI}, mathTools(nil), Options{}, nil)
	if a.opts.MaxRounds != 20 {
		t.Errorf("Expected default MaxRounds 20, got %d", a.opts.MaxRounds)
	}
	if a.opts.ToolErrors != ReportToolErrors {
		t.Errorf("Expected report policy by default, got %s", a.opts.ToolErrors)
	}
	if a.logger == nil {
		t.Error("Expected default logger")
	}
}
