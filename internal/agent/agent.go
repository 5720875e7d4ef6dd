// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/isol178/agent-omoikane/internal/errors"
	"github.com/isol178/agent-omoikane/internal/logging"
	"github.com/isol178/agent-omoikane/internal/model"
)

// ToolSession is the live tool server the loop lists and invokes tools on.
type ToolSession interface {
	ListTools(ctx context.Context) ([]model.ToolDefinition, error)
	CallTool(ctx context.Context, call model.ToolCall) (model.ToolResult, error)
}

// ToolErrorPolicy decides what happens when a tool invocation fails.
type ToolErrorPolicy string

const (
	// ReportToolErrors feeds the failure back to the model as an error
	// tool result so it can react.
	ReportToolErrors ToolErrorPolicy = "report"
	// FailOnToolErrors aborts the query with the *errors.ToolExecutionError.
	FailOnToolErrors ToolErrorPolicy = "fail"
)

const defaultMaxRounds = 20

// Options tunes an Agent.
type Options struct {
	Model             string
	SystemPrompt      string
	MaxRounds         int // provider calls per query; <= 0 means 20
	ToolErrors        ToolErrorPolicy
	AnnotateToolCalls bool
	Server            string             // recorded in history only
	History           model.HistoryStore // optional
}

// Outcome is the result of one resolved query.
type Outcome struct {
	Answer    string
	Rounds    int
	ToolCalls []model.ToolInvocation
}

// Agent drives the completion / tool-call loop for one provider and one
// tool session. It serves one query at a time.
type Agent struct {
	provider ChatProvider
	tools    ToolSession
	opts     Options
	logger   *logging.Logger
}

// New creates an Agent.
func New(provider ChatProvider, tools ToolSession, opts Options, logger *logging.Logger) *Agent {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = defaultMaxRounds
	}
	if opts.ToolErrors == "" {
		opts.ToolErrors = ReportToolErrors
	}
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Agent{provider: provider, tools: tools, opts: opts, logger: logger}
}

// ProcessQuery resolves query and returns the final answer text.
func (a *Agent) ProcessQuery(ctx context.Context, query string) (string, error) {
	out, err := a.Run(ctx, query)
	if err != nil {
		return "", err
	}
	return out.Answer, nil
}

// Run resolves query: it calls the provider, executes every requested tool in
// order, appends the results and repeats until a completion requests no
// tools. Text from every round is joined by a blank line.
func (a *Agent) Run(ctx context.Context, query string) (_ *Outcome, err error) {
	profile := a.provider.Profile()
	logger := a.logger.WithField("provider", string(profile))

	out := &Outcome{}
	record := &model.QueryRecord{
		Server:    a.opts.Server,
		Provider:  string(profile),
		Model:     a.opts.Model,
		Query:     query,
		StartTime: time.Now(),
	}
	defer func() {
		record.EndTime = time.Now()
		record.Duration = record.EndTime.Sub(record.StartTime).String()
		record.Rounds = out.Rounds
		record.ToolCalls = out.ToolCalls
		if err != nil {
			record.Error = err.Error()
		} else {
			record.Answer = out.Answer
		}
		model.PersistAndLogRecord(a.opts.History, record, logger)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defs, err := a.tools.ListTools(ctx)
	if err != nil {
		logger.Errorf("Failed to list tools: %v", err)
		return nil, fmt.Errorf("list tools: %w", err)
	}
	specs, err := FormatTools(defs, profile)
	if err != nil {
		return nil, err
	}
	logger.Debugf("Resolving query with %d tools", specs.Len())

	transcript := NewTranscript(profile, query)
	var fragments []string

	for round := 1; ; round++ {
		if round > a.opts.MaxRounds {
			logger.Errorf("Query exceeded maximum rounds (%d)", a.opts.MaxRounds)
			return nil, fmt.Errorf("%w (%d)", errors.ErrRoundLimit, a.opts.MaxRounds)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.Debugf("Round %d: requesting completion", round)
		resp, err := a.provider.CreateCompletion(ctx, a.opts.Model, a.opts.SystemPrompt, transcript.Messages(), specs)
		if err != nil {
			logger.Errorf("Completion failed on round %d: %v", round, err)
			return nil, err
		}
		out.Rounds = round

		if resp.Content != "" {
			fragments = append(fragments, resp.Content)
		}
		if !resp.HasToolCalls() {
			out.Answer = strings.Join(fragments, "\n\n")
			logger.Infof("Query resolved in %d rounds with %d tool calls", round, len(out.ToolCalls))
			return out, nil
		}

		if err := transcript.AppendAssistant(*resp); err != nil {
			return nil, errors.Internal(err)
		}

		logger.Debugf("Processing %d tool calls in round %d", len(resp.ToolCalls), round)
		for _, call := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			result, err := a.invoke(ctx, call)
			if err != nil {
				return nil, err
			}
			if err := transcript.AppendToolResult(call, result); err != nil {
				return nil, errors.Internal(err)
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolInvocation{
				Sequence:  len(out.ToolCalls) + 1,
				Round:     round,
				CallID:    call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
				Result:    result.Content,
				IsError:   result.IsError,
			})
			if a.opts.AnnotateToolCalls {
				fragments = append(fragments, fmt.Sprintf("[Calling tool %s with args %s]", call.Name, displayArgs(call.Arguments)))
			}
		}
	}
}

// invoke runs one tool call and applies the tool error policy.
func (a *Agent) invoke(ctx context.Context, call model.ToolCall) (model.ToolResult, error) {
	a.logger.Debugf("Tool call %s: %s", call.ID, call.Name)
	result, err := a.tools.CallTool(ctx, call)
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.ToolResult{}, ctxErr
	}

	var toolErr *errors.ToolExecutionError
	if !stderrors.As(err, &toolErr) {
		err = &errors.ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: err}
	}
	if a.opts.ToolErrors == FailOnToolErrors {
		a.logger.Errorf("Tool call error: %v", err)
		return model.ToolResult{}, err
	}
	a.logger.Warnf("Tool call error: %v", err)
	return model.ToolResult{
		ToolCallID: call.ID,
		Content:    "ERROR: " + err.Error(),
		IsError:    true,
	}, nil
}

func displayArgs(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "{}"
	}
	return raw
}
