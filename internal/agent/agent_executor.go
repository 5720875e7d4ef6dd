// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/isol178/agent-omoikane/internal/logging"
	"github.com/isol178/agent-omoikane/internal/model"
)

// QueryProcessor resolves one query to its final answer. *Agent implements it.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, query string) (string, error)
}

// AgentExecutor runs scheduled queries through a QueryProcessor and writes
// each answer to out.
type AgentExecutor struct {
	processor QueryProcessor
	out       io.Writer
	outMu     sync.Mutex
	logger    *logging.Logger
}

// NewAgentExecutor creates a new agent executor
func NewAgentExecutor(processor QueryProcessor, out io.Writer, logger *logging.Logger) *AgentExecutor {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &AgentExecutor{
		processor: processor,
		out:       out,
		logger:    logger,
	}
}

// Execute implements model.Executor for the scheduler
func (ae *AgentExecutor) Execute(ctx context.Context, w *model.Watch, timeout time.Duration) error {
	if w.ID == "" || w.Query == "" {
		return fmt.Errorf("invalid watch: missing ID or Query")
	}

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := ae.processor.ProcessQuery(execCtx, w.Query)
	logger := ae.logger.WithField("watch", w.ID)

	ae.outMu.Lock()
	defer ae.outMu.Unlock()
	stamp := start.Format(time.RFC3339)
	if err != nil {
		logger.Errorf("Scheduled query failed after %s: %v", time.Since(start), err)
		_, _ = fmt.Fprintf(ae.out, "[%s %s] Error: %v\n", stamp, w.ID, err)
		return err
	}
	logger.Infof("Scheduled query finished in %s", time.Since(start))
	_, _ = fmt.Fprintf(ae.out, "[%s %s]\n%s\n", stamp, w.ID, answer)
	return nil
}
