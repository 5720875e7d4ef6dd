// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/isol178/agent-omoikane/internal/agent"
	"github.com/isol178/agent-omoikane/internal/config"
	"github.com/isol178/agent-omoikane/internal/dependency"
	"github.com/isol178/agent-omoikane/internal/logging"
	"github.com/isol178/agent-omoikane/internal/model"
	"github.com/isol178/agent-omoikane/internal/transport"
)

// Application holds what one command invocation runs with.
type Application struct {
	cfg    *config.Config
	logger *logging.Logger
	deps   *dependency.Container
}

// createApp loads the configuration, sets up logging and registers the
// services. Close must be called when the command is done.
func createApp(cmd *cobra.Command, f *flags) (*Application, error) {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	logging.SetDefaultLogger(logger)

	deps, err := dependency.New(cfg, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	return &Application{cfg: cfg, logger: logger, deps: deps}, nil
}

// newLogger logs to the configured file, or to stderr so answers on stdout
// stay clean.
func newLogger(cfg *config.Config, stderr io.Writer) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.FilePath != "" {
		logger, err := logging.FileLogger(cfg.Logging.FilePath, level)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return logger, nil
	}
	return logging.New(logging.Options{Output: stderr, Level: level}), nil
}

// startAgent brings up everything a query needs, in order: provider, history
// lock and database, then the tool server session. The caller closes the
// returned session before closing the Application.
func (a *Application) startAgent(ctx context.Context, serverKey string, out io.Writer) (*agent.Agent, *transport.Session, error) {
	if _, err := a.deps.Provider(); err != nil {
		return nil, nil, err
	}
	if _, err := a.deps.History(); err != nil {
		return nil, nil, err
	}

	sess, _, err := a.connect(ctx, serverKey, out)
	if err != nil {
		return nil, nil, err
	}

	ag, err := a.deps.NewAgent(sess, serverKey)
	if err != nil {
		_ = sess.Close()
		return nil, nil, err
	}
	return ag, sess, nil
}

// connect launches the tool server and prints the names of its tools.
func (a *Application) connect(ctx context.Context, serverKey string, out io.Writer) (*transport.Session, []model.ToolDefinition, error) {
	conn, err := a.deps.Connector()
	if err != nil {
		return nil, nil, err
	}
	sess, err := conn.Connect(ctx, serverKey)
	if err != nil {
		return nil, nil, err
	}

	tools, err := sess.ListTools(ctx)
	if err != nil {
		_ = sess.Close()
		return nil, nil, err
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	fmt.Fprintln(out, "\nConnected to server with tools:", names)
	return sess, tools, nil
}

// Close releases the services in reverse order of acquisition and closes
// the log file.
func (a *Application) Close() {
	if err := a.deps.Close(); err != nil {
		a.logger.Errorf("Error during shutdown: %v", err)
	}
	_ = a.logger.Close()
}
