// SPDX-License-Identifier: AGPL-3.0-only
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/isol178/agent-omoikane/internal/config"
	"github.com/isol178/agent-omoikane/internal/errors"
	"github.com/isol178/agent-omoikane/internal/logging"
	"github.com/isol178/agent-omoikane/internal/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Options tunes how sessions are established.
type Options struct {
	ClientName       string
	ClientVersion    string
	HandshakeTimeout time.Duration
}

// OptionsFromConfig maps the mcp section of cfg onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ClientName:       cfg.MCP.ClientName,
		ClientVersion:    cfg.MCP.ClientVersion,
		HandshakeTimeout: cfg.MCP.HandshakeTimeout,
	}
}

// Connector resolves server keys and starts sessions. It holds no live
// resources itself.
type Connector struct {
	servers config.Servers
	opts    Options
	logger  *logging.Logger

	// newTransport is overridden in tests to avoid spawning processes.
	newTransport func(sc config.ServerConfig) mcp.Transport
}

// NewConnector creates a Connector over the given server catalog.
func NewConnector(servers config.Servers, opts Options, logger *logging.Logger) *Connector {
	if opts.ClientName == "" {
		opts.ClientName = "omoikane"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "1.0.0"
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Connector{
		servers:      servers,
		opts:         opts,
		logger:       logger,
		newTransport: commandTransport,
	}
}

func commandTransport(sc config.ServerConfig) mcp.Transport {
	cmd := exec.Command(sc.Command, sc.Args...)
	cmd.Env = sc.Environ()
	return &mcp.CommandTransport{Command: cmd}
}

// Connect launches the server registered under key and completes the MCP
// initialize handshake. An unknown key fails with *errors.ConfigurationError
// before anything is started; a launch or handshake failure returns
// *errors.ConnectionError and leaves nothing running.
func (c *Connector) Connect(ctx context.Context, key string) (*Session, error) {
	sc, err := c.servers.Lookup(key)
	if err != nil {
		return nil, err
	}

	logger := c.logger.WithField("server", key)
	logger.Debugf("Launching %s %s", sc.Command, strings.Join(sc.Args, " "))

	cli := mcp.NewClient(&mcp.Implementation{Name: c.opts.ClientName, Version: c.opts.ClientVersion}, nil)

	hsCtx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()
	cs, err := cli.Connect(hsCtx, c.newTransport(sc), nil)
	if err != nil {
		logger.Errorf("Failed to connect: %v", err)
		return nil, &errors.ConnectionError{Server: key, Err: err}
	}

	s := &Session{key: key, cs: cs, logger: logger}
	if res := cs.InitializeResult(); res != nil && res.ServerInfo != nil {
		s.serverName = res.ServerInfo.Name
		s.serverVersion = res.ServerInfo.Version
	}
	logger.Infof("Connected to %s %s", s.serverName, s.serverVersion)
	return s, nil
}

// Session is a live connection to one tool server. A Session only exists
// after a successful Connect; once closed every call fails with
// errors.ErrNotConnected.
type Session struct {
	key           string
	cs            *mcp.ClientSession
	logger        *logging.Logger
	serverName    string
	serverVersion string

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Key returns the server key the session was opened for.
func (s *Session) Key() string { return s.key }

// ServerInfo returns the name and version the server reported during the
// handshake.
func (s *Session) ServerInfo() (name, version string) {
	return s.serverName, s.serverVersion
}

// ListTools fetches the server's current tool catalog. It is never cached.
func (s *Session) ListTools(ctx context.Context) ([]model.ToolDefinition, error) {
	if s == nil || s.closed.Load() {
		return nil, errors.ErrNotConnected
	}

	var tools []model.ToolDefinition
	params := &mcp.ListToolsParams{}
	for {
		resp, err := s.cs.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list tools on %s: %w", s.key, err)
		}
		for _, tl := range resp.Tools {
			schema, err := schemaMap(tl.InputSchema)
			if err != nil {
				s.logger.Warnf("Skipping tool %s: %v", tl.Name, err)
				continue
			}
			tools = append(tools, model.ToolDefinition{
				Name:        tl.Name,
				Description: tl.Description,
				InputSchema: schema,
			})
		}
		if resp.NextCursor == "" {
			return tools, nil
		}
		params = &mcp.ListToolsParams{Cursor: resp.NextCursor}
	}
}

// schemaMap normalizes the wire schema into a JSON object map.
func schemaMap(raw interface{}) (map[string]interface{}, error) {
	if raw == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}, nil
	}
	if m, ok := raw.(map[string]interface{}); ok {
		return m, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal input schema: %w", err)
	}
	return m, nil
}

// CallTool invokes a tool by name. Arguments are passed through as decoded
// JSON without local schema validation. A transport or protocol failure is
// a *errors.ToolExecutionError; a result the server flags as an error is
// returned with IsError set.
func (s *Session) CallTool(ctx context.Context, call model.ToolCall) (model.ToolResult, error) {
	if s == nil || s.closed.Load() {
		return model.ToolResult{}, errors.ErrNotConnected
	}

	args := map[string]interface{}{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return model.ToolResult{}, &errors.ToolExecutionError{
				Tool:   call.Name,
				CallID: call.ID,
				Err:    fmt.Errorf("failed to unmarshal arguments: %w", err),
			}
		}
	}

	res, err := s.cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      call.Name,
		Arguments: args,
	})
	if err != nil {
		return model.ToolResult{}, &errors.ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: err}
	}

	content := flattenContent(res.Content)
	if content == "" && res.StructuredContent != nil {
		if b, err := json.Marshal(res.StructuredContent); err == nil {
			content = string(b)
		}
	}
	return model.ToolResult{
		ToolCallID: call.ID,
		Content:    content,
		IsError:    res.IsError,
	}, nil
}

// flattenContent renders a tool's content list as one string: text blocks
// verbatim, anything else JSON-encoded, one block per line.
func flattenContent(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
			continue
		}
		b, err := json.Marshal(c)
		if err != nil {
			continue
		}
		parts = append(parts, string(b))
	}
	return strings.Join(parts, "\n")
}

// Close ends the session and releases the subprocess. Only the first call
// does any work; closing a nil Session is a no-op.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.cs.Close()
		if s.closeErr != nil {
			s.logger.Warnf("Error closing session: %v", s.closeErr)
		} else {
			s.logger.Debugf("Session closed")
		}
	})
	return s.closeErr
}
