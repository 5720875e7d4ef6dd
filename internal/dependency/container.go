// SPDX-License-Identifier: AGPL-3.0-only

// Package dependency wires the client's services using go.uber.org/dig.
package dependency

import (
	"fmt"
	"sync"

	"go.uber.org/dig"

	"github.com/isol178/agent-omoikane/internal/agent"
	"github.com/isol178/agent-omoikane/internal/config"
	"github.com/isol178/agent-omoikane/internal/logging"
	"github.com/isol178/agent-omoikane/internal/model"
	"github.com/isol178/agent-omoikane/internal/singleton"
	"github.com/isol178/agent-omoikane/internal/store"
	"github.com/isol178/agent-omoikane/internal/transport"
)

// History is the query history writer. Store is nil when history is
// disabled or another client owns the database.
type History struct {
	Store model.HistoryStore
	lock  *singleton.Lock
}

// Container resolves services on first use and releases what it opened on
// Close. Commands only build what they need, so `history` never asks for
// an API key and `tools` never opens the database.
type Container struct {
	d *dig.Container

	mu      sync.Mutex
	closers []func() error
}

// New registers every constructor for cfg. Nothing is built yet.
func New(cfg *config.Config, logger *logging.Logger) (*Container, error) {
	c := &Container{d: dig.New()}

	if err := c.d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := c.d.Provide(func() *logging.Logger { return logger }); err != nil {
		return nil, err
	}
	if err := c.d.Provide(newServers); err != nil {
		return nil, err
	}
	if err := c.d.Provide(newConnector); err != nil {
		return nil, err
	}
	if err := c.d.Provide(agent.NewChatProvider); err != nil {
		return nil, err
	}
	if err := c.d.Provide(c.newHistory); err != nil {
		return nil, err
	}
	return c, nil
}

// Connector returns the MCP session factory for the configured catalog.
func (c *Container) Connector() (*transport.Connector, error) {
	var conn *transport.Connector
	err := c.d.Invoke(func(x *transport.Connector) { conn = x })
	return conn, unwrap(err)
}

// Provider returns the configured chat provider.
func (c *Container) Provider() (agent.ChatProvider, error) {
	var p agent.ChatProvider
	err := c.d.Invoke(func(x agent.ChatProvider) { p = x })
	return p, unwrap(err)
}

// History returns the history writer, taking the writer lock on first use.
func (c *Container) History() (*History, error) {
	var h *History
	err := c.d.Invoke(func(x *History) { h = x })
	return h, unwrap(err)
}

// OpenHistoryReader opens the history database without taking the writer
// lock. The caller closes it.
func (c *Container) OpenHistoryReader() (model.HistoryStore, error) {
	var s model.HistoryStore
	err := c.d.Invoke(func(cfg *config.Config) error {
		st, err := store.NewSQLiteStore(cfg.Store.DBPath)
		if err != nil {
			return err
		}
		s = st
		return nil
	})
	return s, unwrap(err)
}

// NewAgent builds an Agent over tools, recording to history when it is
// available.
func (c *Container) NewAgent(tools agent.ToolSession, serverKey string) (*agent.Agent, error) {
	var a *agent.Agent
	err := c.d.Invoke(func(cfg *config.Config, logger *logging.Logger, p agent.ChatProvider, h *History) {
		opts := agent.OptionsFromConfig(cfg)
		opts.Server = serverKey
		opts.History = h.Store
		a = agent.New(p, tools, opts, logger)
	})
	return a, unwrap(err)
}

// Close releases everything the container opened, last opened first.
func (c *Container) Close() error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *Container) onClose(fn func() error) {
	c.mu.Lock()
	c.closers = append(c.closers, fn)
	c.mu.Unlock()
}

func newServers(cfg *config.Config) (config.Servers, error) {
	return config.LoadServers(cfg.MCP.ConfigFilePath)
}

func newConnector(cfg *config.Config, servers config.Servers, logger *logging.Logger) *transport.Connector {
	return transport.NewConnector(servers, transport.OptionsFromConfig(cfg), logger)
}

func (c *Container) newHistory(cfg *config.Config, logger *logging.Logger) (*History, error) {
	if cfg.Store.Disabled {
		logger.Debugf("Query history disabled")
		return &History{}, nil
	}

	lock, owned, err := singleton.TryAcquire(cfg.Store.DBPath)
	if err != nil {
		return nil, err
	}
	if !owned {
		logger.Warnf("History database %s is in use by another client; running without history", cfg.Store.DBPath)
		return &History{}, nil
	}
	c.onClose(lock.Release)

	st, err := store.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	c.onClose(st.Close)

	return &History{Store: st, lock: lock}, nil
}

// unwrap strips dig's resolution chatter so callers see the constructor's
// own error.
func unwrap(err error) error {
	if err == nil {
		return nil
	}
	return dig.RootCause(err)
}
