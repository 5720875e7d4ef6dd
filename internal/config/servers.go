// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/isol178/agent-omoikane/internal/errors"
	"gopkg.in/yaml.v3"
)

// DefaultServerCommand is used when a server entry omits its command.
const DefaultServerCommand = "node"

// ServerConfig is one entry of the mcpServers catalog.
type ServerConfig struct {
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Servers maps a server key to how its subprocess is launched.
type Servers map[string]ServerConfig

type serversFile struct {
	MCP Servers `json:"mcpServers" yaml:"mcpServers"`
}

// LoadServers reads the mcpServers catalog. Files ending in .yaml or .yml
// are parsed as YAML, everything else as JSON.
func LoadServers(path string) (Servers, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ConfigurationError{Reason: "read server catalog " + path, Err: err}
	}

	var f serversFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &f)
	default:
		err = json.Unmarshal(raw, &f)
	}
	if err != nil {
		return nil, &errors.ConfigurationError{Reason: "parse server catalog " + path, Err: err}
	}
	if f.MCP == nil {
		f.MCP = Servers{}
	}
	return f.MCP, nil
}

// Lookup resolves a server key to its launch triple.
func (s Servers) Lookup(key string) (ServerConfig, error) {
	sc, ok := s[key]
	if !ok {
		return ServerConfig{}, &errors.ConfigurationError{
			Key:    key,
			Reason: fmt.Sprintf("server key %q not found in config file", key),
		}
	}
	if sc.Command == "" {
		sc.Command = DefaultServerCommand
	}
	return sc, nil
}

// Keys returns the configured server keys in sorted order.
func (s Servers) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Environ returns the parent environment with the configured overrides
// appended, so overrides win.
func (sc ServerConfig) Environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(sc.Env))
	for k := range sc.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+sc.Env[k])
	}
	return env
}
