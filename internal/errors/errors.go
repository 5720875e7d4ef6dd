// SPDX-License-Identifier: AGPL-3.0-only
package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrUnknownProfile is returned for a provider profile outside the
	// supported set. It is a programming or configuration error.
	ErrUnknownProfile = stderrors.New("unknown provider profile")

	// ErrNotConnected is returned by session operations after Close.
	ErrNotConnected = stderrors.New("session is not connected")

	// ErrRoundLimit is returned when the model keeps requesting tools past
	// the configured number of rounds.
	ErrRoundLimit = stderrors.New("tool loop exceeded maximum rounds")
)

// NotFound creates a formatted "not found" error
func NotFound(resource, id string) error {
	return fmt.Errorf("resource not found: %s with ID %s", resource, id)
}

// AlreadyExists creates a formatted "already exists" error
func AlreadyExists(resource, id string) error {
	return fmt.Errorf("resource already exists: %s with ID %s", resource, id)
}

// InvalidInput creates a formatted "invalid input" error
func InvalidInput(reason string) error {
	return fmt.Errorf("invalid input: %s", reason)
}

// Internal creates a formatted "internal error" error
func Internal(err error) error {
	return fmt.Errorf("internal error: %w", err)
}

// ConfigurationError reports an unknown server key or a malformed
// configuration. No session is left open when it is returned.
type ConfigurationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Key != "" {
		msg += fmt.Sprintf(" for %q", e.Key)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ConnectionError reports a tool server that failed to start or to finish
// the initialize handshake.
type ConnectionError struct {
	Server string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to server %q: %v", e.Server, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProviderErrorKind classifies a failed completion request.
type ProviderErrorKind string

const (
	ProviderAuth        ProviderErrorKind = "auth"
	ProviderRateLimit   ProviderErrorKind = "rate_limit"
	ProviderBadRequest  ProviderErrorKind = "bad_request"
	ProviderUnavailable ProviderErrorKind = "unavailable"
	ProviderUnknown     ProviderErrorKind = "unknown"
)

// KindForStatus maps an HTTP status code to a ProviderErrorKind.
func KindForStatus(status int) ProviderErrorKind {
	switch {
	case status == 401 || status == 403:
		return ProviderAuth
	case status == 429:
		return ProviderRateLimit
	case status == 400 || status == 404 || status == 413 || status == 422:
		return ProviderBadRequest
	case status >= 500:
		return ProviderUnavailable
	default:
		return ProviderUnknown
	}
}

// ProviderError wraps a failed completion. It aborts the current query only.
type ProviderError struct {
	Provider   string
	Kind       ProviderErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s completion failed (%s, status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s completion failed (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ToolExecutionError reports a tool invocation that failed in transport or
// on the remote side.
type ToolExecutionError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
