// SPDX-License-Identifier: AGPL-3.0-only
package model

import "time"

// ToolInvocation records one tool call made while answering a query.
type ToolInvocation struct {
	Sequence  int    `json:"sequence"`
	Round     int    `json:"round"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
}

// QueryRecord is the history entry for one resolved (or failed) query.
type QueryRecord struct {
	ID        int64            `json:"id,omitempty"`
	Server    string           `json:"server"`
	Provider  string           `json:"provider"`
	Model     string           `json:"model"`
	Query     string           `json:"query"`
	Answer    string           `json:"answer"`
	Error     string           `json:"error,omitempty"`
	Rounds    int              `json:"rounds"`
	ToolCalls []ToolInvocation `json:"tool_calls,omitempty"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Duration  string           `json:"duration"`
}

// HistoryStore persists finished queries. History is never fed back into a
// transcript.
type HistoryStore interface {
	SaveQuery(record *QueryRecord) error
	GetQuery(id int64) (*QueryRecord, error)
	ListQueries(limit int) ([]*QueryRecord, error)
	Close() error
}
