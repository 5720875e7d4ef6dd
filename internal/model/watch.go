// SPDX-License-Identifier: AGPL-3.0-only
package model

import (
	"context"
	"time"
)

// WatchStatus represents the status of a scheduled query
type WatchStatus string

const (
	StatusPending   WatchStatus = "pending"
	StatusRunning   WatchStatus = "running"
	StatusCompleted WatchStatus = "completed"
	StatusFailed    WatchStatus = "failed"
	StatusSkipped   WatchStatus = "skipped"
	StatusDisabled  WatchStatus = "disabled"
)

// Watch is a query re-run on a cron schedule.
type Watch struct {
	ID        string      `json:"id"`
	Schedule  string      `json:"schedule"`
	Query     string      `json:"query"`
	Enabled   bool        `json:"enabled"`
	Status    WatchStatus `json:"status"`
	LastRun   time.Time   `json:"last_run,omitempty"`
	NextRun   time.Time   `json:"next_run,omitempty"`
	LastError string      `json:"last_error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Executor runs one scheduled query.
type Executor interface {
	Execute(ctx context.Context, watch *Watch, timeout time.Duration) error
}
