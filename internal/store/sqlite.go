// SPDX-License-Identifier: AGPL-3.0-only
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/isol178/agent-omoikane/internal/errors"
	"github.com/isol178/agent-omoikane/internal/model"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

// SQLiteStore implements model.HistoryStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure the parent directory exists.
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveQuery persists a finished query and its tool invocations in one
// transaction. On success record.ID holds the new row ID.
func (s *SQLiteStore) SaveQuery(record *model.QueryRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save query: %w", err)
	}

	res, err := tx.Exec(`
		INSERT INTO queries (server, provider, model, query, answer, error, rounds, start_time, end_time, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Server,
		record.Provider,
		record.Model,
		record.Query,
		record.Answer,
		record.Error,
		record.Rounds,
		record.StartTime.Format(timeFormat),
		record.EndTime.Format(timeFormat),
		record.Duration,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert query: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("read query id: %w", err)
	}

	for _, inv := range record.ToolCalls {
		if _, err := tx.Exec(`
			INSERT INTO tool_invocations (query_id, sequence, round, call_id, name, arguments, result, is_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id,
			inv.Sequence,
			inv.Round,
			inv.CallID,
			inv.Name,
			inv.Arguments,
			inv.Result,
			boolToInt(inv.IsError),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert tool invocation %d: %w", inv.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save query: %w", err)
	}
	record.ID = id
	return nil
}

const selectQuery = `
	SELECT id, server, provider, model, query, answer, error, rounds, start_time, end_time, duration
	FROM queries`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuery(row rowScanner) (*model.QueryRecord, error) {
	var r model.QueryRecord
	var startStr, endStr string
	if err := row.Scan(
		&r.ID, &r.Server, &r.Provider, &r.Model, &r.Query,
		&r.Answer, &r.Error, &r.Rounds, &startStr, &endStr, &r.Duration,
	); err != nil {
		return nil, err
	}
	r.StartTime, _ = time.Parse(timeFormat, startStr)
	r.EndTime, _ = time.Parse(timeFormat, endStr)
	return &r, nil
}

// GetQuery returns the query with the given ID, including its tool
// invocations.
func (s *SQLiteStore) GetQuery(id int64) (*model.QueryRecord, error) {
	r, err := scanQuery(s.db.QueryRow(selectQuery+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("query", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("scan query row: %w", err)
	}
	if r.ToolCalls, err = s.loadInvocations(r.ID); err != nil {
		return nil, err
	}
	return r, nil
}

// ListQueries returns up to limit queries, most recent first.
func (s *SQLiteStore) ListQueries(limit int) ([]*model.QueryRecord, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.db.Query(selectQuery+" ORDER BY start_time DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []*model.QueryRecord
	for rows.Next() {
		r, err := scanQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan query row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query rows: %w", err)
	}
	rows.Close()

	for _, r := range records {
		if r.ToolCalls, err = s.loadInvocations(r.ID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *SQLiteStore) loadInvocations(queryID int64) ([]model.ToolInvocation, error) {
	rows, err := s.db.Query(`
		SELECT sequence, round, call_id, name, arguments, result, is_error
		FROM tool_invocations
		WHERE query_id = ?
		ORDER BY sequence`, queryID)
	if err != nil {
		return nil, fmt.Errorf("query tool invocations: %w", err)
	}
	defer rows.Close()

	var out []model.ToolInvocation
	for rows.Next() {
		var inv model.ToolInvocation
		var isError int
		if err := rows.Scan(
			&inv.Sequence, &inv.Round, &inv.CallID, &inv.Name,
			&inv.Arguments, &inv.Result, &isError,
		); err != nil {
			return nil, fmt.Errorf("scan tool invocation row: %w", err)
		}
		inv.IsError = isError != 0
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tool invocation rows: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
