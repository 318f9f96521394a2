package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/everydev1618/goloom/llm"
)

// ErrNotFound is returned when a run ID has no row.
var ErrNotFound = errors.New("run not found")

// SQLiteStore implements Store using modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Init creates the schema tables.
func (s *SQLiteStore) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		agent       TEXT NOT NULL,
		model       TEXT NOT NULL DEFAULT '',
		input       TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'running',
		output      TEXT NOT NULL DEFAULT '',
		started_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS run_messages (
		run_id       TEXT NOT NULL,
		seq          INTEGER NOT NULL,
		role         TEXT NOT NULL,
		content      TEXT NOT NULL DEFAULT '',
		tool_call_id TEXT NOT NULL DEFAULT '',
		is_error     INTEGER NOT NULL DEFAULT 0,
		tool_calls   TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_agent ON runs(agent);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RunStarted records a new run in the running state.
func (s *SQLiteStore) RunStarted(ctx context.Context, runID, agent, model, input string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, agent, model, input, status, started_at)
		 VALUES (?, ?, ?, ?, 'running', ?)`,
		runID, agent, model, input, time.Now().UTC(),
	)
	return err
}

// MessageAppended records one transcript message.
func (s *SQLiteStore) MessageAppended(ctx context.Context, runID string, seq int, msg llm.Message) error {
	var calls string
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return err
		}
		calls = string(data)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_messages (run_id, seq, role, content, tool_call_id, is_error, tool_calls)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, seq, string(msg.Role), msg.Content, msg.ToolCallID, msg.IsError, calls,
	)
	return err
}

// RunFinished marks a run done or failed.
func (s *SQLiteStore) RunFinished(ctx context.Context, runID, status, output string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, output = ?, finished_at = ? WHERE id = ?`,
		status, output, time.Now().UTC(), runID,
	)
	return err
}

// GetRun returns a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent, model, input, status, output, started_at, finished_at
		 FROM runs WHERE id = ?`, runID,
	)
	var r Run
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.Agent, &r.Model, &r.Input, &r.Status, &r.Output, &r.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

// ListRuns returns recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent, model, input, status, output, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Agent, &r.Model, &r.Input, &r.Status, &r.Output, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListMessages returns a run's transcript in order.
func (s *SQLiteStore) ListMessages(ctx context.Context, runID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, role, content, tool_call_id, is_error, tool_calls
		 FROM run_messages WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.RunID, &m.Seq, &m.Role, &m.Content, &m.ToolCallID, &m.IsError, &m.ToolCalls); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
