// Package store persists agent runs and their transcripts.
package store

import (
	"context"
	"time"

	"github.com/everydev1618/goloom/llm"
)

// Run is a persisted agent run.
type Run struct {
	ID         string     `json:"id"`
	Agent      string     `json:"agent"`
	Model      string     `json:"model"`
	Input      string     `json:"input"`
	Status     string     `json:"status"` // running, done, failed
	Output     string     `json:"output,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Message is one persisted transcript entry of a run.
type Message struct {
	RunID      string `json:"run_id"`
	Seq        int    `json:"seq"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
	ToolCalls  string `json:"tool_calls,omitempty"` // JSON-encoded requested calls
}

// Store persists runs for historical queries. Implementations also
// satisfy the runner's Recorder interface.
type Store interface {
	// Init creates tables if they don't exist.
	Init() error

	// Close closes the store.
	Close() error

	// RunStarted records a new run in the running state.
	RunStarted(ctx context.Context, runID, agent, model, input string) error

	// MessageAppended records one transcript message.
	MessageAppended(ctx context.Context, runID string, seq int, msg llm.Message) error

	// RunFinished marks a run done or failed with its output or error text.
	RunFinished(ctx context.Context, runID, status, output string) error

	// GetRun returns a run by ID.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// ListMessages returns a run's transcript in order.
	ListMessages(ctx context.Context, runID string) ([]Message, error)
}
