package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everydev1618/goloom/llm"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Init())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, s.RunStarted(ctx, id, "researcher", "claude-sonnet-4-20250514", "find facts"))

	r, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "running", r.Status)
	assert.Equal(t, "researcher", r.Agent)
	assert.Nil(t, r.FinishedAt)

	require.NoError(t, s.RunFinished(ctx, id, "done", "the answer"))

	r, err = s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "done", r.Status)
	assert.Equal(t, "the answer", r.Output)
	require.NotNil(t, r.FinishedAt)
	assert.False(t, r.FinishedAt.Before(r.StartedAt))
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTranscriptOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, s.RunStarted(ctx, id, "bot", "", ""))

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "be helpful"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "search", Arguments: map[string]any{"q": "go"}},
		}},
		{Role: llm.RoleTool, ToolCallID: "c1", Content: "boom", IsError: true},
	}
	for i, m := range msgs {
		require.NoError(t, s.MessageAppended(ctx, id, i, m))
	}

	got, err := s.ListMessages(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "system", got[0].Role)
	assert.Equal(t, "hi", got[1].Content)
	assert.Contains(t, got[2].ToolCalls, `"search"`)
	assert.True(t, got[3].IsError)
	assert.Equal(t, "c1", got[3].ToolCallID)
	for i, m := range got {
		assert.Equal(t, i, m.Seq)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id := uuid.NewString()
		ids = append(ids, id)
		require.NoError(t, s.RunStarted(ctx, id, "bot", "", ""))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Contains(t, ids, r.ID)
	}
}

func TestDuplicateSeqRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, s.RunStarted(ctx, id, "bot", "", ""))
	require.NoError(t, s.MessageAppended(ctx, id, 0, llm.Message{Role: llm.RoleSystem, Content: "a"}))
	assert.Error(t, s.MessageAppended(ctx, id, 0, llm.Message{Role: llm.RoleSystem, Content: "b"}))
}
