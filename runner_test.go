package loom

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everydev1618/goloom/llm"
)

// mockBackend replays a scripted sequence of responses, repeating the
// last one when the script runs out, and captures every request.
type mockBackend struct {
	responses []*llm.ChatResponse
	requests  []*llm.ChatRequest
	err       error
}

func (m *mockBackend) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	snapshot := *req
	snapshot.Messages = append([]llm.Message(nil), req.Messages...)
	m.requests = append(m.requests, &snapshot)

	if m.err != nil {
		return nil, m.err
	}
	i := len(m.requests) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

func answer(text string) *llm.ChatResponse {
	return &llm.ChatResponse{Content: text, StopReason: llm.StopReasonEnd, InputTokens: 10, OutputTokens: 5}
}

func toolTurn(calls ...llm.ToolCall) *llm.ChatResponse {
	return &llm.ChatResponse{ToolCalls: calls, StopReason: llm.StopReasonToolUse, InputTokens: 10, OutputTokens: 5}
}

func loadProgram(t *testing.T, source string) *Program {
	t.Helper()
	prog, err := Load(source, "test.loom",
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return prog
}

func TestRunSimpleAnswer(t *testing.T) {
	prog := loadProgram(t, `agent Bot { prompt: "hi" }`)
	backend := &mockBackend{responses: []*llm.ChatResponse{answer("Hello!")}}

	result, err := NewRunner(backend, prog).Run(context.Background(), "Bot", "")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", result.Output)
	assert.Equal(t, 1, result.Steps)
	require.Len(t, backend.requests, 1)

	msgs := backend.requests[0].Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.False(t, backend.requests[0].JSONMode)
}

func TestRunUnknownAgent(t *testing.T) {
	prog := loadProgram(t, `agent Bot { prompt: "hi" }`)
	_, err := NewRunner(&mockBackend{}, prog).Run(context.Background(), "Nobody", "")
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestRunInitialUserMessage(t *testing.T) {
	prog := loadProgram(t, `agent Bot { prompt: "hi" }`)
	backend := &mockBackend{responses: []*llm.ChatResponse{answer("ok")}}

	_, err := NewRunner(backend, prog).Run(context.Background(), "Bot", "what's up?")
	require.NoError(t, err)

	msgs := backend.requests[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, "what's up?", msgs[1].Content)
}

func TestRunToolDispatch(t *testing.T) {
	prog := loadProgram(t, `
tool shout(text: string) "Uppercase with emphasis" {
	return text + "!!!"
}

agent Loud {
	prompt: "Be loud"
	tools: [shout]
}
`)
	backend := &mockBackend{responses: []*llm.ChatResponse{
		toolTurn(llm.ToolCall{ID: "call_1", Name: "shout", Arguments: map[string]any{"text": "hey"}}),
		answer("done"),
	}}

	result, err := NewRunner(backend, prog).Run(context.Background(), "Loud", "go")
	require.NoError(t, err)
	assert.Equal(t, "done", result.Output)
	assert.Equal(t, 2, result.Steps)

	// The second request must carry the assistant tool-call turn and
	// its result, in that order.
	msgs := backend.requests[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "shout", msgs[2].ToolCalls[0].Name)
	assert.Equal(t, llm.RoleTool, msgs[3].Role)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)
	assert.Equal(t, "hey!!!", msgs[3].Content)
	assert.False(t, msgs[3].IsError)

	// Tool definitions are sent on every call.
	require.Len(t, backend.requests[0].Tools, 1)
	assert.Equal(t, "shout", backend.requests[0].Tools[0].Name)
}

func TestRunToolCallsDispatchedInOrder(t *testing.T) {
	prog := loadProgram(t, `
tool first(x: string) { return "1:" + x }
tool second(x: string) { return "2:" + x }

agent Seq {
	prompt: "sequence"
	tools: [first, second]
}
`)
	backend := &mockBackend{responses: []*llm.ChatResponse{
		toolTurn(
			llm.ToolCall{ID: "a", Name: "second", Arguments: map[string]any{"x": "p"}},
			llm.ToolCall{ID: "b", Name: "first", Arguments: map[string]any{"x": "q"}},
		),
		answer("ok"),
	}}

	_, err := NewRunner(backend, prog).Run(context.Background(), "Seq", "")
	require.NoError(t, err)

	msgs := backend.requests[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "a", msgs[2].ToolCallID)
	assert.Equal(t, "2:p", msgs[2].Content)
	assert.Equal(t, "b", msgs[3].ToolCallID)
	assert.Equal(t, "1:q", msgs[3].Content)
}

func TestRunUnknownToolRecoverable(t *testing.T) {
	prog := loadProgram(t, `
tool web_fetch(url: string) { return url }

agent Fetcher {
	prompt: "fetch things"
	tools: [web_fetch]
}
`)
	backend := &mockBackend{responses: []*llm.ChatResponse{
		toolTurn(llm.ToolCall{ID: "c1", Name: "missing_tool", Arguments: map[string]any{}}),
		answer("recovered"),
	}}

	result, err := NewRunner(backend, prog).Run(context.Background(), "Fetcher", "")
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Output)

	msgs := backend.requests[1].Messages
	toolMsg := msgs[len(msgs)-1]
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	assert.True(t, toolMsg.IsError)
	assert.Contains(t, toolMsg.Content, "Unknown tool")
}

func TestRunToolErrorRecoverable(t *testing.T) {
	prog := loadProgram(t, `
tool divide(a: number, b: number) { return a / b }

agent Calc {
	prompt: "calculate"
	tools: [divide]
}
`)
	backend := &mockBackend{responses: []*llm.ChatResponse{
		toolTurn(llm.ToolCall{ID: "c1", Name: "divide", Arguments: map[string]any{"a": 1, "b": 0}}),
		answer("cannot divide by zero"),
	}}

	result, err := NewRunner(backend, prog).Run(context.Background(), "Calc", "")
	require.NoError(t, err)
	assert.Equal(t, "cannot divide by zero", result.Output)

	msgs := backend.requests[1].Messages
	toolMsg := msgs[len(msgs)-1]
	assert.True(t, toolMsg.IsError)
	assert.Contains(t, toolMsg.Content, "division by zero")
}

func TestRunMaxStepsExactBudget(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		prog := loadProgram(t, `
tool ping() { return "pong" }

agent Busy {
	prompt: "never stop"
	tools: [ping]
	max_steps: `+strconv.Itoa(n)+`
}
`)
		backend := &mockBackend{responses: []*llm.ChatResponse{
			toolTurn(llm.ToolCall{ID: "c", Name: "ping", Arguments: map[string]any{}}),
		}}

		_, err := NewRunner(backend, prog).Run(context.Background(), "Busy", "")
		var maxErr *MaxStepsError
		require.ErrorAs(t, err, &maxErr)
		assert.Equal(t, n, maxErr.Limit)
		assert.Len(t, backend.requests, n)
	}
}

func TestRunBackendErrorFatal(t *testing.T) {
	prog := loadProgram(t, `agent Bot { prompt: "hi" }`)
	boom := errors.New("provider down")
	backend := &mockBackend{err: boom}

	_, err := NewRunner(backend, prog).Run(context.Background(), "Bot", "")
	assert.ErrorIs(t, err, boom)
}

const reportSource = `
schema Report {
	title: String
	score: Number
}

agent Analyst {
	prompt: "analyze"
	output: Report
	output_retries: 2
}
`

func TestRunOutputSchemaForcesJSONMode(t *testing.T) {
	prog := loadProgram(t, reportSource)
	backend := &mockBackend{responses: []*llm.ChatResponse{
		answer(`{"title": "t", "score": 3}`),
	}}

	result, err := NewRunner(backend, prog).Run(context.Background(), "Analyst", "")
	require.NoError(t, err)
	assert.Equal(t, `{"title": "t", "score": 3}`, result.Output)

	req := backend.requests[0]
	assert.True(t, req.JSONMode)
	assert.Contains(t, req.Messages[0].Content, "analyze")
	assert.Contains(t, req.Messages[0].Content, "title")
	assert.Contains(t, req.Messages[0].Content, "score")
}

func TestRunOutputRetryThenSuccess(t *testing.T) {
	prog := loadProgram(t, reportSource)
	backend := &mockBackend{responses: []*llm.ChatResponse{
		answer("not json at all"),
		answer(`{"title": "t"}`),
		answer(`{"title": "t", "score": 1}`),
	}}

	result, err := NewRunner(backend, prog).Run(context.Background(), "Analyst", "")
	require.NoError(t, err)
	assert.Equal(t, `{"title": "t", "score": 1}`, result.Output)
	require.Len(t, backend.requests, 3)

	// First corrective turn: the rejected text plus a request for valid
	// JSON.
	second := backend.requests[1].Messages
	assert.Equal(t, llm.RoleAssistant, second[len(second)-2].Role)
	assert.Equal(t, "not json at all", second[len(second)-2].Content)
	assert.Contains(t, second[len(second)-1].Content, "respond with valid JSON")

	// Second corrective turn names the violation.
	third := backend.requests[2].Messages
	assert.Contains(t, third[len(third)-1].Content, "score")
	assert.True(t, backend.requests[2].JSONMode)
}

func TestRunOutputRetriesExhausted(t *testing.T) {
	prog := loadProgram(t, reportSource)
	backend := &mockBackend{responses: []*llm.ChatResponse{
		answer("still not json"),
	}}

	_, err := NewRunner(backend, prog).Run(context.Background(), "Analyst", "")
	var valErr *OutputValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "Analyst", valErr.Agent)
	assert.Equal(t, "still not json", valErr.Raw)
	require.NotNil(t, valErr.Expected)
	assert.Equal(t, "Report", valErr.Expected.Name)
	// attempts 0..=output_retries: 1 initial + 2 retries.
	assert.Len(t, backend.requests, 3)
}

func TestRunOutputNoRetryBudget(t *testing.T) {
	prog := loadProgram(t, `
schema Out { value: String }

agent Strict {
	prompt: "strict"
	output: Out
}
`)
	backend := &mockBackend{responses: []*llm.ChatResponse{
		answer(`{"value": 42}`),
	}}

	_, err := NewRunner(backend, prog).Run(context.Background(), "Strict", "")
	var valErr *OutputValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Message, "value")
	assert.Len(t, backend.requests, 1)
}

func TestRunDefaultModelFallback(t *testing.T) {
	prog := loadProgram(t, `agent Bot { prompt: "hi" }`)
	backend := &mockBackend{responses: []*llm.ChatResponse{answer("ok")}}

	_, err := NewRunner(backend, prog, WithDefaultModel("claude-sonnet-4-20250514")).
		Run(context.Background(), "Bot", "")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", backend.requests[0].Model)
}

func TestRunAgentModelWins(t *testing.T) {
	prog := loadProgram(t, `agent Bot { prompt: "hi" model: "gpt-4o" }`)
	backend := &mockBackend{responses: []*llm.ChatResponse{answer("ok")}}

	_, err := NewRunner(backend, prog, WithDefaultModel("claude-sonnet-4-20250514")).
		Run(context.Background(), "Bot", "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", backend.requests[0].Model)
}

type memoryRecorder struct {
	started  []string
	messages []llm.Message
	finished []string
	status   string
}

func (m *memoryRecorder) RunStarted(_ context.Context, runID, agent, model, input string) error {
	m.started = append(m.started, runID)
	return nil
}

func (m *memoryRecorder) MessageAppended(_ context.Context, runID string, seq int, msg llm.Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memoryRecorder) RunFinished(_ context.Context, runID, status, output string) error {
	m.finished = append(m.finished, runID)
	m.status = status
	return nil
}

func TestRunRecorder(t *testing.T) {
	prog := loadProgram(t, `agent Bot { prompt: "hi" }`)
	backend := &mockBackend{responses: []*llm.ChatResponse{answer("Hello!")}}
	rec := &memoryRecorder{}

	result, err := NewRunner(backend, prog, WithRecorder(rec)).Run(context.Background(), "Bot", "hey")
	require.NoError(t, err)

	require.Len(t, rec.started, 1)
	assert.Equal(t, result.RunID, rec.started[0])
	assert.Equal(t, []string{result.RunID}, rec.finished)
	assert.Equal(t, "done", rec.status)
	// system + user messages were recorded.
	require.Len(t, rec.messages, 2)
	assert.Equal(t, llm.RoleSystem, rec.messages[0].Role)
}

func TestRunRecorderStatusFailed(t *testing.T) {
	prog := loadProgram(t, `agent Bot { prompt: "hi" }`)
	backend := &mockBackend{err: errors.New("down")}
	rec := &memoryRecorder{}

	_, err := NewRunner(backend, prog, WithRecorder(rec)).Run(context.Background(), "Bot", "")
	require.Error(t, err)
	assert.Equal(t, "failed", rec.status)
}

func TestRunTokenAccounting(t *testing.T) {
	prog := loadProgram(t, `
tool ping() { return "pong" }

agent Busy {
	prompt: "count"
	tools: [ping]
}
`)
	backend := &mockBackend{responses: []*llm.ChatResponse{
		toolTurn(llm.ToolCall{ID: "c", Name: "ping", Arguments: map[string]any{}}),
		answer("ok"),
	}}

	result, err := NewRunner(backend, prog).Run(context.Background(), "Busy", "")
	require.NoError(t, err)
	assert.Equal(t, 20, result.InputTokens)
	assert.Equal(t, 10, result.OutputTokens)
	assert.True(t, strings.HasPrefix(result.Transcript[0].Content, "count"))
}
