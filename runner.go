package loom

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/everydev1618/goloom/llm"
	"github.com/everydev1618/goloom/script"
)

// Recorder observes a run for persistence. All methods are best-effort:
// a recorder failure is logged and the run continues.
type Recorder interface {
	RunStarted(ctx context.Context, runID, agent, model, input string) error
	MessageAppended(ctx context.Context, runID string, seq int, msg llm.Message) error
	RunFinished(ctx context.Context, runID, status, output string) error
}

// Result is the outcome of a completed run.
type Result struct {
	RunID        string
	Agent        string
	Output       string
	Transcript   []llm.Message
	Steps        int
	InputTokens  int
	OutputTokens int
}

// Runner executes agents from a Program against an LLM backend.
type Runner struct {
	backend      llm.Backend
	program      *Program
	defaultModel string
	recorder     Recorder
	logger       *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDefaultModel sets the model used by agents that do not declare one.
func WithDefaultModel(model string) RunnerOption {
	return func(r *Runner) { r.defaultModel = model }
}

// WithRecorder attaches a run recorder.
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// NewRunner creates a Runner. The logger is inherited from the program.
func NewRunner(backend llm.Backend, program *Program, opts ...RunnerOption) *Runner {
	r := &Runner{
		backend: backend,
		program: program,
		logger:  program.logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run carries the per-run state: one transcript, owned exclusively by
// this run. Messages are appended only after the call that produced
// them has fully completed.
type run struct {
	id         string
	agent      *script.Agent
	transcript []llm.Message
	result     Result
}

func (r *Runner) record(ctx context.Context, ru *run, msg llm.Message) {
	ru.transcript = append(ru.transcript, msg)
	if r.recorder != nil {
		if err := r.recorder.MessageAppended(ctx, ru.id, len(ru.transcript)-1, msg); err != nil {
			r.logger.Warn("recorder failed", "run_id", ru.id, "error", err)
		}
	}
}

// Run executes the named agent with an initial user input (which may be
// empty) and returns its final answer.
func (r *Runner) Run(ctx context.Context, agentName, input string) (*Result, error) {
	agent, ok := r.program.Agent(agentName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, agentName)
	}

	model := agent.Model
	if model == "" {
		model = r.defaultModel
	}

	ru := &run{
		id:    uuid.NewString(),
		agent: agent,
		result: Result{
			Agent: agent.Name,
		},
	}
	ru.result.RunID = ru.id

	system := agent.Prompt
	jsonMode := false
	if agent.Output != nil {
		system += "\n\n" + agent.Output.Describe()
		jsonMode = true
	}

	if r.recorder != nil {
		if err := r.recorder.RunStarted(ctx, ru.id, agent.Name, model, input); err != nil {
			r.logger.Warn("recorder failed", "run_id", ru.id, "error", err)
		}
	}

	r.record(ctx, ru, llm.Message{Role: llm.RoleSystem, Content: system})
	if input != "" {
		r.record(ctx, ru, llm.Message{Role: llm.RoleUser, Content: input})
	}

	toolDefs := r.program.registry.Schemas(agent.Tools)

	output, err := r.loop(ctx, ru, model, toolDefs, jsonMode)
	if err != nil {
		r.finish(ctx, ru, "failed", err.Error())
		return nil, err
	}
	ru.result.Output = output
	ru.result.Transcript = ru.transcript
	r.finish(ctx, ru, "done", output)
	return &ru.result, nil
}

func (r *Runner) finish(ctx context.Context, ru *run, status, output string) {
	if r.recorder != nil {
		if err := r.recorder.RunFinished(ctx, ru.id, status, output); err != nil {
			r.logger.Warn("recorder failed", "run_id", ru.id, "error", err)
		}
	}
	r.logger.Info("run finished",
		"run_id", ru.id,
		"agent", ru.agent.Name,
		"status", status,
		"steps", ru.result.Steps,
		"input_tokens", ru.result.InputTokens,
		"output_tokens", ru.result.OutputTokens,
	)
}

func (r *Runner) chat(ctx context.Context, ru *run, model string, toolDefs []llm.ToolSchema, jsonMode bool) (*llm.ChatResponse, error) {
	resp, err := r.backend.Chat(ctx, &llm.ChatRequest{
		Messages: ru.transcript,
		Tools:    toolDefs,
		Model:    model,
		JSONMode: jsonMode,
	})
	if err != nil {
		return nil, err
	}
	ru.result.Steps++
	ru.result.InputTokens += resp.InputTokens
	ru.result.OutputTokens += resp.OutputTokens
	return resp, nil
}

// loop is the orchestration state machine: call the backend, dispatch
// any requested tool calls in order, repeat until a turn arrives with
// no tool calls or the step budget runs out.
func (r *Runner) loop(ctx context.Context, ru *run, model string, toolDefs []llm.ToolSchema, jsonMode bool) (string, error) {
	agent := ru.agent
	for step := 0; step < agent.MaxSteps; step++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		resp, err := r.chat(ctx, ru, model, toolDefs, jsonMode)
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			if agent.Output == nil {
				return resp.Content, nil
			}
			return r.validateOutput(ctx, ru, model, toolDefs, resp.Content)
		}

		r.record(ctx, ru, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Dispatch strictly in request order; results are appended in
		// that same order. Tool failures never abort the run — they go
		// back to the model as error results.
		for _, tc := range resp.ToolCalls {
			r.record(ctx, ru, r.dispatch(ctx, ru, tc))
		}
	}
	return "", &MaxStepsError{Agent: agent.Name, Limit: agent.MaxSteps}
}

func (r *Runner) dispatch(ctx context.Context, ru *run, tc llm.ToolCall) llm.Message {
	msg := llm.Message{Role: llm.RoleTool, ToolCallID: tc.ID}

	if !r.program.registry.Has(tc.Name) {
		r.logger.Warn("unknown tool requested", "run_id", ru.id, "tool", tc.Name)
		msg.IsError = true
		msg.Content = fmt.Sprintf("Unknown tool: %s", tc.Name)
		return msg
	}

	result, err := r.program.registry.Execute(ctx, tc.Name, tc.Arguments)
	if err != nil {
		r.logger.Warn("tool failed", "run_id", ru.id, "tool", tc.Name, "error", err)
		msg.IsError = true
		msg.Content = err.Error()
		return msg
	}

	r.logger.Debug("tool executed", "run_id", ru.id, "tool", tc.Name)
	msg.Content = result
	return msg
}

// validateOutput runs the bounded validation sub-loop: parse the
// candidate as JSON, check it against the agent's output schema, and on
// failure send a corrective message and ask again, up to output_retries
// extra attempts.
func (r *Runner) validateOutput(ctx context.Context, ru *run, model string, toolDefs []llm.ToolSchema, candidate string) (string, error) {
	agent := ru.agent
	var lastMessage string

	for attempt := 0; attempt <= agent.OutputRetries; attempt++ {
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			lastMessage = fmt.Sprintf("invalid JSON: %v", err)
		} else if v := agent.Output.Validate(parsed); v != nil {
			lastMessage = v.Error()
		} else {
			return candidate, nil
		}

		r.logger.Debug("output rejected",
			"run_id", ru.id,
			"attempt", attempt,
			"reason", lastMessage,
		)

		if attempt == agent.OutputRetries {
			break
		}

		r.record(ctx, ru, llm.Message{Role: llm.RoleAssistant, Content: candidate})
		r.record(ctx, ru, llm.Message{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Your response was rejected: %s. Please respond with valid JSON matching the required schema.", lastMessage),
		})

		resp, err := r.chat(ctx, ru, model, toolDefs, true)
		if err != nil {
			return "", err
		}
		candidate = resp.Content
	}

	return "", &OutputValidationError{
		Agent:    agent.Name,
		Message:  lastMessage,
		Expected: agent.Output,
		Raw:      candidate,
	}
}
