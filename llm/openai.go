package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// OpenAI is a Backend over the OpenAI chat completions API.
type OpenAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
	logger     *slog.Logger
}

// OpenAIOption configures the OpenAI client.
type OpenAIOption func(*OpenAI)

// WithOpenAIKey sets the API key.
func WithOpenAIKey(key string) OpenAIOption {
	return func(o *OpenAI) {
		o.apiKey = key
	}
}

// WithOpenAIModel sets the default model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(o *OpenAI) {
		o.model = model
	}
}

// WithOpenAIBaseURL sets the API base URL.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *OpenAI) {
		o.baseURL = url
	}
}

// WithOpenAIHTTPClient sets a custom HTTP client.
func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(o *OpenAI) {
		o.httpClient = client
	}
}

// WithOpenAILogger sets the structured logger.
func WithOpenAILogger(logger *slog.Logger) OpenAIOption {
	return func(o *OpenAI) {
		o.logger = logger
	}
}

// Default OpenAI configuration values
const (
	DefaultOpenAITimeout = 5 * time.Minute
	DefaultOpenAIModel   = "gpt-4o"
	DefaultOpenAIBaseURL = "https://api.openai.com"
)

// NewOpenAI creates a new OpenAI client. The API key defaults to the
// OPENAI_API_KEY environment variable.
func NewOpenAI(opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		baseURL: DefaultOpenAIBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultOpenAITimeout,
		},
		model:  DefaultOpenAIModel,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

type openaiRequest struct {
	Model          string          `json:"model"`
	Messages       []openaiMsg     `json:"messages"`
	Tools          []openaiTool    `json:"tools,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openaiMsg struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
}

type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openaiTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type openaiResponse struct {
	Choices []struct {
		Message      openaiMsg `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends the transcript and returns the model's next turn.
func (o *OpenAI) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if o.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	out := &openaiRequest{Model: o.model}
	if req.Model != "" {
		out.Model = req.Model
	}
	if req.JSONMode {
		out.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	for _, msg := range req.Messages {
		m := openaiMsg{Role: string(msg.Role), Content: msg.Content}
		if msg.Role == RoleTool {
			m.ToolCallID = msg.ToolCallID
		}
		for _, call := range msg.ToolCalls {
			tc := openaiToolCall{ID: call.ID, Type: "function"}
			tc.Function.Name = call.Name
			args, err := json.Marshal(call.Arguments)
			if err != nil {
				return nil, &ProviderError{Provider: "openai", Err: err}
			}
			tc.Function.Arguments = string(args)
			m.ToolCalls = append(m.ToolCalls, tc)
		}
		out.Messages = append(out.Messages, m)
	}

	for _, t := range req.Tools {
		ot := openaiTool{Type: "function"}
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.InputSchema
		out.Tools = append(out.Tools, ot)
	}

	resp, err := o.doRequest(ctx, out)
	if err != nil {
		return nil, err
	}
	return parseOpenAIResponse(resp)
}

func (o *OpenAI) doRequest(ctx context.Context, req *openaiRequest) (*openaiResponse, error) {
	const maxRetries = 5

	for attempt := 0; attempt <= maxRetries; attempt++ {
		body, err := json.Marshal(req)
		if err != nil {
			return nil, &ProviderError{Provider: "openai", Err: err}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, &ProviderError{Provider: "openai", Err: err}
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

		httpResp, err := o.httpClient.Do(httpReq)
		if err != nil {
			return nil, &ProviderError{Provider: "openai", Err: err}
		}

		respBody, err := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if err != nil {
			return nil, &ProviderError{Provider: "openai", Err: err}
		}

		if httpResp.StatusCode == http.StatusOK {
			var resp openaiResponse
			if err := json.Unmarshal(respBody, &resp); err != nil {
				return nil, &ProviderError{Provider: "openai", Err: err}
			}
			return &resp, nil
		}

		if httpResp.StatusCode == 429 && attempt < maxRetries {
			wait := retryAfterDelay(httpResp, attempt)
			o.logger.Warn("API rate limited, retrying", "status", httpResp.StatusCode, "attempt", attempt+1, "wait", wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		return nil, &APIError{Provider: "openai", Status: httpResp.StatusCode, Body: string(respBody)}
	}

	return nil, &ProviderError{Provider: "openai", Err: context.DeadlineExceeded}
}

func parseOpenAIResponse(resp *openaiResponse) (*ChatResponse, error) {
	result := &ChatResponse{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		return result, nil
	}

	choice := resp.Choices[0]
	result.Content = choice.Message.Content
	switch choice.FinishReason {
	case "tool_calls":
		result.StopReason = StopReasonToolUse
	case "length":
		result.StopReason = StopReasonLength
	default:
		result.StopReason = StopReasonEnd
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, &ProviderError{Provider: "openai", Err: err}
			}
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return result, nil
}
