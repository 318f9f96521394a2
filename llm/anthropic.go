package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Anthropic is a Backend over the Anthropic messages API.
type Anthropic struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
	maxTokens  int
	logger     *slog.Logger
}

// AnthropicOption configures the Anthropic client.
type AnthropicOption func(*Anthropic)

// WithAPIKey sets the API key.
func WithAPIKey(key string) AnthropicOption {
	return func(a *Anthropic) {
		a.apiKey = key
	}
}

// WithModel sets the default model.
func WithModel(model string) AnthropicOption {
	return func(a *Anthropic) {
		a.model = model
	}
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) AnthropicOption {
	return func(a *Anthropic) {
		a.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) AnthropicOption {
	return func(a *Anthropic) {
		a.httpClient = client
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) AnthropicOption {
	return func(a *Anthropic) {
		a.logger = logger
	}
}

// Default Anthropic configuration values
const (
	DefaultAnthropicTimeout = 5 * time.Minute
	DefaultAnthropicModel   = "claude-sonnet-4-20250514"
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultMaxTokens        = 8192
)

// NewAnthropic creates a new Anthropic client. The API key defaults to
// the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(opts ...AnthropicOption) *Anthropic {
	a := &Anthropic{
		apiKey:  os.Getenv("ANTHROPIC_API_KEY"),
		baseURL: DefaultAnthropicBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultAnthropicTimeout,
		},
		model:     DefaultAnthropicModel,
		maxTokens: defaultMaxTokens,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// anthropicRequest is the API request format.
type anthropicRequest struct {
	Model     string          `json:"model"`
	Messages  []anthropicMsg  `json:"messages"`
	System    string          `json:"system,omitempty"`
	MaxTokens int             `json:"max_tokens"`
	Tools     []anthropicTool `json:"tools,omitempty"`
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentBlock
}

type contentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// anthropicResponse is the API response format.
type anthropicResponse struct {
	ID         string         `json:"id"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat sends the transcript and returns the model's next turn.
func (a *Anthropic) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if a.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	resp, err := a.doRequest(ctx, a.buildRequest(req))
	if err != nil {
		return nil, err
	}
	return parseAnthropicResponse(resp), nil
}

func (a *Anthropic) buildRequest(req *ChatRequest) *anthropicRequest {
	out := &anthropicRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
	}
	if req.Model != "" {
		out.Model = req.Model
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			out.System = msg.Content
			if req.JSONMode {
				// The messages API has no JSON response mode; instruct
				// the model through the system prompt instead.
				out.System += "\n\nRespond only with a single valid JSON object, no prose."
			}
		case RoleAssistant:
			out.Messages = append(out.Messages, anthropicMsg{
				Role:    "assistant",
				Content: assistantBlocks(msg),
			})
		case RoleTool:
			// Tool results travel as user-role tool_result blocks.
			out.Messages = append(out.Messages, anthropicMsg{
				Role: "user",
				Content: []contentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
					IsError:   msg.IsError,
				}},
			})
		default:
			out.Messages = append(out.Messages, anthropicMsg{
				Role:    "user",
				Content: msg.Content,
			})
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	return out
}

func assistantBlocks(msg Message) []contentBlock {
	var blocks []contentBlock
	if msg.Content != "" {
		blocks = append(blocks, contentBlock{Type: "text", Text: msg.Content})
	}
	for _, call := range msg.ToolCalls {
		input := call.Arguments
		if input == nil {
			input = map[string]any{}
		}
		blocks = append(blocks, contentBlock{
			Type:  "tool_use",
			ID:    call.ID,
			Name:  call.Name,
			Input: input,
		})
	}
	return blocks
}

func (a *Anthropic) doRequest(ctx context.Context, req *anthropicRequest) (*anthropicResponse, error) {
	const maxRetries = 5

	for attempt := 0; attempt <= maxRetries; attempt++ {
		body, err := json.Marshal(req)
		if err != nil {
			return nil, &ProviderError{Provider: "anthropic", Err: err}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			return nil, &ProviderError{Provider: "anthropic", Err: err}
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", a.apiKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")

		httpResp, err := a.httpClient.Do(httpReq)
		if err != nil {
			return nil, &ProviderError{Provider: "anthropic", Err: err}
		}

		respBody, err := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if err != nil {
			return nil, &ProviderError{Provider: "anthropic", Err: err}
		}

		if httpResp.StatusCode == http.StatusOK {
			var resp anthropicResponse
			if err := json.Unmarshal(respBody, &resp); err != nil {
				return nil, &ProviderError{Provider: "anthropic", Err: err}
			}
			return &resp, nil
		}

		// Retry on 429 (rate limit) and 529 (overloaded).
		if (httpResp.StatusCode == 429 || httpResp.StatusCode == 529) && attempt < maxRetries {
			wait := retryAfterDelay(httpResp, attempt)
			a.logger.Warn("API rate limited, retrying", "status", httpResp.StatusCode, "attempt", attempt+1, "wait", wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		return nil, &APIError{Provider: "anthropic", Status: httpResp.StatusCode, Body: string(respBody)}
	}

	return nil, &ProviderError{Provider: "anthropic", Err: context.DeadlineExceeded}
}

// retryAfterDelay returns how long to wait before retrying a rate-limited request.
// It respects the retry-after header if present, otherwise uses exponential backoff.
func retryAfterDelay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("retry-after"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	// Exponential backoff: 5s, 10s, 20s, 40s, 60s
	wait := time.Duration(5<<uint(attempt)) * time.Second
	if wait > 60*time.Second {
		wait = 60 * time.Second
	}
	return wait
}

func parseAnthropicResponse(resp *anthropicResponse) *ChatResponse {
	result := &ChatResponse{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}

	switch resp.StopReason {
	case "end_turn":
		result.StopReason = StopReasonEnd
	case "tool_use":
		result.StopReason = StopReasonToolUse
	case "max_tokens":
		result.StopReason = StopReasonLength
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			result.Content += block.Text
		case "tool_use":
			args := block.Input
			if args == nil {
				args = map[string]any{}
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	return result
}
