package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicChat(t *testing.T) {
	var captured anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(anthropicResponse{
			Content:    []contentBlock{{Type: "text", Text: "Hello!"}},
			StopReason: "end_turn",
		})
	}))
	defer server.Close()

	client := NewAnthropic(WithAPIKey("test-key"), WithBaseURL(server.URL), WithModel("claude-test"))
	resp, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "You are helpful."},
			{Role: RoleUser, Content: "hi"},
		},
		Tools: []ToolSchema{{Name: "search", Description: "Search", InputSchema: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Content != "Hello!" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.StopReason != StopReasonEnd {
		t.Errorf("stop reason = %q", resp.StopReason)
	}
	if captured.Model != "claude-test" {
		t.Errorf("model = %q", captured.Model)
	}
	if captured.System != "You are helpful." {
		t.Errorf("system = %q", captured.System)
	}
	// System message must not appear in the messages array.
	if len(captured.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(captured.Messages))
	}
	if len(captured.Tools) != 1 || captured.Tools[0].Name != "search" {
		t.Errorf("tools = %+v", captured.Tools)
	}
}

func TestAnthropicChatToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []contentBlock{
				{Type: "text", Text: "Let me check."},
				{Type: "tool_use", ID: "toolu_1", Name: "search", Input: map[string]any{"query": "go"}},
			},
			StopReason: "tool_use",
		})
	}))
	defer server.Close()

	client := NewAnthropic(WithAPIKey("k"), WithBaseURL(server.URL))
	resp, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "toolu_1" || call.Name != "search" || call.Arguments["query"] != "go" {
		t.Errorf("tool call = %+v", call)
	}
	if resp.StopReason != StopReasonToolUse {
		t.Errorf("stop reason = %q", resp.StopReason)
	}
}

func TestAnthropicToolResultEncoding(t *testing.T) {
	var captured anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []contentBlock{{Type: "text", Text: "done"}},
		})
	}))
	defer server.Close()

	client := NewAnthropic(WithAPIKey("k"), WithBaseURL(server.URL))
	_, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "toolu_1", Name: "search", Arguments: map[string]any{"q": "x"}}}},
			{Role: RoleTool, ToolCallID: "toolu_1", Content: "no results", IsError: true},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(captured.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(captured.Messages))
	}

	// The assistant turn carries a tool_use block.
	assistant := captured.Messages[1]
	if assistant.Role != "assistant" {
		t.Errorf("role = %q", assistant.Role)
	}
	blocks := assistant.Content.([]any)
	first := blocks[0].(map[string]any)
	if first["type"] != "tool_use" || first["id"] != "toolu_1" {
		t.Errorf("assistant block = %+v", first)
	}

	// The tool result travels as a user-role tool_result block.
	toolMsg := captured.Messages[2]
	if toolMsg.Role != "user" {
		t.Errorf("tool result role = %q, want user", toolMsg.Role)
	}
	resultBlock := toolMsg.Content.([]any)[0].(map[string]any)
	if resultBlock["type"] != "tool_result" || resultBlock["tool_use_id"] != "toolu_1" {
		t.Errorf("result block = %+v", resultBlock)
	}
	if resultBlock["is_error"] != true {
		t.Errorf("is_error not set: %+v", resultBlock)
	}
}

func TestAnthropicJSONMode(t *testing.T) {
	var captured anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []contentBlock{{Type: "text", Text: `{"ok":true}`}},
		})
	}))
	defer server.Close()

	client := NewAnthropic(WithAPIKey("k"), WithBaseURL(server.URL))
	_, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleSystem, Content: "prompt"}, {Role: RoleUser, Content: "go"}},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if captured.System == "prompt" {
		t.Error("JSON mode should augment the system prompt")
	}
}

func TestAnthropicAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewAnthropic(WithAPIKey("k"), WithBaseURL(server.URL))
	_, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Provider != "anthropic" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestAnthropicMissingKey(t *testing.T) {
	client := NewAnthropic(WithAPIKey(""))
	_, err := client.Chat(context.Background(), &ChatRequest{})
	if err != ErrMissingAPIKey {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}
