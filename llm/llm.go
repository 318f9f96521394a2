// Package llm provides language model backend clients.
//
// A Backend accepts a transcript plus tool definitions and returns the
// model's next turn: free text, requested tool calls, or both. Clients
// are hand-rolled over net/http with rate-limit retry; the factory New
// selects one by provider name.
package llm

import "fmt"

// New creates a backend client by provider name ("anthropic" or
// "openai"). The model overrides the provider default when non-empty.
func New(provider, model, apiKey string) (Backend, error) {
	switch provider {
	case "anthropic":
		var opts []AnthropicOption
		if model != "" {
			opts = append(opts, WithModel(model))
		}
		if apiKey != "" {
			opts = append(opts, WithAPIKey(apiKey))
		}
		return NewAnthropic(opts...), nil
	case "openai":
		var opts []OpenAIOption
		if model != "" {
			opts = append(opts, WithOpenAIModel(model))
		}
		if apiKey != "" {
			opts = append(opts, WithOpenAIKey(apiKey))
		}
		return NewOpenAI(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}
