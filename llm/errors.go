package llm

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned when a client is used without an API key
// configured in options or the environment.
var ErrMissingAPIKey = errors.New("missing API key")

// ErrUnknownProvider is returned by New for an unrecognized provider name.
var ErrUnknownProvider = errors.New("unknown provider")

// APIError is a non-success response from a backend's HTTP API. Backend
// errors are fatal to a run; they are never folded into tool results.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Body)
}

// ProviderError wraps a transport-level failure reaching a backend.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
