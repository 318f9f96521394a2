package loom

import (
	"errors"
	"fmt"

	"github.com/everydev1618/goloom/schema"
)

// ErrUnknownAgent is returned when a run names an agent the program
// does not declare.
var ErrUnknownAgent = errors.New("unknown agent")

// MaxStepsError is returned when a run exhausts its step budget
// without producing a final answer.
type MaxStepsError struct {
	Agent string
	Limit int
}

func (e *MaxStepsError) Error() string {
	return fmt.Sprintf("agent %q exceeded max steps (%d)", e.Agent, e.Limit)
}

// OutputValidationError is returned when the model's final answer
// never satisfied the agent's output schema within the retry budget.
// Expected carries the declared schema and Raw the last rejected text,
// so a failure can be reproduced from the error alone.
type OutputValidationError struct {
	Agent    string
	Message  string
	Expected *schema.Schema
	Raw      string
}

func (e *OutputValidationError) Error() string {
	return fmt.Sprintf("agent %q output validation failed: %s", e.Agent, e.Message)
}
