// Package loom is an execution engine for the Loom agent language.
//
// A .loom file declares agents, tools, output schemas, and enums. Load
// compiles a file into a Program; a Runner executes an agent from that
// program against an LLM backend, dispatching the tool calls the model
// requests and validating the final answer against the agent's declared
// output schema.
//
// Basic usage:
//
//	prog, err := loom.LoadFile("crew.loom")
//	backend, err := llm.New("anthropic", "", os.Getenv("ANTHROPIC_API_KEY"))
//	runner := loom.NewRunner(backend, prog)
//	result, err := runner.Run(ctx, "researcher", "What changed in Go 1.24?")
package loom
