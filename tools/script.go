package tools

import (
	"context"
	"fmt"

	"github.com/everydev1618/goloom/script"
)

// ScriptTool is a tool declared in Loom source: its body is a statement
// block executed by the shared script executor. The body runs in a child
// scope of the executor's environment, so nested tool calls recurse
// through the same executor.
type ScriptTool struct {
	ToolName string
	Desc     string
	ParamDef []Param
	Body     *script.Block
	Executor *script.Executor
}

func (s *ScriptTool) Name() string        { return s.ToolName }
func (s *ScriptTool) Description() string { return s.Desc }
func (s *ScriptTool) Params() []Param     { return s.ParamDef }

// Execute binds the named arguments as parameters in a fresh child scope
// and runs the body. The returned value's text form is the tool result;
// a body that completes without returning yields "null".
func (s *ScriptTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	env := s.Executor.Env()
	env.Push()
	defer env.Pop()

	for _, p := range s.ParamDef {
		env.Define(p.Name, script.FromAny(args[p.Name]))
	}

	result, err := s.Executor.ExecBlock(ctx, s.Body)
	if err != nil {
		return "", err
	}
	return script.Stringify(result.Value), nil
}

// registryInvoker adapts a Registry to the script executor's Invoker
// interface, binding positional arguments to parameters in declaration
// order.
type registryInvoker struct {
	reg *Registry
}

// Invoker returns a script.Invoker over the registry.
func Invoker(reg *Registry) script.Invoker {
	return &registryInvoker{reg: reg}
}

func (ri *registryInvoker) Known(name string) bool {
	return ri.reg.Has(name)
}

func (ri *registryInvoker) Invoke(ctx context.Context, name string, args []any) (string, error) {
	t, ok := ri.reg.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	params := t.Params()
	if len(args) > len(params) {
		return "", fmt.Errorf("tool %q accepts %d arguments, got %d", name, len(params), len(args))
	}
	named := make(map[string]any, len(args))
	for i, a := range args {
		named[params[i].Name] = a
	}
	return ri.reg.Execute(ctx, name, named)
}
