package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everydev1618/goloom/script"
)

func TestScriptToolExecution(t *testing.T) {
	env := script.NewEnv()
	reg := NewRegistry()
	exec := script.NewExecutor(env, script.WithInvoker(Invoker(reg)))

	// tool shout(text) { return text + "!" }
	body := &script.Block{Stmts: []script.Stmt{
		&script.ReturnStmt{Value: &script.BinaryExpr{
			Op:    "+",
			Left:  &script.Ident{Name: "text"},
			Right: &script.StringLit{Parts: []script.StringPart{{Text: "!"}}},
		}},
	}}
	require.NoError(t, reg.Register(&ScriptTool{
		ToolName: "shout",
		Desc:     "Append an exclamation mark",
		ParamDef: []Param{{Name: "text", Type: "string", Required: true}},
		Body:     body,
		Executor: exec,
	}))

	out, err := reg.Execute(context.Background(), "shout", map[string]any{"text": "hey"})
	require.NoError(t, err)
	assert.Equal(t, "hey!", out)

	// Parameters must not leak into the shared environment.
	assert.False(t, env.Contains("text"))
}

func TestScriptToolCallsOtherTools(t *testing.T) {
	env := script.NewEnv()
	reg := NewRegistry()
	exec := script.NewExecutor(env, script.WithInvoker(Invoker(reg)))

	require.NoError(t, reg.Register(&Func{
		ToolName: "base",
		Desc:     "Return a constant",
		Fn: func(_ context.Context, _ map[string]any) (string, error) {
			return "42", nil
		},
	}))

	// tool wrap() { return "value: " + base() }
	body := &script.Block{Stmts: []script.Stmt{
		&script.ReturnStmt{Value: &script.BinaryExpr{
			Op:    "+",
			Left:  &script.StringLit{Parts: []script.StringPart{{Text: "value: "}}},
			Right: &script.CallExpr{Callee: &script.Ident{Name: "base"}},
		}},
	}}
	require.NoError(t, reg.Register(&ScriptTool{
		ToolName: "wrap",
		Desc:     "Wrap the base value",
		Body:     body,
		Executor: exec,
	}))

	out, err := reg.Execute(context.Background(), "wrap", nil)
	require.NoError(t, err)
	assert.Equal(t, "value: 42", out)
}

func TestInvokerPositionalBinding(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Func{
		ToolName: "join",
		Desc:     "Join two strings",
		ParamDef: []Param{
			{Name: "left", Type: "string", Required: true},
			{Name: "right", Type: "string", Required: true},
		},
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			return args["left"].(string) + args["right"].(string), nil
		},
	}))

	inv := Invoker(reg)
	assert.True(t, inv.Known("join"))
	assert.False(t, inv.Known("ghost"))

	out, err := inv.Invoke(context.Background(), "join", []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "ab", out)

	// Too many arguments is an error before execution.
	_, err = inv.Invoke(context.Background(), "join", []any{"a", "b", "c"})
	assert.Error(t, err)
}
