package script

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeInvoker is a scripted tool backend for executor tests.
type fakeInvoker struct {
	results map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeInvoker) Known(name string) bool {
	_, okR := f.results[name]
	_, okE := f.errs[name]
	return okR || okE
}

func (f *fakeInvoker) Invoke(_ context.Context, name string, args []any) (string, error) {
	f.calls = append(f.calls, name)
	if err, ok := f.errs[name]; ok {
		return "", err
	}
	return fmt.Sprintf(f.results[name], args...), nil
}

func letStmt(name string, v Expr) Stmt  { return &LetStmt{Name: name, Value: v} }
func exprStmt(e Expr) Stmt              { return &ExprStmt{Expr: e} }
func returnStmt(v Expr) Stmt            { return &ReturnStmt{Value: v} }
func block(stmts ...Stmt) *Block        { return &Block{Stmts: stmts} }
func call(name string, args ...Expr) Expr {
	return &CallExpr{Callee: ident(name), Args: args}
}

func TestExecBlockNormalCompletion(t *testing.T) {
	x := NewExecutor(NewEnv())
	result, err := x.ExecBlock(context.Background(), block(
		letStmt("a", num(1)),
		exprStmt(binary("+", ident("a"), num(1))),
	))
	if err != nil {
		t.Fatalf("ExecBlock: %v", err)
	}
	if result.Returned {
		t.Error("block without return reported as returned")
	}
	if !Equal(result.Value, Null{}) {
		t.Errorf("normal completion should yield null, got %s", Stringify(result.Value))
	}
}

func TestExecBlockReturnNullIsDistinct(t *testing.T) {
	x := NewExecutor(NewEnv())

	// return null must be observable as a return, not as completion.
	result, err := x.ExecBlock(context.Background(), block(returnStmt(&NullLit{})))
	if err != nil {
		t.Fatalf("ExecBlock: %v", err)
	}
	if !result.Returned {
		t.Error("explicit return null reported as normal completion")
	}
	if !Equal(result.Value, Null{}) {
		t.Errorf("returned value should be null, got %s", Stringify(result.Value))
	}

	// A bare return behaves the same way.
	result, err = x.ExecBlock(context.Background(), block(returnStmt(nil)))
	if err != nil {
		t.Fatalf("ExecBlock: %v", err)
	}
	if !result.Returned {
		t.Error("bare return reported as normal completion")
	}
}

func TestExecBlockShadowing(t *testing.T) {
	env := NewEnv()
	x := NewExecutor(env)

	result, err := x.ExecBlock(context.Background(), block(
		letStmt("x", num(5)),
		&IfStmt{Cond: boolean(true), Then: block(letStmt("x", num(10)))},
		returnStmt(ident("x")),
	))
	if err != nil {
		t.Fatalf("ExecBlock: %v", err)
	}
	if !result.Returned || !Equal(result.Value, Number{Value: 5}) {
		t.Errorf("inner let leaked: got %s, want 5", Stringify(result.Value))
	}
	if env.Depth() != 1 {
		t.Errorf("scopes leaked: depth %d after block", env.Depth())
	}
}

func TestExecBlockAssignMutatesOuterScope(t *testing.T) {
	x := NewExecutor(NewEnv())

	result, err := x.ExecBlock(context.Background(), block(
		letStmt("x", num(5)),
		&IfStmt{Cond: boolean(true), Then: block(&AssignStmt{Name: "x", Value: num(10)})},
		returnStmt(ident("x")),
	))
	if err != nil {
		t.Fatalf("ExecBlock: %v", err)
	}
	if !Equal(result.Value, Number{Value: 10}) {
		t.Errorf("assignment did not reach outer scope: got %s", Stringify(result.Value))
	}
}

func TestExecBlockAssignUndeclared(t *testing.T) {
	x := NewExecutor(NewEnv())
	_, err := x.ExecBlock(context.Background(), block(&AssignStmt{Name: "ghost", Value: num(1)}))
	if !IsKind(err, ErrUndefinedVariable) {
		t.Errorf("expected UndefinedVariable, got %v", err)
	}
}

func TestExecBlockNestedReturnPropagates(t *testing.T) {
	x := NewExecutor(NewEnv())

	result, err := x.ExecBlock(context.Background(), block(
		&IfStmt{
			Cond: boolean(true),
			Then: block(returnStmt(num(1))),
			Else: block(returnStmt(num(2))),
		},
		returnStmt(num(3)),
	))
	if err != nil {
		t.Fatalf("ExecBlock: %v", err)
	}
	if !result.Returned || !Equal(result.Value, Number{Value: 1}) {
		t.Errorf("nested return did not propagate: got %s", Stringify(result.Value))
	}
}

func TestExecBlockElseBranch(t *testing.T) {
	x := NewExecutor(NewEnv())
	result, err := x.ExecBlock(context.Background(), block(
		&IfStmt{
			Cond: boolean(false),
			Then: block(returnStmt(num(1))),
			Else: block(returnStmt(num(2))),
		},
	))
	if err != nil {
		t.Fatalf("ExecBlock: %v", err)
	}
	if !Equal(result.Value, Number{Value: 2}) {
		t.Errorf("else branch not taken: got %s", Stringify(result.Value))
	}
}

func TestExecToolCall(t *testing.T) {
	inv := &fakeInvoker{results: map[string]string{"greet": "hello %v"}}
	x := NewExecutor(NewEnv(), WithInvoker(inv))

	result, err := x.ExecBlock(context.Background(), block(
		letStmt("who", str("world")),
		returnStmt(call("greet", ident("who"))),
	))
	if err != nil {
		t.Fatalf("ExecBlock: %v", err)
	}
	if !Equal(result.Value, String{Value: "hello world"}) {
		t.Errorf("got %s, want hello world", Stringify(result.Value))
	}
	if len(inv.calls) != 1 || inv.calls[0] != "greet" {
		t.Errorf("expected one greet call, got %v", inv.calls)
	}
}

func TestExecToolCallNested(t *testing.T) {
	// Calls may appear at arbitrary depth inside an expression.
	inv := &fakeInvoker{results: map[string]string{"fetch": "42"}}
	x := NewExecutor(NewEnv(), WithInvoker(inv))

	result, err := x.ExecBlock(context.Background(), block(
		returnStmt(binary("+", str("result: "), call("fetch"))),
	))
	if err != nil {
		t.Fatalf("ExecBlock: %v", err)
	}
	if !Equal(result.Value, String{Value: "result: 42"}) {
		t.Errorf("got %s", Stringify(result.Value))
	}
}

func TestExecUnknownTool(t *testing.T) {
	x := NewExecutor(NewEnv(), WithInvoker(&fakeInvoker{}))
	_, err := x.ExecBlock(context.Background(), block(exprStmt(call("missing"))))
	if !IsKind(err, ErrUnknownTool) {
		t.Errorf("expected UnknownTool, got %v", err)
	}
}

func TestExecToolErrorAbortsBody(t *testing.T) {
	inv := &fakeInvoker{errs: map[string]error{"flaky": errors.New("boom")}}
	x := NewExecutor(NewEnv(), WithInvoker(inv))

	_, err := x.ExecBlock(context.Background(), block(
		letStmt("v", call("flaky")),
		returnStmt(ident("v")),
	))
	if !IsKind(err, ErrToolError) {
		t.Fatalf("expected ToolError, got %v", err)
	}
}

func TestExecLambdaApplication(t *testing.T) {
	x := NewExecutor(NewEnv())

	result, err := x.ExecBlock(context.Background(), block(
		letStmt("double", &LambdaLit{
			Params: []string{"n"},
			Body:   block(returnStmt(binary("*", ident("n"), num(2)))),
		}),
		returnStmt(call("double", num(21))),
	))
	if err != nil {
		t.Fatalf("ExecBlock: %v", err)
	}
	if !Equal(result.Value, Number{Value: 42}) {
		t.Errorf("got %s, want 42", Stringify(result.Value))
	}
}

func TestExecLambdaArity(t *testing.T) {
	x := NewExecutor(NewEnv())
	_, err := x.ExecBlock(context.Background(), block(
		letStmt("f", &LambdaLit{Params: []string{"a", "b"}, Body: block()}),
		exprStmt(call("f", num(1))),
	))
	if !IsKind(err, ErrTypeError) {
		t.Errorf("expected TypeError for arity mismatch, got %v", err)
	}
}

func TestExecEnumConstruction(t *testing.T) {
	env := NewEnv()
	env.RegisterEnum(&EnumType{Name: "Status", Variants: []EnumVariant{
		{Name: "Ok"},
		{Name: "Err", Arity: 1},
	}})
	x := NewExecutor(env)

	result, err := x.ExecBlock(context.Background(), block(
		returnStmt(&CallExpr{
			Callee: &MemberExpr{Object: ident("Status"), Name: "Err"},
			Args:   []Expr{str("timeout")},
		}),
	))
	if err != nil {
		t.Fatalf("ExecBlock: %v", err)
	}
	want := Enum{Type: "Status", Variant: "Err", Args: []Value{String{Value: "timeout"}}}
	if !Equal(result.Value, want) {
		t.Errorf("got %s, want %s", Stringify(result.Value), Stringify(want))
	}

	// Wrong arity is a type error.
	_, err = x.ExecBlock(context.Background(), block(
		exprStmt(&CallExpr{
			Callee: &MemberExpr{Object: ident("Status"), Name: "Err"},
			Args:   nil,
		}),
	))
	if !IsKind(err, ErrTypeError) {
		t.Errorf("expected TypeError, got %v", err)
	}
}

func TestEnvScopes(t *testing.T) {
	env := NewEnv()
	env.Define("a", Number{Value: 1})

	env.Push()
	env.Define("a", Number{Value: 2})
	if v, _ := env.Get("a"); !Equal(v, Number{Value: 2}) {
		t.Error("inner definition should shadow outer")
	}
	env.Pop()
	if v, _ := env.Get("a"); !Equal(v, Number{Value: 1}) {
		t.Error("outer binding should survive inner shadow")
	}

	// The global scope cannot be popped.
	env.Pop()
	env.Pop()
	if env.Depth() != 1 {
		t.Errorf("global scope popped: depth %d", env.Depth())
	}
	if !env.Contains("a") {
		t.Error("global binding lost")
	}

	if env.Set("undeclared", Null{}) {
		t.Error("Set on undeclared name should report false")
	}
}
