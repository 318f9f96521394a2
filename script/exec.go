package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Invoker resolves and executes tools on behalf of the Executor. Args
// are positional, already converted to their JSON representation.
// Execution errors are surfaced as plain errors and classified by the
// Executor.
type Invoker interface {
	Invoke(ctx context.Context, name string, args []any) (string, error)
	Known(name string) bool
}

// Control is the outcome of executing a block. Returned distinguishes an
// explicit return from normal completion, because a returned value can
// itself be Null.
type Control struct {
	Returned bool
	Value    Value
}

// Normal is the control result of a block that completed without
// returning.
func Normal(v Value) Control {
	return Control{Value: v}
}

// Returned is the control result of an explicit return statement.
func Returned(v Value) Control {
	return Control{Returned: true, Value: v}
}

// Executor evaluates statement blocks and the expressions inside them,
// suspending at tool-call boundaries. One executor is shared across a
// run; tool bodies execute in child scopes of its environment rather
// than in cloned environments.
type Executor struct {
	env     *Env
	invoker Invoker
	logger  *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithInvoker sets the tool invoker consulted for call expressions.
func WithInvoker(inv Invoker) ExecutorOption {
	return func(x *Executor) { x.invoker = inv }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(x *Executor) { x.logger = logger }
}

// NewExecutor creates an executor over the given environment.
func NewExecutor(env *Env, opts ...ExecutorOption) *Executor {
	x := &Executor{
		env:    env,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Env returns the executor's environment.
func (x *Executor) Env() *Env {
	return x.env
}

// ExecBlock executes a statement list under one fresh child scope. The
// scope is pushed on entry and popped on every exit path. A block that
// runs to completion without a return yields Normal(Null).
func (x *Executor) ExecBlock(ctx context.Context, b *Block) (Control, error) {
	x.env.Push()
	defer x.env.Pop()

	for _, stmt := range b.Stmts {
		switch s := stmt.(type) {
		case *LetStmt:
			v, err := x.EvalExpr(ctx, s.Value)
			if err != nil {
				return Control{}, err
			}
			x.env.Define(s.Name, v)
		case *AssignStmt:
			v, err := x.EvalExpr(ctx, s.Value)
			if err != nil {
				return Control{}, err
			}
			if !x.env.Set(s.Name, v) {
				return Control{}, undefinedVariable(s.Name, s.Pos)
			}
		case *ReturnStmt:
			if s.Value == nil {
				return Returned(Null{}), nil
			}
			v, err := x.EvalExpr(ctx, s.Value)
			if err != nil {
				return Control{}, err
			}
			return Returned(v), nil
		case *IfStmt:
			cond, err := x.EvalExpr(ctx, s.Cond)
			if err != nil {
				return Control{}, err
			}
			branch := s.Then
			if !Truthy(cond) {
				branch = s.Else
			}
			if branch == nil {
				continue
			}
			result, err := x.ExecBlock(ctx, branch)
			if err != nil {
				return Control{}, err
			}
			if result.Returned {
				return result, nil
			}
		case *ExprStmt:
			if _, err := x.EvalExpr(ctx, s.Expr); err != nil {
				return Control{}, err
			}
		default:
			return Control{}, typeError(fmt.Sprintf("unsupported statement %T", stmt), stmt.Position())
		}
	}
	return Normal(Null{}), nil
}

// EvalExpr evaluates an expression on the asynchronous path, where call
// expressions are permitted. Expressions without calls are delegated to
// the synchronous evaluator.
func (x *Executor) EvalExpr(ctx context.Context, expr Expr) (Value, error) {
	if !containsCall(expr) {
		return Eval(expr, x.env)
	}
	switch e := expr.(type) {
	case *CallExpr:
		return x.evalCall(ctx, e)
	case *StringLit:
		var b strings.Builder
		for _, part := range e.Parts {
			if part.Expr == nil {
				b.WriteString(part.Text)
				continue
			}
			v, err := x.EvalExpr(ctx, part.Expr)
			if err != nil {
				return nil, err
			}
			b.WriteString(Stringify(v))
		}
		return String{Value: b.String()}, nil
	case *ArrayLit:
		items := make([]Value, len(e.Items))
		for i, item := range e.Items {
			v, err := x.EvalExpr(ctx, item)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return Array{Items: items}, nil
	case *ObjectLit:
		fields := make(map[string]Value, len(e.Fields))
		for _, f := range e.Fields {
			v, err := x.EvalExpr(ctx, f.Value)
			if err != nil {
				return nil, err
			}
			fields[f.Name] = v
		}
		return Object{Fields: fields}, nil
	case *BinaryExpr:
		left, err := x.EvalExpr(ctx, e.Left)
		if err != nil {
			return nil, err
		}
		right, err := x.EvalExpr(ctx, e.Right)
		if err != nil {
			return nil, err
		}
		return applyBinary(e.Op, left, right, e.Pos)
	case *UnaryExpr:
		v, err := x.EvalExpr(ctx, e.Operand)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case "-":
			n, ok := v.(Number)
			if !ok {
				return nil, typeError(fmt.Sprintf("cannot negate %s", typeName(v)), e.Pos)
			}
			return Number{Value: -n.Value}, nil
		default:
			return Bool{Value: !Truthy(v)}, nil
		}
	case *MemberExpr:
		obj, err := x.EvalExpr(ctx, e.Object)
		if err != nil {
			return nil, err
		}
		return memberOf(obj, e.Name, e.Pos)
	case *IndexExpr:
		target, err := x.EvalExpr(ctx, e.Target)
		if err != nil {
			return nil, err
		}
		index, err := x.EvalExpr(ctx, e.Index)
		if err != nil {
			return nil, err
		}
		return indexOf(target, index, e.Pos)
	case *RangeExpr:
		low, err := x.EvalExpr(ctx, e.Low)
		if err != nil {
			return nil, err
		}
		high, err := x.EvalExpr(ctx, e.High)
		if err != nil {
			return nil, err
		}
		ln, lok := low.(Number)
		hn, hok := high.(Number)
		if !lok || !hok {
			return nil, invalidOperands("..", low, high, e.Pos)
		}
		items := make([]Value, 0)
		for i := int(ln.Value); i < int(hn.Value); i++ {
			items = append(items, Number{Value: float64(i)})
		}
		return Array{Items: items}, nil
	default:
		return Eval(expr, x.env)
	}
}

// evalCall resolves a call expression. Lambdas in scope are applied;
// member access on an enum type constructs an enum instance; any other
// plain identifier is a tool name dispatched through the invoker.
func (x *Executor) evalCall(ctx context.Context, e *CallExpr) (Value, error) {
	args := make([]Value, len(e.Args))
	for i, a := range e.Args {
		v, err := x.EvalExpr(ctx, a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	if member, ok := e.Callee.(*MemberExpr); ok {
		if ident, isIdent := member.Object.(*Ident); isIdent {
			ctor, isEnum, err := enumMember(x.env, ident.Name, member.Name, member.Pos)
			if isEnum {
				if err != nil {
					return nil, err
				}
				return x.construct(ctor, args, e.Pos)
			}
		}
		return nil, typeError("callee must be a tool name or lambda", e.Pos)
	}

	ident, ok := e.Callee.(*Ident)
	if !ok {
		return nil, typeError("callee must be a tool name or lambda", e.Pos)
	}

	if v, found := x.env.Get(ident.Name); found {
		switch callee := v.(type) {
		case *Lambda:
			return x.Apply(ctx, callee, args, e.Pos)
		case EnumCtor:
			return x.construct(callee, args, e.Pos)
		case ToolRef:
			return x.invokeTool(ctx, callee.Name, args, e.Pos)
		}
	}
	return x.invokeTool(ctx, ident.Name, args, e.Pos)
}

func (x *Executor) construct(ctor Value, args []Value, pos Pos) (Value, error) {
	c, ok := ctor.(EnumCtor)
	if !ok {
		// Unit variants are values, not constructors.
		return nil, typeError(fmt.Sprintf("%s is not callable", typeName(ctor)), pos)
	}
	if len(args) != c.Arity {
		return nil, typeError(fmt.Sprintf("%s.%s expects %d arguments, got %d", c.Type, c.Variant, c.Arity, len(args)), pos)
	}
	return Enum{Type: c.Type, Variant: c.Variant, Args: args}, nil
}

// Apply invokes a lambda: parameters are bound in a fresh child scope
// and the body executes under it. A body that falls off the end yields
// Null.
func (x *Executor) Apply(ctx context.Context, fn *Lambda, args []Value, pos Pos) (Value, error) {
	if len(args) != len(fn.Params) {
		return nil, typeError(fmt.Sprintf("lambda expects %d arguments, got %d", len(fn.Params), len(args)), pos)
	}
	x.env.Push()
	defer x.env.Pop()
	for i, p := range fn.Params {
		x.env.Define(p, args[i])
	}
	result, err := x.ExecBlock(ctx, fn.Body)
	if err != nil {
		return nil, err
	}
	if result.Returned {
		return result.Value, nil
	}
	return Null{}, nil
}

func (x *Executor) invokeTool(ctx context.Context, name string, args []Value, pos Pos) (Value, error) {
	if x.invoker == nil || !x.invoker.Known(name) {
		return nil, unknownTool(name, pos)
	}
	raw := make([]any, len(args))
	for i, a := range args {
		raw[i] = ToAny(a)
	}
	x.logger.Debug("invoking tool", "tool", name, "args", len(raw))
	text, err := x.invoker.Invoke(ctx, name, raw)
	if err != nil {
		return nil, toolError(name, err.Error(), pos)
	}
	return String{Value: text}, nil
}

func containsCall(expr Expr) bool {
	switch e := expr.(type) {
	case *CallExpr:
		return true
	case *StringLit:
		for _, p := range e.Parts {
			if p.Expr != nil && containsCall(p.Expr) {
				return true
			}
		}
	case *ArrayLit:
		for _, item := range e.Items {
			if containsCall(item) {
				return true
			}
		}
	case *ObjectLit:
		for _, f := range e.Fields {
			if containsCall(f.Value) {
				return true
			}
		}
	case *BinaryExpr:
		return containsCall(e.Left) || containsCall(e.Right)
	case *UnaryExpr:
		return containsCall(e.Operand)
	case *MemberExpr:
		return containsCall(e.Object)
	case *IndexExpr:
		return containsCall(e.Target) || containsCall(e.Index)
	case *RangeExpr:
		return containsCall(e.Low) || containsCall(e.High)
	}
	return false
}
