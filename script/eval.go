package script

import (
	"fmt"
	"math"
	"strings"
)

// Eval synchronously evaluates an expression against an environment.
// It never suspends: a call expression is rejected with a
// CallInSyncContext error directing the caller to the Executor.
func Eval(expr Expr, env *Env) (Value, error) {
	switch e := expr.(type) {
	case *NullLit:
		return Null{}, nil
	case *BoolLit:
		return Bool{Value: e.Value}, nil
	case *NumberLit:
		return Number{Value: e.Value}, nil
	case *StringLit:
		return evalString(e, env)
	case *ArrayLit:
		items := make([]Value, len(e.Items))
		for i, item := range e.Items {
			v, err := Eval(item, env)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return Array{Items: items}, nil
	case *ObjectLit:
		fields := make(map[string]Value, len(e.Fields))
		for _, f := range e.Fields {
			v, err := Eval(f.Value, env)
			if err != nil {
				return nil, err
			}
			fields[f.Name] = v
		}
		return Object{Fields: fields}, nil
	case *Ident:
		if v, ok := env.Get(e.Name); ok {
			return v, nil
		}
		return nil, undefinedVariable(e.Name, e.Pos)
	case *BinaryExpr:
		return evalBinary(e, env)
	case *UnaryExpr:
		return evalUnary(e, env)
	case *MemberExpr:
		return evalMember(e, env)
	case *IndexExpr:
		return evalIndex(e, env)
	case *RangeExpr:
		return evalRange(e, env)
	case *LambdaLit:
		return &Lambda{Params: e.Params, Body: e.Body}, nil
	case *CallExpr:
		return nil, &Error{
			Kind:    ErrCallInSyncContext,
			Message: "call expressions require asynchronous evaluation",
			Pos:     e.Pos,
		}
	default:
		return nil, typeError(fmt.Sprintf("unsupported expression %T", expr), expr.Position())
	}
}

func evalString(e *StringLit, env *Env) (Value, error) {
	var b strings.Builder
	for _, part := range e.Parts {
		if part.Expr == nil {
			b.WriteString(part.Text)
			continue
		}
		v, err := Eval(part.Expr, env)
		if err != nil {
			return nil, err
		}
		b.WriteString(Stringify(v))
	}
	return String{Value: b.String()}, nil
}

func evalBinary(e *BinaryExpr, env *Env) (Value, error) {
	left, err := Eval(e.Left, env)
	if err != nil {
		return nil, err
	}
	right, err := Eval(e.Right, env)
	if err != nil {
		return nil, err
	}
	return applyBinary(e.Op, left, right, e.Pos)
}

func applyBinary(op string, left, right Value, pos Pos) (Value, error) {
	switch op {
	case "+":
		ln, lok := left.(Number)
		rn, rok := right.(Number)
		if lok && rok {
			return Number{Value: ln.Value + rn.Value}, nil
		}
		// String on either side stringifies the other.
		if _, ok := left.(String); ok {
			return String{Value: Stringify(left) + Stringify(right)}, nil
		}
		if _, ok := right.(String); ok {
			return String{Value: Stringify(left) + Stringify(right)}, nil
		}
		return nil, invalidOperands(op, left, right, pos)
	case "-", "*", "/", "%":
		ln, lok := left.(Number)
		rn, rok := right.(Number)
		if !lok || !rok {
			return nil, invalidOperands(op, left, right, pos)
		}
		switch op {
		case "-":
			return Number{Value: ln.Value - rn.Value}, nil
		case "*":
			return Number{Value: ln.Value * rn.Value}, nil
		case "/":
			if rn.Value == 0 {
				return nil, divisionByZero(pos)
			}
			return Number{Value: ln.Value / rn.Value}, nil
		default:
			if rn.Value == 0 {
				return nil, divisionByZero(pos)
			}
			// math.Mod follows the truncated-division sign convention.
			return Number{Value: math.Mod(ln.Value, rn.Value)}, nil
		}
	case "<", "<=", ">", ">=":
		ln, lok := left.(Number)
		rn, rok := right.(Number)
		if !lok || !rok {
			return nil, invalidOperands(op, left, right, pos)
		}
		switch op {
		case "<":
			return Bool{Value: ln.Value < rn.Value}, nil
		case "<=":
			return Bool{Value: ln.Value <= rn.Value}, nil
		case ">":
			return Bool{Value: ln.Value > rn.Value}, nil
		default:
			return Bool{Value: ln.Value >= rn.Value}, nil
		}
	case "==":
		return Bool{Value: Equal(left, right)}, nil
	case "!=":
		return Bool{Value: !Equal(left, right)}, nil
	case "&&":
		return Bool{Value: Truthy(left) && Truthy(right)}, nil
	case "||":
		return Bool{Value: Truthy(left) || Truthy(right)}, nil
	default:
		return nil, typeError(fmt.Sprintf("unsupported operator %q", op), pos)
	}
}

func evalUnary(e *UnaryExpr, env *Env) (Value, error) {
	v, err := Eval(e.Operand, env)
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
	case "!":
		return Bool{Value: !Truthy(v)}, nil
	default:
		return nil, typeError(fmt.Sprintf("unsupported unary operator %q", e.Op), e.Pos)
	}
}

func evalMember(e *MemberExpr, env *Env) (Value, error) {
	// Member access on an enum type name resolves the variant without
	// going through value evaluation.
	if ident, ok := e.Object.(*Ident); ok {
		v, isEnum, err := enumMember(env, ident.Name, e.Name, e.Pos)
		if isEnum {
			return v, err
		}
	}
	obj, err := Eval(e.Object, env)
	if err != nil {
		return nil, err
	}
	return memberOf(obj, e.Name, e.Pos)
}

func memberOf(obj Value, name string, pos Pos) (Value, error) {
	o, ok := obj.(Object)
	if !ok {
		return nil, undefinedProperty(name, pos)
	}
	v, present := o.Fields[name]
	if !present {
		return nil, undefinedProperty(name, pos)
	}
	return v, nil
}

func enumMember(env *Env, typeName, variantName string, pos Pos) (Value, bool, error) {
	t, found := env.Enum(typeName)
	if !found {
		return nil, false, nil
	}
	variant, declared := t.Variant(variantName)
	if !declared {
		return nil, true, undefinedProperty(variantName, pos)
	}
	if variant.Arity == 0 {
		return Enum{Type: t.Name, Variant: variant.Name}, true, nil
	}
	return EnumCtor{Type: t.Name, Variant: variant.Name, Arity: variant.Arity}, true, nil
}

func evalIndex(e *IndexExpr, env *Env) (Value, error) {
	target, err := Eval(e.Target, env)
	if err != nil {
		return nil, err
	}
	index, err := Eval(e.Index, env)
	if err != nil {
		return nil, err
	}
	return indexOf(target, index, e.Pos)
}

func indexOf(target, index Value, pos Pos) (Value, error) {
	switch t := target.(type) {
	case Array:
		n, ok := index.(Number)
		if !ok {
			return nil, typeError(fmt.Sprintf("array index must be a number, got %s", typeName(index)), pos)
		}
		i := int(n.Value)
		if i < 0 || i >= len(t.Items) {
			return nil, indexOutOfBounds(i, len(t.Items), pos)
		}
		return t.Items[i], nil
	case Object:
		s, ok := index.(String)
		if !ok {
			return nil, typeError(fmt.Sprintf("object key must be a string, got %s", typeName(index)), pos)
		}
		v, present := t.Fields[s.Value]
		if !present {
			return nil, undefinedProperty(s.Value, pos)
		}
		return v, nil
	default:
		return nil, notIndexable(target, pos)
	}
}

func evalRange(e *RangeExpr, env *Env) (Value, error) {
	low, err := Eval(e.Low, env)
	if err != nil {
		return nil, err
	}
	high, err := Eval(e.High, env)
	if err != nil {
		return nil, err
	}
	ln, lok := low.(Number)
	hn, hok := high.(Number)
	if !lok || !hok {
		return nil, invalidOperands("..", low, high, e.Pos)
	}
	start := int(ln.Value)
	end := int(hn.Value)
	items := make([]Value, 0)
	for i := start; i < end; i++ {
		items = append(items, Number{Value: float64(i)})
	}
	return Array{Items: items}, nil
}
