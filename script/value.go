// Package script implements the Loom language runtime: the value model, the
// lexically scoped environment, the synchronous expression evaluator, and the
// suspending block evaluator used for tool bodies.
package script

import (
	"sort"
	"strconv"
	"strings"

	"github.com/everydev1618/goloom/schema"
)

// Value is the interface for all runtime values.
// The sealed marker restricts implementations to this package.
type Value interface {
	value() // sealed marker
}

// Null represents the null value.
type Null struct{}

func (Null) value() {}

// Bool represents a boolean value.
type Bool struct {
	Value bool
}

func (Bool) value() {}

// Number represents a numeric value, always a 64-bit float.
type Number struct {
	Value float64
}

func (Number) value() {}

// String represents a string value.
type String struct {
	Value string
}

func (String) value() {}

// Array represents an ordered sequence of values.
type Array struct {
	Items []Value
}

func (Array) value() {}

// Object represents a mapping of field names to values.
type Object struct {
	Fields map[string]Value
}

func (Object) value() {}

// Agent is the runtime form of an agent declaration. It is created once
// when the declaration is evaluated and never mutated afterwards.
type Agent struct {
	Name          string
	Prompt        string
	Tools         []string
	MaxSteps      int
	Model         string
	Output        *schema.Schema
	OutputRetries int
}

func (*Agent) value() {}

// ToolRef is a first-class reference to a registered tool by name.
type ToolRef struct {
	Name string
}

func (ToolRef) value() {}

// Lambda is an anonymous function value: a parameter list and a body.
type Lambda struct {
	Params []string
	Body   *Block
}

func (*Lambda) value() {}

// Enum is an instance of a declared enum type, optionally carrying
// payload values for variants declared with an arity.
type Enum struct {
	Type    string
	Variant string
	Args    []Value
}

func (Enum) value() {}

// EnumCtor is a variant constructor produced by member access on an enum
// type whose variant carries a payload. Calling it constructs the instance.
type EnumCtor struct {
	Type    string
	Variant string
	Arity   int
}

func (EnumCtor) value() {}

// Truthy reports the truthiness of a value: non-empty strings, non-zero
// numbers, true booleans, non-empty arrays, and every object, agent, tool
// reference, lambda, and enum value are truthy; null is not.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case Null:
		return false
	case Bool:
		return t.Value
	case Number:
		return t.Value != 0
	case String:
		return t.Value != ""
	case Array:
		return len(t.Items) > 0
	default:
		return true
	}
}

// Equal reports structural equality. Arrays and objects compare
// recursively; values of different variants are unequal, never an error.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av.Value == bv.Value
	case Number:
		bv, ok := b.(Number)
		return ok && av.Value == bv.Value
	case String:
		bv, ok := b.(String)
		return ok && av.Value == bv.Value
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !Equal(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av.Fields) != len(bv.Fields) {
			return false
		}
		for k, v := range av.Fields {
			w, present := bv.Fields[k]
			if !present || !Equal(v, w) {
				return false
			}
		}
		return true
	case *Agent:
		bv, ok := b.(*Agent)
		return ok && av == bv
	case ToolRef:
		bv, ok := b.(ToolRef)
		return ok && av.Name == bv.Name
	case *Lambda:
		bv, ok := b.(*Lambda)
		return ok && av == bv
	case Enum:
		bv, ok := b.(Enum)
		if !ok || av.Type != bv.Type || av.Variant != bv.Variant || len(av.Args) != len(bv.Args) {
			return false
		}
		for i := range av.Args {
			if !Equal(av.Args[i], bv.Args[i]) {
				return false
			}
		}
		return true
	case EnumCtor:
		bv, ok := b.(EnumCtor)
		return ok && av == bv
	default:
		return false
	}
}

// Stringify renders a value as text, as used by string interpolation and
// the `+` stringify rules. Numbers print without a trailing ".0".
func Stringify(v Value) string {
	switch t := v.(type) {
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(t.Value)
	case Number:
		return strconv.FormatFloat(t.Value, 'f', -1, 64)
	case String:
		return t.Value
	case Array:
		parts := make([]string, len(t.Items))
		for i, item := range t.Items {
			parts[i] = Stringify(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Object:
		keys := make([]string, 0, len(t.Fields))
		for k := range t.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + Stringify(t.Fields[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Agent:
		return "agent " + t.Name
	case ToolRef:
		return "tool " + t.Name
	case *Lambda:
		return "lambda/" + strconv.Itoa(len(t.Params))
	case Enum:
		if len(t.Args) == 0 {
			return t.Type + "." + t.Variant
		}
		parts := make([]string, len(t.Args))
		for i, a := range t.Args {
			parts[i] = Stringify(a)
		}
		return t.Type + "." + t.Variant + "(" + strings.Join(parts, ", ") + ")"
	case EnumCtor:
		return t.Type + "." + t.Variant
	default:
		return ""
	}
}

// ToAny converts a value into the encoding/json representation used for
// tool arguments: nil, bool, float64, string, []any, map[string]any.
// Agents, tool references, lambdas, and enums flatten to their text form.
func ToAny(v Value) any {
	switch t := v.(type) {
	case Null:
		return nil
	case Bool:
		return t.Value
	case Number:
		return t.Value
	case String:
		return t.Value
	case Array:
		out := make([]any, len(t.Items))
		for i, item := range t.Items {
			out[i] = ToAny(item)
		}
		return out
	case Object:
		out := make(map[string]any, len(t.Fields))
		for k, f := range t.Fields {
			out[k] = ToAny(f)
		}
		return out
	default:
		return Stringify(v)
	}
}

// FromAny converts a decoded JSON value into a runtime value.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null{}
	case bool:
		return Bool{Value: t}
	case float64:
		return Number{Value: t}
	case int:
		return Number{Value: float64(t)}
	case string:
		return String{Value: t}
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromAny(e)
		}
		return Array{Items: items}
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			fields[k] = FromAny(e)
		}
		return Object{Fields: fields}
	default:
		return Null{}
	}
}
