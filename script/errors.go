package script

import "fmt"

// ErrorKind classifies a runtime error.
type ErrorKind string

const (
	ErrUndefinedVariable ErrorKind = "UndefinedVariable"
	ErrUndefinedProperty ErrorKind = "UndefinedProperty"
	ErrTypeError         ErrorKind = "TypeError"
	ErrInvalidOperands   ErrorKind = "InvalidOperands"
	ErrDivisionByZero    ErrorKind = "DivisionByZero"
	ErrIndexOutOfBounds  ErrorKind = "IndexOutOfBounds"
	ErrNotIndexable      ErrorKind = "NotIndexable"
	ErrUnknownTool       ErrorKind = "UnknownTool"
	ErrToolError         ErrorKind = "ToolError"

	// ErrCallInSyncContext marks a call expression reaching the
	// synchronous evaluator, which never suspends. Callers needing calls
	// must go through the Executor.
	ErrCallInSyncContext ErrorKind = "CallInSyncContext"
)

// Error is a classified runtime error with a source position.
type Error struct {
	Kind    ErrorKind
	Message string
	Pos     Pos

	// Index and Length are set for IndexOutOfBounds.
	Index  int
	Length int

	// Name is set for UndefinedVariable/UnknownTool, Property for
	// UndefinedProperty.
	Name     string
	Property string
}

func (e *Error) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s at %d:%d: %s", e.Kind, e.Pos.Line, e.Pos.Col, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	se, ok := err.(*Error)
	return ok && se.Kind == kind
}

func undefinedVariable(name string, pos Pos) *Error {
	return &Error{
		Kind:    ErrUndefinedVariable,
		Message: fmt.Sprintf("undefined variable %q", name),
		Name:    name,
		Pos:     pos,
	}
}

func undefinedProperty(prop string, pos Pos) *Error {
	return &Error{
		Kind:     ErrUndefinedProperty,
		Message:  fmt.Sprintf("undefined property %q", prop),
		Property: prop,
		Pos:      pos,
	}
}

func invalidOperands(op string, left, right Value, pos Pos) *Error {
	return &Error{
		Kind:    ErrInvalidOperands,
		Message: fmt.Sprintf("invalid operands for %q: %s and %s", op, typeName(left), typeName(right)),
		Pos:     pos,
	}
}

func divisionByZero(pos Pos) *Error {
	return &Error{Kind: ErrDivisionByZero, Message: "division by zero", Pos: pos}
}

func indexOutOfBounds(index, length int, pos Pos) *Error {
	return &Error{
		Kind:    ErrIndexOutOfBounds,
		Message: fmt.Sprintf("index %d out of bounds for length %d", index, length),
		Index:   index,
		Length:  length,
		Pos:     pos,
	}
}

func notIndexable(v Value, pos Pos) *Error {
	return &Error{
		Kind:    ErrNotIndexable,
		Message: fmt.Sprintf("%s is not indexable", typeName(v)),
		Pos:     pos,
	}
}

func typeError(msg string, pos Pos) *Error {
	return &Error{Kind: ErrTypeError, Message: msg, Pos: pos}
}

func unknownTool(name string, pos Pos) *Error {
	return &Error{
		Kind:    ErrUnknownTool,
		Message: fmt.Sprintf("unknown tool %q", name),
		Name:    name,
		Pos:     pos,
	}
}

func toolError(name, msg string, pos Pos) *Error {
	return &Error{
		Kind:    ErrToolError,
		Message: fmt.Sprintf("tool %q: %s", name, msg),
		Name:    name,
		Pos:     pos,
	}
}

func typeName(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	case *Agent:
		return "agent"
	case ToolRef:
		return "tool"
	case *Lambda:
		return "lambda"
	case Enum:
		return "enum"
	case EnumCtor:
		return "enum constructor"
	default:
		return "unknown"
	}
}
