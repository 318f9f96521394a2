// Package schema models structured-output contracts for agents: a declared
// shape the final answer must parse into and satisfy.
package schema

import (
	"fmt"
	"strings"
)

// Kind identifies a field type.
type Kind int

const (
	// String is a JSON string.
	String Kind = iota

	// Number is a JSON number.
	Number

	// Boolean is a JSON boolean.
	Boolean

	// Array is a JSON array whose elements all satisfy Elem.
	Array

	// Object is a JSON object with a nested field list.
	Object

	// Named is a reference to a schema declared elsewhere by name.
	Named
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case String:
		return "String"
	case Number:
		return "Number"
	case Boolean:
		return "Boolean"
	case Array:
		return "Array"
	case Object:
		return "Object"
	case Named:
		return "Named"
	default:
		return "unknown"
	}
}

// Type describes the declared type of a single field.
type Type struct {
	Kind Kind

	// Elem is the element type for Array.
	Elem *Type

	// Fields is the nested field list for Object.
	Fields []Field

	// Name is the referenced schema name for Named.
	Name string

	// Ref is the resolved target for Named, nil when unresolved.
	// An unresolved reference validates as "any object".
	Ref *Schema
}

// Field is one named, typed field of a schema.
type Field struct {
	Name string
	Type Type
}

// Schema is an ordered list of named fields the output must satisfy.
type Schema struct {
	Name   string
	Fields []Field
}

// Resolve fills in Ref pointers for Named types from the given table.
// References with no entry in the table are left unresolved.
func (s *Schema) Resolve(table map[string]*Schema) {
	for i := range s.Fields {
		resolveType(&s.Fields[i].Type, table, map[string]bool{s.Name: true})
	}
}

func resolveType(t *Type, table map[string]*Schema, seen map[string]bool) {
	switch t.Kind {
	case Array:
		if t.Elem != nil {
			resolveType(t.Elem, table, seen)
		}
	case Object:
		for i := range t.Fields {
			resolveType(&t.Fields[i].Type, table, seen)
		}
	case Named:
		if seen[t.Name] {
			return // self-reference stays unresolved
		}
		t.Ref = table[t.Name]
	}
}

// JSONSchema returns the schema as a JSON Schema object suitable for
// embedding in a backend request.
func (s *Schema) JSONSchema() map[string]any {
	return fieldsToJSONSchema(s.Fields)
}

func fieldsToJSONSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		props[f.Name] = typeToJSONSchema(f.Type)
		required = append(required, f.Name)
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func typeToJSONSchema(t Type) map[string]any {
	switch t.Kind {
	case String:
		return map[string]any{"type": "string"}
	case Number:
		return map[string]any{"type": "number"}
	case Boolean:
		return map[string]any{"type": "boolean"}
	case Array:
		elem := map[string]any{"type": "string"}
		if t.Elem != nil {
			elem = typeToJSONSchema(*t.Elem)
		}
		return map[string]any{"type": "array", "items": elem}
	case Object:
		return fieldsToJSONSchema(t.Fields)
	case Named:
		if t.Ref != nil {
			return t.Ref.JSONSchema()
		}
		return map[string]any{"type": "object"}
	default:
		return map[string]any{"type": "object"}
	}
}

// Describe renders a compact textual description of the schema, used to
// augment the agent's system prompt.
func (s *Schema) Describe() string {
	var b strings.Builder
	writeFields(&b, s.Fields, 0)
	return b.String()
}

func writeFields(b *strings.Builder, fields []Field, depth int) {
	indent := strings.Repeat("  ", depth)
	b.WriteString(indent + "{\n")
	for _, f := range fields {
		fmt.Fprintf(b, "%s  %q: %s\n", indent, f.Name, describeType(f.Type, depth+1))
	}
	b.WriteString(indent + "}")
}

func describeType(t Type, depth int) string {
	switch t.Kind {
	case String:
		return "string"
	case Number:
		return "number"
	case Boolean:
		return "boolean"
	case Array:
		elem := "string"
		if t.Elem != nil {
			elem = describeType(*t.Elem, depth)
		}
		return "[" + elem + ", ...]"
	case Object:
		var b strings.Builder
		writeFields(&b, t.Fields, depth)
		return strings.TrimLeft(b.String(), " ")
	case Named:
		if t.Ref != nil {
			var b strings.Builder
			writeFields(&b, t.Ref.Fields, depth)
			return strings.TrimLeft(b.String(), " ")
		}
		return "object"
	default:
		return "object"
	}
}
