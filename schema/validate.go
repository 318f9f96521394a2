package schema

import "fmt"

// Violation describes the first point at which a decoded value failed
// to satisfy the schema. Path segments name object fields and use
// bracketed indices for array elements, e.g. "items[2].name".
type Violation struct {
	Path    string
	Message string
}

func (v *Violation) Error() string {
	if v.Path == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a decoded JSON value (as produced by encoding/json
// into any) against the schema. It reports only the first violation
// found, walking fields in declaration order.
func (s *Schema) Validate(value any) *Violation {
	return validateFields(s.Fields, value, "")
}

func validateFields(fields []Field, value any, path string) *Violation {
	obj, ok := value.(map[string]any)
	if !ok {
		return &Violation{Path: path, Message: fmt.Sprintf("expected object, got %s", jsonTypeName(value))}
	}
	for _, f := range fields {
		fieldPath := f.Name
		if path != "" {
			fieldPath = path + "." + f.Name
		}
		fv, present := obj[f.Name]
		if !present {
			return &Violation{Path: fieldPath, Message: "missing required field"}
		}
		if v := validateType(f.Type, fv, fieldPath); v != nil {
			return v
		}
	}
	return nil
}

func validateType(t Type, value any, path string) *Violation {
	switch t.Kind {
	case String:
		if _, ok := value.(string); !ok {
			return mismatch(path, "string", value)
		}
	case Number:
		if _, ok := value.(float64); !ok {
			return mismatch(path, "number", value)
		}
	case Boolean:
		if _, ok := value.(bool); !ok {
			return mismatch(path, "boolean", value)
		}
	case Array:
		arr, ok := value.([]any)
		if !ok {
			return mismatch(path, "array", value)
		}
		if t.Elem != nil {
			for i, elem := range arr {
				if v := validateType(*t.Elem, elem, fmt.Sprintf("%s[%d]", path, i)); v != nil {
					return v
				}
			}
		}
	case Object:
		return validateFields(t.Fields, value, path)
	case Named:
		if t.Ref != nil {
			return validateFields(t.Ref.Fields, value, path)
		}
		// Unresolved reference: accept any object.
		if _, ok := value.(map[string]any); !ok {
			return mismatch(path, "object", value)
		}
	}
	return nil
}

func mismatch(path, want string, got any) *Violation {
	return &Violation{Path: path, Message: fmt.Sprintf("expected %s, got %s", want, jsonTypeName(got))}
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
