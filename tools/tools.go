// Package tools implements the tool registry: named capabilities the
// model may call, each with a description, an ordered parameter list,
// and a text-producing execution.
package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/everydev1618/goloom/llm"
)

// ErrNotFound is returned when a tool name is not registered.
var ErrNotFound = errors.New("tool not found")

// ExecError wraps a failure inside a tool's execution.
type ExecError struct {
	Tool string
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("tool %q: %v", e.Tool, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Param is one declared tool parameter. Order matters: positional
// invocations from scripts bind arguments in declaration order.
type Param struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Description string   `yaml:"description"`
	Required    bool     `yaml:"required"`
	Enum        []string `yaml:"enum"`
}

// Tool is an invocable capability.
type Tool interface {
	Name() string
	Description() string
	Params() []Param
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds registered tools. It is read-only during a run and
// safe for concurrent reads across independent runs.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*entry
	order   []string
	sandbox string
}

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
	input  map[string]any
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSandbox confines path parameters of file tools to a directory.
func WithSandbox(path string) RegistryOption {
	return func(r *Registry) {
		r.sandbox = path
	}
}

// NewRegistry creates an empty tool registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Its parameter list is compiled to a JSON schema
// used to validate model-supplied arguments before execution.
func (r *Registry) Register(t Tool) error {
	input := BuildInputSchema(t.Params())

	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("loom://tools/%s.json", t.Name())
	if err := compiler.AddResource(url, input); err != nil {
		return fmt.Errorf("tool %q schema: %w", t.Name(), err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("tool %q schema: %w", t.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = &entry{tool: t, schema: compiled, input: input}
	return nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Execute runs a tool by name. Arguments are validated against the
// tool's parameter schema first; violations surface as errors without
// reaching the tool.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	sandbox := r.sandbox
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := e.schema.Validate(canonicalArgs(args)); err != nil {
		return "", &ExecError{Tool: name, Err: fmt.Errorf("invalid arguments: %w", err)}
	}

	if sandbox != "" {
		args = confinePaths(args, sandbox)
	}

	result, err := e.tool.Execute(ctx, args)
	if err != nil {
		return "", &ExecError{Tool: name, Err: err}
	}
	return result, nil
}

// Schemas returns the backend-facing definitions for the named tools,
// in the given order. Unknown names are skipped; the runner reports
// them when the model actually calls one.
func (r *Registry) Schemas(names []string) []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(names))
	for _, name := range names {
		e, ok := r.tools[name]
		if !ok {
			continue
		}
		schemas = append(schemas, llm.ToolSchema{
			Name:        e.tool.Name(),
			Description: e.tool.Description(),
			InputSchema: e.input,
		})
	}
	return schemas
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// BuildInputSchema builds the JSON-schema fragment for an ordered
// parameter list.
func BuildInputSchema(params []Param) map[string]any {
	props := make(map[string]any, len(params))
	required := []any{}
	for _, p := range params {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		prop := map[string]any{"type": typ}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				enum[i] = v
			}
			prop["enum"] = enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// canonicalArgs rebuilds the argument map so the schema validator sees
// canonical JSON number types.
func canonicalArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		switch n := v.(type) {
		case int:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		default:
			out[k] = v
		}
	}
	return out
}

// confinePaths rewrites path-like arguments to stay inside the sandbox
// directory. Paths that escape are left untouched and fail at execution.
func confinePaths(args map[string]any, sandbox string) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		s, isString := v.(string)
		if !isString || (k != "path" && !strings.HasSuffix(k, "_path")) {
			out[k] = v
			continue
		}
		clean := filepath.Clean(s)
		if !filepath.IsAbs(clean) {
			clean = filepath.Join(sandbox, clean)
		}
		rel, err := filepath.Rel(sandbox, clean)
		if err != nil || strings.HasPrefix(rel, "..") {
			out[k] = v
			continue
		}
		out[k] = clean
	}
	return out
}

// Func is a tool backed by a plain function.
type Func struct {
	ToolName string
	Desc     string
	ParamDef []Param
	Fn       func(ctx context.Context, args map[string]any) (string, error)
}

func (f *Func) Name() string        { return f.ToolName }
func (f *Func) Description() string { return f.Desc }
func (f *Func) Params() []Param     { return f.ParamDef }

func (f *Func) Execute(ctx context.Context, args map[string]any) (string, error) {
	return f.Fn(ctx, args)
}
