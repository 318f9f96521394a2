package loom

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/everydev1618/goloom/parser"
	"github.com/everydev1618/goloom/schema"
	"github.com/everydev1618/goloom/script"
	"github.com/everydev1618/goloom/tools"
)

// DefaultMaxSteps is the step budget applied when an agent declaration
// leaves max_steps unset.
const DefaultMaxSteps = 10

// Program is a compiled Loom file: its agents, schemas, and a tool
// registry holding both the builtins and the tools the file declares.
// A Program is immutable after Load and safe to share across runs; each
// run owns its own transcript.
type Program struct {
	agents   map[string]*script.Agent
	schemas  map[string]*schema.Schema
	registry *tools.Registry
	executor *script.Executor
	logger   *slog.Logger
}

// ProgramOption configures Load.
type ProgramOption func(*programConfig)

type programConfig struct {
	registry *tools.Registry
	logger   *slog.Logger
}

// WithRegistry supplies a pre-populated tool registry. Script tools
// declared in the file are registered on top of it.
func WithRegistry(r *tools.Registry) ProgramOption {
	return func(c *programConfig) { c.registry = r }
}

// WithLogger sets the logger used by the program's executor and runner.
func WithLogger(l *slog.Logger) ProgramOption {
	return func(c *programConfig) { c.logger = l }
}

// LoadFile reads and compiles a .loom file.
func LoadFile(path string, opts ...ProgramOption) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(string(data), path, opts...)
}

// Load compiles Loom source into a Program. The filename is used in
// error positions only.
func Load(source, filename string, opts ...ProgramOption) (*Program, error) {
	cfg := programConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = tools.NewRegistry()
		if err := tools.RegisterBuiltins(cfg.registry); err != nil {
			return nil, err
		}
	}

	doc, err := parser.Parse(source, filename)
	if err != nil {
		return nil, err
	}

	p := &Program{
		agents:   make(map[string]*script.Agent),
		schemas:  make(map[string]*schema.Schema),
		registry: cfg.registry,
		logger:   cfg.logger,
	}

	env := script.NewEnv()
	p.executor = script.NewExecutor(env,
		script.WithInvoker(tools.Invoker(cfg.registry)),
		script.WithLogger(cfg.logger),
	)

	for _, decl := range doc.Enums {
		env.RegisterEnum(&script.EnumType{Name: decl.Name, Variants: decl.Variants})
	}

	// Two passes over schemas so forward references resolve.
	for _, decl := range doc.Schemas {
		if _, ok := p.schemas[decl.Name]; ok {
			return nil, fmt.Errorf("%s: duplicate schema %q", filename, decl.Name)
		}
		p.schemas[decl.Name] = decl.Schema
	}
	for _, s := range p.schemas {
		s.Resolve(p.schemas)
	}

	for _, decl := range doc.Tools {
		st := &tools.ScriptTool{
			ToolName: decl.Name,
			Desc:     decl.Description,
			Body:     decl.Body,
			Executor: p.executor,
		}
		for _, param := range decl.Params {
			st.ParamDef = append(st.ParamDef, tools.Param{
				Name:     param.Name,
				Type:     param.Type,
				Required: true,
			})
		}
		if err := cfg.registry.Register(st); err != nil {
			return nil, fmt.Errorf("%s: tool %q: %w", filename, decl.Name, err)
		}
		env.Define(decl.Name, script.ToolRef{Name: decl.Name})
	}

	for _, decl := range doc.Agents {
		agent, err := p.buildAgent(decl)
		if err != nil {
			return nil, fmt.Errorf("%s: agent %q: %w", filename, decl.Name, err)
		}
		if _, ok := p.agents[agent.Name]; ok {
			return nil, fmt.Errorf("%s: duplicate agent %q", filename, agent.Name)
		}
		p.agents[agent.Name] = agent
		env.Define(agent.Name, agent)
	}

	return p, nil
}

func (p *Program) buildAgent(decl *parser.AgentDecl) (*script.Agent, error) {
	agent := &script.Agent{
		Name:          decl.Name,
		Prompt:        decl.Prompt,
		Tools:         decl.Tools,
		MaxSteps:      decl.MaxSteps,
		Model:         decl.Model,
		OutputRetries: decl.OutputRetries,
	}
	if agent.MaxSteps < 0 {
		agent.MaxSteps = DefaultMaxSteps
	}
	if agent.OutputRetries < 0 {
		agent.OutputRetries = 0
	}

	switch {
	case decl.OutputName != "":
		s, ok := p.schemas[decl.OutputName]
		if !ok {
			return nil, fmt.Errorf("output schema %q not declared", decl.OutputName)
		}
		agent.Output = s
	case decl.Output != nil:
		decl.Output.Resolve(p.schemas)
		agent.Output = decl.Output
	}

	for _, name := range agent.Tools {
		if !p.registry.Has(name) {
			return nil, fmt.Errorf("grants unknown tool %q", name)
		}
	}
	return agent, nil
}

// Agent returns a declared agent by name.
func (p *Program) Agent(name string) (*script.Agent, bool) {
	a, ok := p.agents[name]
	return a, ok
}

// Agents returns the declared agent names, sorted.
func (p *Program) Agents() []string {
	names := make([]string, 0, len(p.agents))
	for name := range p.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns a declared output schema by name.
func (p *Program) Schema(name string) (*schema.Schema, bool) {
	s, ok := p.schemas[name]
	return s, ok
}

// Registry returns the program's tool registry.
func (p *Program) Registry() *tools.Registry {
	return p.registry
}

// Executor returns the shared script executor; the CLI REPL evaluates
// statements through it.
func (p *Program) Executor() *script.Executor {
	return p.executor
}
