package loom

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everydev1618/goloom/schema"
	"github.com/everydev1618/goloom/script"
	"github.com/everydev1618/goloom/tools"
)

func TestLoadProgram(t *testing.T) {
	prog := loadProgram(t, `
schema Summary {
	text: String
	sources: [String]
}

enum Verdict { Pass, Fail(reason) }

tool lookup(term: string) "Look up a term" {
	return "definition of " + term
}

agent librarian {
	prompt: "Answer from the library"
	tools: [lookup, read_file]
	output: Summary
}
`)
	assert.Equal(t, []string{"librarian"}, prog.Agents())

	agent, ok := prog.Agent("librarian")
	require.True(t, ok)
	assert.Equal(t, DefaultMaxSteps, agent.MaxSteps)
	assert.Equal(t, 0, agent.OutputRetries)
	require.NotNil(t, agent.Output)
	assert.Equal(t, "Summary", agent.Output.Name)

	s, ok := prog.Schema("Summary")
	require.True(t, ok)
	assert.Equal(t, schema.Array, s.Fields[1].Type.Kind)

	// Script tools land in the registry next to the builtins.
	assert.True(t, prog.Registry().Has("lookup"))
	assert.True(t, prog.Registry().Has("read_file"))
}

func TestLoadScriptToolExecutable(t *testing.T) {
	prog := loadProgram(t, `tool greet(name: string) { return "hi " + name }`)

	out, err := prog.Registry().Execute(context.Background(), "greet", map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "hi ada", out)
}

func TestLoadNamedSchemaResolution(t *testing.T) {
	prog := loadProgram(t, `
schema Author { name: String }

schema Post {
	title: String
	author: Author
}
`)
	post, ok := prog.Schema("Post")
	require.True(t, ok)
	author := post.Fields[1].Type
	assert.Equal(t, schema.Named, author.Kind)
	require.NotNil(t, author.Ref, "forward reference should resolve")
	assert.Equal(t, "Author", author.Ref.Name)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantMsg string
	}{
		{"syntax error", `agent {`, "expected agent name"},
		{"unknown tool grant", `agent a { prompt: "x" tools: [nope] }`, "unknown tool"},
		{"missing output schema", `agent a { prompt: "x" output: Ghost }`, "not declared"},
		{"duplicate agent", `agent a { prompt: "x" } agent a { prompt: "y" }`, "duplicate agent"},
		{"duplicate schema", `schema S { a: String } schema S { b: String }`, "duplicate schema"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.source, "bad.loom")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadFileFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crew.loom")
	require.NoError(t, os.WriteFile(path, []byte(`agent solo { prompt: "alone" }`), 0o644))

	prog, err := LoadFile(path)
	require.NoError(t, err)
	_, ok := prog.Agent("solo")
	assert.True(t, ok)
}

func TestLoadWithCustomRegistry(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(&tools.Func{
		ToolName: "custom",
		Desc:     "a host tool",
		Fn: func(_ context.Context, _ map[string]any) (string, error) {
			return "custom result", nil
		},
	}))

	prog, err := Load(`agent a { prompt: "x" tools: [custom] }`, "t.loom", WithRegistry(reg))
	require.NoError(t, err)
	// A supplied registry is used as-is: no builtins are added.
	assert.False(t, prog.Registry().Has("read_file"))
	assert.True(t, prog.Registry().Has("custom"))
}

func TestLoadInlineOutputSchema(t *testing.T) {
	prog := loadProgram(t, `
agent tagger {
	prompt: "tag"
	output: { tags: [String] }
	output_retries: 1
}
`)
	agent, _ := prog.Agent("tagger")
	require.NotNil(t, agent.Output)
	assert.Empty(t, agent.Output.Name)
	assert.Equal(t, 1, agent.OutputRetries)
}

func TestLoadDefinesEnumAndToolRefs(t *testing.T) {
	prog := loadProgram(t, `
enum Mood { Happy, Sad }

tool cheer() { return "yay" }

agent a { prompt: "x" }
`)
	env := prog.Executor().Env()
	ref, ok := env.Get("cheer")
	require.True(t, ok)
	assert.Equal(t, script.ToolRef{Name: "cheer"}, ref)

	enum, ok := env.Enum("Mood")
	require.True(t, ok)
	assert.Len(t, enum.Variants, 2)

	agentVal, ok := env.Get("a")
	require.True(t, ok)
	assert.IsType(t, &script.Agent{}, agentVal)
}
