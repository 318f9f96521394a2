package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// DynamicDef is a YAML tool definition.
type DynamicDef struct {
	Name           string      `yaml:"name"`
	Description    string      `yaml:"description"`
	Params         []Param     `yaml:"params"`
	Implementation DynamicImpl `yaml:"implementation"`
}

// DynamicImpl describes how a YAML-defined tool executes.
type DynamicImpl struct {
	Type    string            `yaml:"type"` // http, exec, file_read, file_write
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Query   map[string]string `yaml:"query"`
	Body    any               `yaml:"body"`
	Command string            `yaml:"command"`
	Timeout string            `yaml:"timeout"`
}

// RegisterDynamic registers a tool from a YAML definition.
func (r *Registry) RegisterDynamic(def DynamicDef) error {
	var fn func(ctx context.Context, args map[string]any) (string, error)
	switch def.Implementation.Type {
	case "http":
		fn = httpExecutor(def.Implementation)
	case "exec":
		fn = execExecutor(def.Implementation)
	case "file_read":
		fn = fileReadExecutor()
	case "file_write":
		fn = fileWriteExecutor()
	default:
		return fmt.Errorf("tool %q: unknown implementation type %q", def.Name, def.Implementation.Type)
	}

	return r.Register(&Func{
		ToolName: def.Name,
		Desc:     def.Description,
		ParamDef: def.Params,
		Fn:       fn,
	})
}

// LoadFile loads a single tool definition from YAML.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var def DynamicDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	return r.RegisterDynamic(def)
}

// LoadDirectory loads every .yaml/.yml tool definition in a directory.
func (r *Registry) LoadDirectory(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read tools directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".yaml") && !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}
		if err := r.LoadFile(filepath.Join(path, entry.Name())); err != nil {
			return fmt.Errorf("load tool %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func implTimeout(impl DynamicImpl) time.Duration {
	timeout := 30 * time.Second
	if impl.Timeout != "" {
		if d, err := time.ParseDuration(impl.Timeout); err == nil {
			timeout = d
		}
	}
	return timeout
}

// httpExecutor performs an HTTP request with {{.param}} interpolation in
// URL, headers, query, and body.
func httpExecutor(impl DynamicImpl) func(ctx context.Context, args map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, implTimeout(impl))
		defer cancel()

		url, err := interpolate(impl.URL, args)
		if err != nil {
			return "", fmt.Errorf("interpolate URL: %w", err)
		}

		method := strings.ToUpper(impl.Method)
		if method == "" {
			method = "GET"
		}

		var bodyReader io.Reader
		if impl.Body != nil {
			switch body := impl.Body.(type) {
			case string:
				interpolated, err := interpolate(body, args)
				if err != nil {
					return "", fmt.Errorf("interpolate body: %w", err)
				}
				bodyReader = strings.NewReader(interpolated)
			default:
				jsonBody, err := json.Marshal(body)
				if err != nil {
					return "", fmt.Errorf("marshal body: %w", err)
				}
				bodyReader = bytes.NewReader(jsonBody)
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}

		for k, v := range impl.Headers {
			interpolated, err := interpolate(v, args)
			if err != nil {
				return "", fmt.Errorf("interpolate header %s: %w", k, err)
			}
			req.Header.Set(k, interpolated)
		}
		if bodyReader != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		if len(impl.Query) > 0 {
			q := req.URL.Query()
			for k, v := range impl.Query {
				interpolated, err := interpolate(v, args)
				if err != nil {
					return "", fmt.Errorf("interpolate query %s: %w", k, err)
				}
				q.Set(k, interpolated)
			}
			req.URL.RawQuery = q.Encode()
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return "", fmt.Errorf("http error %d: %s", resp.StatusCode, string(respBody))
		}
		return string(respBody), nil
	}
}

// execExecutor runs a command with {{.param}} interpolation.
func execExecutor(impl DynamicImpl) func(ctx context.Context, args map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, implTimeout(impl))
		defer cancel()

		command, err := interpolate(impl.Command, args)
		if err != nil {
			return "", fmt.Errorf("interpolate command: %w", err)
		}

		parts := splitCommand(command)
		if len(parts) == 0 {
			return "", fmt.Errorf("empty command")
		}

		cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err = cmd.Run()
		output := stdout.String()
		if stderr.Len() > 0 {
			if output != "" {
				output += "\n"
			}
			output += stderr.String()
		}
		if err != nil {
			return output, fmt.Errorf("command failed: %w", err)
		}
		return output, nil
	}
}

func fileReadExecutor() func(ctx context.Context, args map[string]any) (string, error) {
	return func(_ context.Context, args map[string]any) (string, error) {
		path, ok := args["path"].(string)
		if !ok {
			return "", fmt.Errorf("path parameter required")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func fileWriteExecutor() func(ctx context.Context, args map[string]any) (string, error) {
	return func(_ context.Context, args map[string]any) (string, error) {
		path, ok := args["path"].(string)
		if !ok {
			return "", fmt.Errorf("path parameter required")
		}
		content, ok := args["content"].(string)
		if !ok {
			return "", fmt.Errorf("content parameter required")
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return "", err
		}
		return "File written successfully", nil
	}
}

// interpolate replaces {{.field}} placeholders with argument values.
func interpolate(tmplStr string, args map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, args); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// splitCommand splits a command string into parts, respecting quotes.
func splitCommand(cmd string) []string {
	var parts []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	for _, r := range cmd {
		switch {
		case r == '"' || r == '\'':
			if !inQuote {
				inQuote = true
				quoteChar = r
			} else if r == quoteChar {
				inQuote = false
				quoteChar = 0
			} else {
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
