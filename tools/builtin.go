package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// RegisterBuiltins adds the built-in file tools to the registry.
func RegisterBuiltins(r *Registry) error {
	builtins := []Tool{
		&Func{
			ToolName: "read_file",
			Desc:     "Read the contents of a file",
			ParamDef: []Param{
				{Name: "path", Type: "string", Description: "File path", Required: true},
			},
			Fn: func(_ context.Context, args map[string]any) (string, error) {
				path, ok := args["path"].(string)
				if !ok {
					return "", fmt.Errorf("path parameter required")
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return "", err
				}
				return string(data), nil
			},
		},
		&Func{
			ToolName: "write_file",
			Desc:     "Write content to a file",
			ParamDef: []Param{
				{Name: "path", Type: "string", Description: "File path", Required: true},
				{Name: "content", Type: "string", Description: "Content to write", Required: true},
			},
			Fn: func(_ context.Context, args map[string]any) (string, error) {
				path, _ := args["path"].(string)
				content, _ := args["content"].(string)
				if err := os.WriteFile(path, []byte(content), 0644); err != nil {
					return "", err
				}
				return "File written successfully", nil
			},
		},
		&Func{
			ToolName: "list_files",
			Desc:     "List the entries of a directory",
			ParamDef: []Param{
				{Name: "path", Type: "string", Description: "Directory path", Required: true},
			},
			Fn: func(_ context.Context, args map[string]any) (string, error) {
				path, ok := args["path"].(string)
				if !ok {
					return "", fmt.Errorf("path parameter required")
				}
				entries, err := os.ReadDir(path)
				if err != nil {
					return "", err
				}
				var names []string
				for _, e := range entries {
					name := e.Name()
					if e.IsDir() {
						name += "/"
					}
					names = append(names, name)
				}
				result, _ := json.Marshal(names)
				return string(result), nil
			},
		},
		&Func{
			ToolName: "append_file",
			Desc:     "Append content to a file",
			ParamDef: []Param{
				{Name: "path", Type: "string", Description: "File path", Required: true},
				{Name: "content", Type: "string", Description: "Content to append", Required: true},
			},
			Fn: func(_ context.Context, args map[string]any) (string, error) {
				path, _ := args["path"].(string)
				content, _ := args["content"].(string)
				f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
				if err != nil {
					return "", err
				}
				defer f.Close()
				if _, err := f.WriteString(content); err != nil {
					return "", err
				}
				return "Content appended successfully", nil
			},
		},
	}

	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
