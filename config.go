package loom

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings is the engine configuration, loaded from a loom.yaml file.
// Every field has a usable default; a missing file yields DefaultSettings.
type Settings struct {
	// Provider selects the LLM backend: "anthropic" or "openai".
	Provider string `yaml:"provider"`

	// Model is the default model for agents that do not declare one.
	Model string `yaml:"model"`

	// APIKey overrides the provider's environment variable.
	APIKey string `yaml:"api_key"`

	// DBPath is the SQLite run-store path. Empty disables recording.
	DBPath string `yaml:"db_path"`

	// ToolDirs are directories scanned for YAML tool definitions.
	ToolDirs []string `yaml:"tool_dirs"`

	// Sandbox confines file tools to a directory.
	Sandbox string `yaml:"sandbox"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DefaultSettings returns the built-in configuration.
func DefaultSettings() Settings {
	return Settings{
		Provider: "anthropic",
		DBPath:   DefaultDBPath(),
		Sandbox:  WorkspacePath(),
		LogLevel: "info",
	}
}

// LoadSettings reads a loom.yaml file, applying defaults for anything
// it leaves out. A missing file is not an error. When path is empty,
// ~/.loom/loom.yaml is tried.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		path = filepath.Join(Home(), "loom.yaml")
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// ResolveAPIKey returns the configured key, falling back to the
// provider's conventional environment variable.
func (s Settings) ResolveAPIKey() string {
	if s.APIKey != "" {
		return s.APIKey
	}
	switch s.Provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	default:
		return os.Getenv("ANTHROPIC_API_KEY")
	}
}

// Logger builds a text slog.Logger at the configured level.
func (s Settings) Logger() *slog.Logger {
	var level slog.Level
	switch s.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
