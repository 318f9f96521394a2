package loom

import (
	"os"
	"path/filepath"
)

// Home returns the Loom home directory.
// It defaults to ~/.loom but can be overridden with the LOOM_HOME environment variable.
func Home() string {
	if v := os.Getenv("LOOM_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".loom")
}

// DefaultDBPath returns the default SQLite database path (~/.loom/loom.db).
func DefaultDBPath() string {
	return filepath.Join(Home(), "loom.db")
}

// WorkspacePath returns the default sandbox directory for file tools.
func WorkspacePath() string {
	return filepath.Join(Home(), "workspace")
}

// EnsureHome creates the Loom home and workspace directories if they don't exist.
func EnsureHome() error {
	return os.MkdirAll(WorkspacePath(), 0o755)
}
