package obslog

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.vecgraph/logs, falling back to a temp
// directory when the home directory can't be resolved.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".vecgraph", "logs")
	}
	return filepath.Join(home, ".vecgraph", "logs")
}

// DefaultLogPath returns the default engine log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "engine.log")
}

// EnsureLogDir creates the log directory if it doesn't already exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
