// Package filesystem resolves paths under the operator's home directory.
package filesystem

import (
	"os"
	"path/filepath"
	"strings"
)

// StateDirName is the directory under $HOME holding config, rules, audit log and traces.
const StateDirName = ".kshai"

// UserHomeDir returns the home directory, or "." when it cannot be determined.
func UserHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

// StateDir returns $HOME/.kshai.
func StateDir() string {
	return filepath.Join(UserHomeDir(), StateDirName)
}

// ExpandHome resolves "~/x" and ".kshai/x" against the home directory.
// Other relative paths are only cleaned.
func ExpandHome(path string) string {
	switch {
	case filepath.IsAbs(path):
		return path
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(UserHomeDir(), path[2:])
	case path == StateDirName || strings.HasPrefix(path, StateDirName+"/"):
		return filepath.Join(UserHomeDir(), path)
	default:
		return filepath.Clean(path)
	}
}
