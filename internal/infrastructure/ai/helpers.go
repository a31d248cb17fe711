package ai

import (
	"cmp"
	"os"
)

// firstEnv returns the first non-empty value among the named environment variables.
func firstEnv(names ...string) string {
	for _, name := range names {
		if name == "" {
			continue
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}

// orDefault returns value unless it is the zero value.
func orDefault[T comparable](value, def T) T {
	return cmp.Or(value, def)
}
