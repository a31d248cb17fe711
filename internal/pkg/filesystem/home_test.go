package filesystem

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in   string
		want string
	}{
		{"/abs/file", "/abs/file"},
		{"~/x.yaml", filepath.Join(home, "x.yaml")},
		{".kshai/audit.db", filepath.Join(home, ".kshai", "audit.db")},
		{".kshaix/file", ".kshaix/file"},
		{"./rel/../file", "file"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandHome(tt.in), tt.in)
	}
	assert.Equal(t, filepath.Join(home, ".kshai"), StateDir())
}
