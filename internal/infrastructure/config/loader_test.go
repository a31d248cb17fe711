package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/kshai/internal/domain"
)

func TestFileLoader_WritesDefaultsOnFirstRun(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "custom", "config.yaml")

	loader := NewFileLoader(path)
	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, "claude-sonnet", cfg.Preferences.DefaultModel)
	assert.Equal(t, "kubectl", cfg.Cluster.CLI)
	assert.Equal(t, filepath.Join(home, ".kshai", "guardrail.yaml"), cfg.Security.RulesFile)
	assert.FileExists(t, cfg.Security.RulesFile)
	assert.Equal(t, filepath.Join(home, ".kshai", "audit.db"), cfg.Audit.Path)
	require.NoError(t, cfg.ValidateConsistency())
}

func TestFileLoader_ReadsExistingFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "config.yaml")
	content := `preferences:
  plan_only: true
models:
  - name: local
    provider: http
    endpoint: http://localhost:11434/api/chat
execution:
  max_output_bytes: 512
security:
  rules_file: ~/rules/guardrail.yaml
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "rules", "guardrail.yaml"), cfg.Security.RulesFile)
	assert.FileExists(t, cfg.Security.RulesFile)
	assert.True(t, cfg.Preferences.PlanOnly)
	assert.Equal(t, "local", cfg.Preferences.DefaultModel)
	assert.Equal(t, 512, cfg.Execution.MaxOutputBytes)
	assert.Equal(t, domain.DefaultMaxTokens, cfg.Models[0].MaxTokens)
	assert.Equal(t, domain.DefaultMaxToolRounds, cfg.Preferences.MaxToolRounds)
}

func TestFileLoader_EnvOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "env.yaml")
	t.Setenv(EnvConfigPath, path)

	loader := NewFileLoader("")
	assert.Equal(t, path, loader.Path())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("models: [unterminated"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.Models, 4)
	assert.Equal(t, domain.ProviderAnthropic, cfg.Models[0].Provider)
	assert.False(t, cfg.Preferences.AutoExecute)
}

func TestFileLoader_SaveAndBackup(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "config.yaml")
	loader := NewFileLoader(path)

	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)

	backup, err := loader.Backup()
	require.NoError(t, err)
	assert.FileExists(t, backup)

	cfg.Preferences.PlanOnly = true
	cfg.Preferences.AutoExecute = false
	require.NoError(t, loader.Save(cfg))

	reloaded, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, reloaded.Preferences.PlanOnly)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(domain.SecureFilePermissions), info.Mode().Perm())
}
