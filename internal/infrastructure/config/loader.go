package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/kshai/assets"
	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/pkg/filesystem"
	"github.com/doeshing/kshai/internal/ports"
)

const (
	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "KSHAI_CONFIG"
)

// FileLoader loads YAML configuration from ~/.kshai/config.yaml (overridable via KSHAI_CONFIG).
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Load implements ports.ConfigProvider. A missing file is replaced by the
// embedded defaults, which are also written to disk for the operator to edit.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.Path()
	if err := ensureConfigDir(path); err != nil {
		return domain.Config{}, fmt.Errorf("create config dir: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return domain.Config{}, fmt.Errorf("read config: %w", err)
		}
		data = assets.DefaultConfigYAML
		if err := os.WriteFile(path, data, domain.SecureFilePermissions); err != nil {
			return domain.Config{}, fmt.Errorf("write default config: %w", err)
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return domain.Config{}, err
	}
	if err := ensureGuardrailFile(cfg.Security.RulesFile); err != nil {
		return domain.Config{}, err
	}
	return cfg, nil
}

// Path returns the resolved config file path.
func (l *FileLoader) Path() string {
	if l.overridePath != "" {
		return filesystem.ExpandHome(l.overridePath)
	}
	if custom := os.Getenv(EnvConfigPath); custom != "" {
		return filesystem.ExpandHome(custom)
	}
	return filepath.Join(filesystem.StateDir(), "config.yaml")
}

// Save writes cfg back to disk.
func (l *FileLoader) Save(cfg domain.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := l.Path()
	if err := ensureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, raw, domain.SecureFilePermissions)
}

// Reset overwrites the config with the embedded defaults.
func (l *FileLoader) Reset() (domain.Config, error) {
	cfg := Default()
	if err := os.WriteFile(l.Path(), assets.DefaultConfigYAML, domain.SecureFilePermissions); err != nil {
		return domain.Config{}, fmt.Errorf("write default config: %w", err)
	}
	return cfg, nil
}

// Backup copies the current config file to a timestamped sibling and returns its path.
func (l *FileLoader) Backup() (string, error) {
	path := l.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	backup := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102T150405"))
	if err := os.WriteFile(backup, data, domain.SecureFilePermissions); err != nil {
		return "", err
	}
	return backup, nil
}

// Parse decodes YAML and fills defaults.
func Parse(data []byte) (domain.Config, error) {
	var cfg domain.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Config{}, fmt.Errorf("parse config: %w", err)
	}
	return hydrateDefaults(cfg), nil
}

// Default returns the embedded default configuration.
func Default() domain.Config {
	cfg, err := Parse(assets.DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded config invalid: %v", err))
	}
	return cfg
}

func ensureConfigDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions)
}

func ensureGuardrailFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil || !errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := ensureConfigDir(path); err != nil {
		return fmt.Errorf("create guardrail dir: %w", err)
	}
	if err := os.WriteFile(path, assets.DefaultGuardrailYAML, domain.SecureFilePermissions); err != nil {
		return fmt.Errorf("write default guardrail: %w", err)
	}
	return nil
}

func hydrateDefaults(cfg domain.Config) domain.Config {
	if cfg.ConfigFormatVersion == "" {
		cfg.ConfigFormatVersion = "1"
	}
	if cfg.Preferences.DefaultModel == "" && len(cfg.Models) > 0 {
		cfg.Preferences.DefaultModel = cfg.Models[0].Name
	}
	if cfg.Preferences.TimeoutSeconds == 0 {
		cfg.Preferences.TimeoutSeconds = int(domain.DefaultRequestTimeout.Seconds())
	}
	if cfg.Preferences.MaxToolRounds == 0 {
		cfg.Preferences.MaxToolRounds = domain.DefaultMaxToolRounds
	}
	if cfg.Cluster.CLI == "" {
		cfg.Cluster.CLI = domain.DefaultClusterCLI
	}
	if cfg.Execution.TimeoutSeconds == 0 {
		cfg.Execution.TimeoutSeconds = int(domain.DefaultCommandTimeout.Seconds())
	}
	if cfg.Execution.MaxOutputBytes == 0 {
		cfg.Execution.MaxOutputBytes = domain.DefaultMaxOutputBytes
	}
	if cfg.Security.RulesFile == "" {
		cfg.Security.RulesFile = filepath.Join(filesystem.StateDirName, "guardrail.yaml")
	}
	cfg.Security.RulesFile = filesystem.ExpandHome(cfg.Security.RulesFile)
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(filesystem.StateDirName, "audit.db")
	}
	cfg.Audit.Path = filesystem.ExpandHome(cfg.Audit.Path)
	if cfg.Cluster.Kubeconfig != "" {
		cfg.Cluster.Kubeconfig = filesystem.ExpandHome(cfg.Cluster.Kubeconfig)
	}
	for i := range cfg.Models {
		if cfg.Models[i].MaxTokens == 0 {
			cfg.Models[i].MaxTokens = domain.DefaultMaxTokens
		}
	}
	return cfg
}

var _ ports.ConfigProvider = (*FileLoader)(nil)
