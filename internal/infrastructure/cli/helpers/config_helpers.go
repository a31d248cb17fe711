package helpers

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/kshai/internal/app"
	configapp "github.com/doeshing/kshai/internal/application/config"
	"github.com/doeshing/kshai/internal/domain"
	configinfra "github.com/doeshing/kshai/internal/infrastructure/config"
)

// KeyPath addresses a nested config value, e.g. "preferences.plan_only".
type KeyPath []string

// ParseKeyPath splits a dotted key and rejects empty segments.
func ParseKeyPath(key string) (KeyPath, error) {
	parts := strings.Split(key, ".")
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("invalid key %q", key)
		}
	}
	return KeyPath(parts), nil
}

func (p KeyPath) String() string { return strings.Join(p, ".") }

// Lookup walks data along the path.
func (p KeyPath) Lookup(data any) (any, bool) {
	for _, key := range p {
		node, ok := data.(map[string]any)
		if !ok {
			return nil, false
		}
		if data, ok = node[key]; !ok {
			return nil, false
		}
	}
	return data, true
}

// Set stores value at the path, replacing scalars on the way with maps.
func (p KeyPath) Set(root map[string]any, value any) {
	current := root
	for _, key := range p[:len(p)-1] {
		child, ok := current[key].(map[string]any)
		if !ok {
			child = map[string]any{}
			current[key] = child
		}
		current = child
	}
	current[p[len(p)-1]] = value
}

// ParseScalar reads a command-line value as YAML, keeping the literal text when it does not parse.
func ParseScalar(input string) any {
	var parsed any
	if err := yaml.Unmarshal([]byte(input), &parsed); err != nil {
		return input
	}
	return parsed
}

// ConfigToMap renders cfg as the generic tree the YAML file would decode to.
func ConfigToMap(cfg domain.Config) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decode config tree: %w", err)
	}
	return tree, nil
}

// ConfigFromMap parses a generic tree back into a config with defaults applied.
func ConfigFromMap(tree map[string]any) (domain.Config, error) {
	raw, err := yaml.Marshal(tree)
	if err != nil {
		return domain.Config{}, fmt.Errorf("marshal config tree: %w", err)
	}
	return configinfra.Parse(raw)
}

func GetConfigLoader(container *app.Container) (*configinfra.FileLoader, error) {
	if container == nil || container.ConfigLoader == nil {
		return nil, errors.New("config loader unavailable")
	}
	return container.ConfigLoader, nil
}

// SaveConfigWithValidation refuses an invalid config, then backs up the current file and writes cfg.
func SaveConfigWithValidation(container *app.Container, cfg domain.Config) error {
	loader, err := GetConfigLoader(container)
	if err != nil {
		return err
	}
	if err := configapp.Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if _, err := os.Stat(loader.Path()); err == nil {
		if _, err := loader.Backup(); err != nil {
			return fmt.Errorf("back up configuration: %w", err)
		}
	}
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	return nil
}

// LoadPromptMessagesFromFile reads a YAML list of {role, content} messages.
func LoadPromptMessagesFromFile(path string) ([]domain.PromptMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", path, err)
	}
	var prompts []domain.PromptMessage
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("parse prompt file %s: %w", path, err)
	}
	return prompts, nil
}
