package domain

import (
	"fmt"
	"time"
)

// GetDefaultModel retrieves the default model definition from configuration.
// Returns an error if the default model is not found.
func (c *Config) GetDefaultModel() (ModelDefinition, error) {
	if c.Preferences.DefaultModel == "" {
		if len(c.Models) > 0 {
			return c.Models[0], nil
		}
		return ModelDefinition{}, fmt.Errorf("no default model configured")
	}

	if model, ok := c.FindModelByName(c.Preferences.DefaultModel); ok {
		return model, nil
	}
	return ModelDefinition{}, fmt.Errorf("default model %s not found in configuration", c.Preferences.DefaultModel)
}

// FindModelByName searches for a model by its name.
func (c *Config) FindModelByName(name string) (ModelDefinition, bool) {
	for _, model := range c.Models {
		if model.Name == name {
			return model, true
		}
	}
	return ModelDefinition{}, false
}

// HasModel checks if a model with the given name exists in the configuration.
func (c *Config) HasModel(name string) bool {
	_, exists := c.FindModelByName(name)
	return exists
}

// ModelNames lists configured model names in declaration order.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for _, model := range c.Models {
		names = append(names, model.Name)
	}
	return names
}

// AddModel appends a model definition, rejecting duplicate names.
func (c *Config) AddModel(model ModelDefinition) error {
	if c.HasModel(model.Name) {
		return fmt.Errorf("model with name %s already exists", model.Name)
	}
	c.Models = append(c.Models, model)
	return nil
}

// RemoveModel removes a model by name. When it was the default, the first
// remaining model becomes the default.
func (c *Config) RemoveModel(name string) error {
	idx := -1
	for i, model := range c.Models {
		if model.Name == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("model %s not found", name)
	}
	c.Models = append(c.Models[:idx], c.Models[idx+1:]...)
	if c.Preferences.DefaultModel == name {
		c.Preferences.DefaultModel = ""
		if len(c.Models) > 0 {
			c.Preferences.DefaultModel = c.Models[0].Name
		}
	}
	return nil
}

// SetDefaultModel makes name the default model.
func (c *Config) SetDefaultModel(name string) error {
	if !c.HasModel(name) {
		return fmt.Errorf("cannot set default model: model %s does not exist", name)
	}
	c.Preferences.DefaultModel = name
	return nil
}

// InitialPolicy returns the execution policy a new session starts with.
func (c *Config) InitialPolicy() ExecutionPolicy {
	return ExecutionPolicy{
		AutoExecute: c.Preferences.AutoExecute,
		PlanOnly:    c.Preferences.PlanOnly,
		Verbose:     c.Preferences.VerboseTools,
	}
}

// GetExecutionShell returns the configured shell for command execution.
func (c *Config) GetExecutionShell() string {
	const defaultShell = "/bin/sh"

	if c.Execution.Shell == "" || c.Execution.Shell == "auto" {
		return defaultShell
	}
	return c.Execution.Shell
}

// ExecutionLimits returns the timeout and output cap applied to every command.
func (c *Config) ExecutionLimits() ExecutionLimits {
	limits := ExecutionLimits{
		Timeout:        DefaultCommandTimeout,
		MaxOutputBytes: DefaultMaxOutputBytes,
	}
	if c.Execution.TimeoutSeconds > 0 {
		limits.Timeout = time.Duration(c.Execution.TimeoutSeconds) * time.Second
	}
	if c.Execution.MaxOutputBytes > 0 {
		limits.MaxOutputBytes = c.Execution.MaxOutputBytes
	}
	return limits
}

// GetClusterCLI returns the management CLI binary name.
func (c *Config) GetClusterCLI() string {
	if c.Cluster.CLI == "" {
		return DefaultClusterCLI
	}
	return c.Cluster.CLI
}

// GetRequestTimeout returns the provider request timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	if c.Preferences.TimeoutSeconds <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(c.Preferences.TimeoutSeconds) * time.Second
}

// GetMaxToolRounds bounds structured continuations within one turn.
func (c *Config) GetMaxToolRounds() int {
	if c.Preferences.MaxToolRounds <= 0 {
		return DefaultMaxToolRounds
	}
	return c.Preferences.MaxToolRounds
}

// IsSecurityEnabled checks if security guardrails are enabled.
func (c *Config) IsSecurityEnabled() bool {
	return c.Security.Enabled
}

// ValidateConsistency checks the internal consistency of the configuration.
func (c *Config) ValidateConsistency() error {
	if c.Preferences.DefaultModel != "" && len(c.Models) == 0 {
		return fmt.Errorf("default model is set but no models are configured")
	}
	if c.Preferences.DefaultModel != "" && !c.HasModel(c.Preferences.DefaultModel) {
		return fmt.Errorf("default model %s does not exist in models list", c.Preferences.DefaultModel)
	}

	seen := make(map[string]bool, len(c.Models))
	for _, model := range c.Models {
		if model.Name == "" {
			return fmt.Errorf("model without name")
		}
		if seen[model.Name] {
			return fmt.Errorf("duplicate model name %s", model.Name)
		}
		seen[model.Name] = true
		if _, err := ParseProviderKind(string(model.Provider)); model.Provider != "" && err != nil {
			return fmt.Errorf("model %s: %w", model.Name, err)
		}
	}

	if c.Preferences.AutoExecute && c.Preferences.PlanOnly {
		return fmt.Errorf("auto_execute and plan_only are mutually exclusive")
	}
	if c.Execution.MaxOutputBytes < 0 {
		return fmt.Errorf("execution.max_output_bytes must be >= 0")
	}

	return nil
}
