// Package config validates a loaded configuration beyond what the domain checks.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/doeshing/kshai/internal/domain"
)

// Validate ensures config structure is consistent. It returns every problem
// found, joined, so `kshai config validate` can report them at once.
func Validate(cfg domain.Config) error {
	var errs []error
	if len(cfg.Models) == 0 {
		errs = append(errs, errors.New("at least one model must be configured"))
	}
	if err := cfg.ValidateConsistency(); err != nil {
		errs = append(errs, err)
	}
	for _, model := range cfg.Models {
		if err := validateModel(model); err != nil {
			errs = append(errs, err)
		}
	}
	if err := validateSecurity(cfg.Security); err != nil {
		errs = append(errs, err)
	}
	if err := validateExecution(cfg.Execution); err != nil {
		errs = append(errs, err)
	}
	if err := validateCluster(cfg.Cluster); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateModel(model domain.ModelDefinition) error {
	kind := model.Provider
	if kind == "" {
		kind = domain.ProviderHTTP
	}
	if kind == domain.ProviderHeuristic {
		return nil
	}
	if model.Endpoint == "" {
		if kind == domain.ProviderHTTP {
			return fmt.Errorf("model %s: endpoint must be set", model.Name)
		}
		return nil
	}
	u, err := url.Parse(model.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("model %s: endpoint %q is not an absolute URL", model.Name, model.Endpoint)
	}
	if model.MaxTokens < 0 {
		return fmt.Errorf("model %s: max_tokens must be >= 0", model.Name)
	}
	if model.RateLimit < 0 {
		return fmt.Errorf("model %s: rate_limit must be >= 0", model.Name)
	}
	switch model.APIFormat.GetSystemMessageMode() {
	case domain.SystemMessageModeInline, domain.SystemMessageModeSeparate:
	default:
		return fmt.Errorf("model %s: api_format.system_message_mode must be inline|separate", model.Name)
	}
	return nil
}

func validateSecurity(sec domain.SecuritySettings) error {
	if sec.Enabled && sec.RulesFile == "" {
		return fmt.Errorf("security.rules_file must be set")
	}
	return nil
}

func validateExecution(exec domain.ExecutionSettings) error {
	if exec.TimeoutSeconds < 0 {
		return fmt.Errorf("execution.timeout must be >= 0")
	}
	return nil
}

func validateCluster(cluster domain.ClusterSettings) error {
	if strings.ContainsAny(cluster.CLI, " \t|;&") {
		return fmt.Errorf("cluster.cli must be a single binary name, got %q", cluster.CLI)
	}
	return nil
}
