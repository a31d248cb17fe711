// Package doctor runs environment diagnostics for the operator workstation.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"

	configapp "github.com/doeshing/kshai/internal/application/config"
	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/ports"
)

// Service runs environment diagnostics.
type Service struct {
	ConfigProvider   ports.ConfigProvider
	SecurityService  ports.SecurityService
	ClusterCollector ports.ClusterCollector
	// ServerVersion probes the API server of the selected context.
	ServerVersion func(context.Context, domain.ClusterSettings) (string, error)
	// RulesCheck parses the guardrail rules file.
	RulesCheck func(path string) error
	// AuditCheck opens the audit store.
	AuditCheck func(context.Context, domain.AuditSettings) error
	LookPath   func(string) (string, error)
}

// Run executes checks and returns a report. Checks after the config load run concurrently.
func (s *Service) Run(ctx context.Context) (domain.HealthReport, error) {
	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		return domain.HealthReport{Checks: []domain.HealthCheck{
			fail("Config file", fmt.Sprintf("load failed: %v", err)),
		}}, err
	}

	lookPath := s.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	probes := []func(context.Context) domain.HealthCheck{
		func(context.Context) domain.HealthCheck {
			if err := configapp.Validate(cfg); err != nil {
				return fail("Config file", err.Error())
			}
			return ok("Config file", fmt.Sprintf("%s (version %s)", s.ConfigProvider.Path(), cfg.ConfigFormatVersion))
		},
		func(context.Context) domain.HealthCheck { return s.guardrailCheck(cfg) },
		func(context.Context) domain.HealthCheck { return binaryCheck(lookPath, cfg.GetClusterCLI(), true) },
		func(context.Context) domain.HealthCheck { return binaryCheck(lookPath, "helm", false) },
		func(ctx context.Context) domain.HealthCheck { return s.contextCheck(ctx, cfg) },
		func(ctx context.Context) domain.HealthCheck { return s.apiServerCheck(ctx, cfg) },
		func(context.Context) domain.HealthCheck { return apiCheck(cfg.Models) },
		func(ctx context.Context) domain.HealthCheck { return s.auditCheck(ctx, cfg) },
	}

	checks := make([]domain.HealthCheck, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, probe := range probes {
		g.Go(func() error {
			checks[i] = probe(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.HealthReport{Checks: checks}, err
	}
	return domain.HealthReport{Checks: checks}, nil
}

func (s *Service) guardrailCheck(cfg domain.Config) domain.HealthCheck {
	if !cfg.IsSecurityEnabled() {
		return warn("Guardrail", "disabled in config")
	}
	if s.RulesCheck != nil {
		if err := s.RulesCheck(cfg.Security.RulesFile); err != nil {
			return fail("Guardrail", err.Error())
		}
	}
	if s.SecurityService == nil {
		return warn("Guardrail", "security service not initialized")
	}
	if _, err := s.SecurityService.Evaluate("kubectl get pods"); err != nil {
		return fail("Guardrail", err.Error())
	}
	return ok("Guardrail", "rules loaded from "+cfg.Security.RulesFile)
}

func binaryCheck(lookPath func(string) (string, error), name string, required bool) domain.HealthCheck {
	label := "Binary " + name
	path, err := lookPath(name)
	if err != nil {
		if required {
			return fail(label, "not found in PATH")
		}
		return warn(label, "not found in PATH")
	}
	return ok(label, path)
}

func (s *Service) contextCheck(ctx context.Context, cfg domain.Config) domain.HealthCheck {
	if s.ClusterCollector == nil {
		return warn("Kubeconfig", "cluster collector not initialized")
	}
	cluster, err := s.ClusterCollector.Collect(ctx, cfg)
	if err != nil {
		return fail("Kubeconfig", err.Error())
	}
	if cluster.Context == "" {
		return warn("Kubeconfig", "no current context selected")
	}
	return ok("Kubeconfig", fmt.Sprintf("context %s, namespace %s", cluster.Context, valueOr(cluster.Namespace, "default")))
}

func (s *Service) apiServerCheck(ctx context.Context, cfg domain.Config) domain.HealthCheck {
	if s.ServerVersion == nil {
		return warn("API server", "probe not configured")
	}
	version, err := s.ServerVersion(ctx, cfg.Cluster)
	if err != nil {
		return warn("API server", err.Error())
	}
	return ok("API server", "reachable, "+version)
}

func (s *Service) auditCheck(ctx context.Context, cfg domain.Config) domain.HealthCheck {
	if !cfg.Audit.Enabled {
		return warn("Audit log", "disabled in config")
	}
	if s.AuditCheck == nil {
		return warn("Audit log", "store not configured")
	}
	if err := s.AuditCheck(ctx, cfg.Audit); err != nil {
		return fail("Audit log", err.Error())
	}
	return ok("Audit log", cfg.Audit.Path)
}

func apiCheck(models []domain.ModelDefinition) domain.HealthCheck {
	var missing []string
	for _, model := range models {
		switch model.Provider {
		case domain.ProviderAnthropic:
			if envMissing(model.AuthEnvVar, "ANTHROPIC_API_KEY") {
				missing = append(missing, model.Name)
			}
		case domain.ProviderOpenAI:
			if envMissing(model.AuthEnvVar, "OPENAI_API_KEY") {
				missing = append(missing, model.Name)
			}
		case domain.ProviderHTTP:
			if model.AuthEnvVar != "" && envMissing(model.AuthEnvVar, "") {
				missing = append(missing, model.Name)
			}
		}
	}
	if len(missing) > 0 {
		return warn("API keys", "missing for "+strings.Join(missing, ", ")+" (offline heuristic will be used)")
	}
	return ok("API keys", "detected for configured providers")
}

func envMissing(primary, fallback string) bool {
	if primary != "" && os.Getenv(primary) != "" {
		return false
	}
	if fallback != "" && os.Getenv(fallback) != "" {
		return false
	}
	return true
}

func valueOr(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func ok(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthOK, Details: details}
}

func warn(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthWarn, Details: details}
}

func fail(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthError, Details: details}
}
