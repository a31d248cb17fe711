package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/doeshing/kshai/internal/application/doctor"
	"github.com/doeshing/kshai/internal/application/extraction"
	"github.com/doeshing/kshai/internal/application/gate"
	"github.com/doeshing/kshai/internal/application/prompt"
	"github.com/doeshing/kshai/internal/application/session"
	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/infrastructure/ai"
	"github.com/doeshing/kshai/internal/infrastructure/audit"
	"github.com/doeshing/kshai/internal/infrastructure/config"
	"github.com/doeshing/kshai/internal/infrastructure/executor"
	"github.com/doeshing/kshai/internal/infrastructure/kube"
	"github.com/doeshing/kshai/internal/infrastructure/security"
	"github.com/doeshing/kshai/internal/pkg/logger"
	"github.com/doeshing/kshai/internal/pkg/telemetry"
	"github.com/doeshing/kshai/internal/pkg/tokens"
	"github.com/doeshing/kshai/internal/ports"
	"github.com/doeshing/kshai/internal/version"
)

// Options controls container construction.
type Options struct {
	Verbose    bool
	ConfigPath string
}

// Container wires up application services with infrastructure adapters.
type Container struct {
	Config        domain.Config
	ConfigLoader  *config.FileLoader
	Logger        *logger.SlogLogger
	Cluster       domain.ClusterContext
	Guardrail     *security.Guardrail
	AuditStore    *audit.SQLiteStore
	Executor      *executor.LocalExecutor
	Factory       *ai.Factory
	Prompt        *prompt.Builder
	Tokens        *tokens.Counter
	DoctorService *doctor.Service

	tracer      *telemetry.TracerProvider
	traceFile   *os.File
	stopMetrics context.CancelFunc
}

// BuildContainer constructs the dependency graph.
func BuildContainer(ctx context.Context, opts Options) (*Container, error) {
	cfgLoader := config.NewFileLoader(opts.ConfigPath)
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.NewStd(opts.Verbose)
	c := &Container{
		Config:       cfg,
		ConfigLoader: cfgLoader,
		Logger:       log,
		Tokens:       tokens.NewCounter(),
	}

	collector := kube.NewCollector()
	c.Cluster, err = collector.Collect(ctx, cfg)
	if err != nil {
		log.Warn("cluster context unavailable", map[string]interface{}{"error": err.Error()})
	}

	c.Guardrail, err = security.NewGuardrail(cfg.Security.RulesFile)
	if err != nil {
		log.Warn("guardrail rules invalid, using built-in rules", map[string]interface{}{"error": err.Error()})
		c.Guardrail, err = security.NewGuardrail("")
		if err != nil {
			return nil, err
		}
	}

	if cfg.Audit.Enabled {
		c.AuditStore, err = audit.NewSQLiteStore(cfg.Audit.Path)
		if err != nil {
			log.Warn("audit store unavailable", map[string]interface{}{"error": err.Error()})
		}
	}

	c.Executor = executor.NewLocalExecutor(cfg.GetExecutionShell(), executor.WithLogger(log))

	c.Prompt, err = prompt.New("")
	if err != nil {
		return nil, err
	}

	c.Factory = ai.NewFactory(extraction.New(),
		ai.WithLogger(log),
		ai.WithRequestTimeout(cfg.GetRequestTimeout()),
		ai.WithMaxToolRounds(cfg.GetMaxToolRounds()),
		ai.WithClusterCLI(cfg.GetClusterCLI()),
	)

	c.DoctorService = &doctor.Service{
		ConfigProvider:   cfgLoader,
		SecurityService:  c.Guardrail,
		ClusterCollector: collector,
		RulesCheck:       checkRules,
		ServerVersion:    kube.ServerVersion,
		AuditCheck:       checkAudit,
	}

	if err := c.startTelemetry(ctx); err != nil {
		log.Warn("telemetry disabled", map[string]interface{}{"error": err.Error()})
	}
	return c, nil
}

// NewSession starts a conversation whose confirmations go to prompter.
func (c *Container) NewSession(prompter ports.ConfirmationPrompter, modelName string) (*session.Manager, error) {
	return session.New(session.Dependencies{
		Factory:      c.Factory,
		Gate:         c.NewGate(prompter),
		SystemPrompt: c.systemPrompt,
		Tokens:       c.Tokens,
		Logger:       c.Logger,
	}, c.Config, modelName)
}

// NewGate builds the permission gate for one operator channel.
func (c *Container) NewGate(prompter ports.ConfirmationPrompter) *gate.Gate {
	opts := []gate.Option{
		gate.WithLogger(c.Logger),
		gate.WithLimits(c.Config.ExecutionLimits()),
		gate.WithCluster(c.Config.GetClusterCLI(), c.Config.Cluster.Context),
	}
	if c.Config.IsSecurityEnabled() {
		opts = append(opts, gate.WithSecurity(c.Guardrail))
	}
	if c.AuditStore != nil {
		opts = append(opts, gate.WithAudit(c.AuditStore))
	}
	return gate.New(c.Executor, prompter, opts...)
}

func (c *Container) systemPrompt(mode domain.BackendMode, model domain.ModelDefinition) (string, error) {
	return c.Prompt.Build(c.Cluster, mode, model, c.Config.Preferences.SystemPrompt)
}

func (c *Container) startTelemetry(ctx context.Context) error {
	var errs []error
	if addr := c.Config.Telemetry.MetricsAddr; addr != "" {
		metricsCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c.stopMetrics = cancel
		go func() {
			if err := telemetry.ServeMetrics(metricsCtx, addr); err != nil {
				c.Logger.Error("metrics server stopped", err, map[string]interface{}{"addr": addr})
			}
		}()
	}
	if c.Config.Telemetry.Tracing {
		path := filepath.Join(filepath.Dir(c.ConfigLoader.Path()), "traces.json")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, domain.SecureFilePermissions)
		if err != nil {
			errs = append(errs, fmt.Errorf("open trace file: %w", err))
		} else {
			tp, err := telemetry.NewTracerProvider("kshai", version.Version, f)
			if err != nil {
				f.Close()
				errs = append(errs, err)
			} else {
				c.tracer, c.traceFile = tp, f
			}
		}
	}
	return errors.Join(errs...)
}

// Close flushes telemetry and releases the audit database.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.stopMetrics != nil {
		c.stopMetrics()
	}
	if c.tracer != nil {
		errs = append(errs, c.tracer.Shutdown(ctx))
		errs = append(errs, c.traceFile.Close())
	}
	if c.AuditStore != nil {
		errs = append(errs, c.AuditStore.Close())
	}
	return errors.Join(errs...)
}

func checkRules(path string) error {
	_, err := security.NewGuardrail(path)
	return err
}

func checkAudit(ctx context.Context, settings domain.AuditSettings) error {
	store, err := audit.NewSQLiteStore(settings.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	_, err = store.Records(ctx, 1, "")
	return err
}
