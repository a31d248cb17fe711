// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// This package establishes the contract between the conversation core and external
// adapters (infrastructure). Model backends, the command executor, the operator
// prompter and the audit store are all reached through these interfaces, which keeps
// the application layer testable without a cluster or a network.
package ports

import (
	"context"

	"github.com/doeshing/kshai/internal/domain"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks github.com/doeshing/kshai/internal/ports CommandExecutor,ConfirmationPrompter,SecurityService,AuditStore

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.kshai/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
	Path() string
}

// ClusterCollector reads the active cluster selection so the model knows where it operates.
type ClusterCollector interface {
	Collect(context.Context, domain.Config) (domain.ClusterContext, error)
}

// ProviderFactory builds provider instances based on model definitions.
type ProviderFactory interface {
	ForModel(domain.ModelDefinition) (Provider, error)
}

// Provider turns a conversation into a lazy stream of normalized events.
type Provider interface {
	Name() string
	Config() domain.ProviderConfig
	Stream(context.Context, ProviderRequest) EventStream
}

// ProviderRequest is everything a backend needs for one turn.
type ProviderRequest struct {
	System  string
	History []domain.Message
	Tools   []domain.ToolSpec
}

// EventStream is a single-pass event sequence for one turn.
//
// Next blocks until the next event is available and reports false once the
// stream is exhausted. A ToolCallRequest from a structured backend must be
// answered with Resolve before Next is called again; the stream continues the
// exchange with the backend once every outstanding call is resolved.
type EventStream interface {
	Next() (domain.Event, bool)
	Resolve(domain.ToolResult) error
	Close() error
}

// CommandExtractor finds runnable commands in generic backend text, in appearance order.
type CommandExtractor interface {
	Commands(message string) []string
}

// SecurityService evaluates commands against guardrail rules.
type SecurityService interface {
	Evaluate(command string) (domain.RiskAssessment, error)
}

// CommandExecutor runs shell commands in the configured shell environment.
type CommandExecutor interface {
	Execute(ctx context.Context, command string, limits domain.ExecutionLimits) (domain.ExecutionResult, error)
}

// ConfirmationPrompter asks the operator whether a proposed command may run.
// Confirm must return promptly with ctx.Err() when ctx is cancelled.
type ConfirmationPrompter interface {
	Confirm(ctx context.Context, req domain.ConfirmationRequest) (bool, error)
	Enabled() bool
}

// AuditStore persists gate decisions.
type AuditStore interface {
	Save(context.Context, domain.AuditRecord) error
	Records(ctx context.Context, limit int, search string) ([]domain.AuditRecord, error)
	Clear(context.Context) error
}

// TokenCounter estimates how many tokens a text costs.
type TokenCounter interface {
	Count(text string) int
}

// Logger provides structured logging abstraction for the application layer.
// Implementations can route to different backends (stdout, files, external services).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
