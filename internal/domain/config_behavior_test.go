package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/doeshing/kshai/internal/domain"
)

// TestConfig_GetDefaultModel tests retrieving the default model
func TestConfig_GetDefaultModel(t *testing.T) {
	tests := []struct {
		name        string
		config      domain.Config
		wantError   bool
		wantModelID string
	}{
		{
			name: "returns default model successfully",
			config: domain.Config{
				Preferences: domain.Preferences{DefaultModel: "claude"},
				Models: []domain.ModelDefinition{
					{Name: "claude", ModelID: "claude-3-5-sonnet"},
					{Name: "gpt4", ModelID: "gpt-4o"},
				},
			},
			wantModelID: "claude-3-5-sonnet",
		},
		{
			name: "returns error when default model not found",
			config: domain.Config{
				Preferences: domain.Preferences{DefaultModel: "nonexistent"},
				Models:      []domain.ModelDefinition{{Name: "claude", ModelID: "claude-3-5-sonnet"}},
			},
			wantError: true,
		},
		{
			name: "falls back to first model when no default configured",
			config: domain.Config{
				Models: []domain.ModelDefinition{
					{Name: "local", ModelID: "llama3"},
					{Name: "claude", ModelID: "claude-3-5-sonnet"},
				},
			},
			wantModelID: "llama3",
		},
		{
			name:      "returns error when nothing is configured",
			config:    domain.Config{},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := tt.config.GetDefaultModel()

			if tt.wantError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if model.ModelID != tt.wantModelID {
				t.Errorf("got model ID %s, want %s", model.ModelID, tt.wantModelID)
			}
		})
	}
}

// TestConfig_ValidateConsistency tests configuration consistency validation
func TestConfig_ValidateConsistency(t *testing.T) {
	tests := []struct {
		name      string
		config    domain.Config
		wantError bool
	}{
		{
			name: "valid configuration",
			config: domain.Config{
				Preferences: domain.Preferences{DefaultModel: "claude"},
				Models:      []domain.ModelDefinition{{Name: "claude", Provider: domain.ProviderAnthropic}},
			},
		},
		{
			name: "default model without models",
			config: domain.Config{
				Preferences: domain.Preferences{DefaultModel: "claude"},
			},
			wantError: true,
		},
		{
			name: "duplicate model names",
			config: domain.Config{
				Models: []domain.ModelDefinition{{Name: "a"}, {Name: "a"}},
			},
			wantError: true,
		},
		{
			name: "unknown provider",
			config: domain.Config{
				Models: []domain.ModelDefinition{{Name: "a", Provider: "gemini"}},
			},
			wantError: true,
		},
		{
			name: "auto execute and plan only together",
			config: domain.Config{
				Preferences: domain.Preferences{AutoExecute: true, PlanOnly: true},
			},
			wantError: true,
		},
		{
			name: "negative output cap",
			config: domain.Config{
				Execution: domain.ExecutionSettings{MaxOutputBytes: -1},
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.ValidateConsistency()
			if tt.wantError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfig_ExecutionLimits(t *testing.T) {
	cfg := domain.Config{}
	limits := cfg.ExecutionLimits()
	if limits.Timeout != domain.DefaultCommandTimeout {
		t.Errorf("timeout = %v, want %v", limits.Timeout, domain.DefaultCommandTimeout)
	}
	if limits.MaxOutputBytes != domain.DefaultMaxOutputBytes {
		t.Errorf("max output = %d, want %d", limits.MaxOutputBytes, domain.DefaultMaxOutputBytes)
	}

	cfg.Execution = domain.ExecutionSettings{TimeoutSeconds: 5, MaxOutputBytes: 64}
	limits = cfg.ExecutionLimits()
	if limits.Timeout != 5*time.Second || limits.MaxOutputBytes != 64 {
		t.Errorf("unexpected limits %+v", limits)
	}
}

func TestConfig_InitialPolicy(t *testing.T) {
	cfg := domain.Config{Preferences: domain.Preferences{PlanOnly: true, VerboseTools: true}}
	policy := cfg.InitialPolicy()
	if !policy.PlanOnly || !policy.Verbose || policy.AutoExecute {
		t.Errorf("unexpected policy %+v", policy)
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := domain.Config{}
	if got := cfg.GetClusterCLI(); got != "kubectl" {
		t.Errorf("cluster cli = %s", got)
	}
	if got := cfg.GetExecutionShell(); got != "/bin/sh" {
		t.Errorf("shell = %s", got)
	}
	if got := cfg.GetMaxToolRounds(); got != domain.DefaultMaxToolRounds {
		t.Errorf("max rounds = %d", got)
	}
}

func TestParseProviderKind(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.ProviderKind
		mode domain.BackendMode
	}{
		{"anthropic", domain.ProviderAnthropic, domain.BackendStructured},
		{" OpenAI ", domain.ProviderOpenAI, domain.BackendStructured},
		{"http", domain.ProviderHTTP, domain.BackendGeneric},
		{"heuristic", domain.ProviderHeuristic, domain.BackendGeneric},
	}
	for _, tt := range tests {
		got, err := domain.ParseProviderKind(tt.raw)
		if err != nil {
			t.Fatalf("ParseProviderKind(%q): %v", tt.raw, err)
		}
		if got != tt.want || got.Mode() != tt.mode {
			t.Errorf("ParseProviderKind(%q) = %s/%s", tt.raw, got, got.Mode())
		}
	}
	if _, err := domain.ParseProviderKind("bard"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestTransportError(t *testing.T) {
	err := fmt.Errorf("stream: %w", &domain.TransportError{Kind: domain.TransportRateLimit, Provider: "openai", Err: errors.New("slow down")})
	if !domain.IsTransportKind(err, domain.TransportRateLimit) {
		t.Error("expected rate limit classification")
	}
	if domain.IsTransportKind(err, domain.TransportAuth) {
		t.Error("unexpected auth classification")
	}

	for status, want := range map[int]domain.TransportErrorKind{
		401: domain.TransportAuth,
		403: domain.TransportAuth,
		429: domain.TransportRateLimit,
		503: domain.TransportServer,
		400: domain.TransportProtocol,
	} {
		if got := domain.ClassifyStatus(status); got != want {
			t.Errorf("ClassifyStatus(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestExecutionResult_CombinedOutput(t *testing.T) {
	tests := []struct {
		result domain.ExecutionResult
		want   string
	}{
		{domain.ExecutionResult{Stdout: "out"}, "out"},
		{domain.ExecutionResult{Stderr: "err"}, "err"},
		{domain.ExecutionResult{Stdout: "out", Stderr: "err"}, "out\nerr"},
	}
	for _, tt := range tests {
		if got := tt.result.CombinedOutput(); got != tt.want {
			t.Errorf("CombinedOutput() = %q, want %q", got, tt.want)
		}
	}
	if (domain.ExecutionResult{Truncated: true}).Succeeded() {
		t.Error("truncated result must not count as success")
	}
}

func TestConfig_ModelManagement(t *testing.T) {
	cfg := domain.Config{
		Preferences: domain.Preferences{DefaultModel: "a"},
		Models:      []domain.ModelDefinition{{Name: "a"}, {Name: "b"}},
	}

	if err := cfg.AddModel(domain.ModelDefinition{Name: "b"}); err == nil {
		t.Fatal("AddModel accepted a duplicate name")
	}
	if err := cfg.AddModel(domain.ModelDefinition{Name: "c"}); err != nil {
		t.Fatalf("AddModel: %v", err)
	}
	if err := cfg.SetDefaultModel("missing"); err == nil {
		t.Fatal("SetDefaultModel accepted an unknown model")
	}
	if err := cfg.SetDefaultModel("c"); err != nil {
		t.Fatalf("SetDefaultModel: %v", err)
	}
	if err := cfg.RemoveModel("c"); err != nil {
		t.Fatalf("RemoveModel: %v", err)
	}
	if cfg.Preferences.DefaultModel != "a" {
		t.Errorf("default after removal = %q, want a", cfg.Preferences.DefaultModel)
	}
	if err := cfg.RemoveModel("c"); err == nil {
		t.Fatal("RemoveModel succeeded twice")
	}
	if got := cfg.ModelNames(); len(got) != 2 {
		t.Errorf("ModelNames() = %v", got)
	}
}
