package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doeshing/kshai/internal/domain"
)

func validConfig() domain.Config {
	return domain.Config{
		Preferences: domain.Preferences{DefaultModel: "claude"},
		Models: []domain.ModelDefinition{
			{Name: "claude", Provider: domain.ProviderAnthropic, Endpoint: "https://api.anthropic.com/v1/messages"},
			{Name: "offline", Provider: domain.ProviderHeuristic},
		},
		Security: domain.SecuritySettings{Enabled: true, RulesFile: "/tmp/guardrail.yaml"},
		Cluster:  domain.ClusterSettings{CLI: "kubectl"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*domain.Config) {}},
		{name: "no models", mutate: func(c *domain.Config) { c.Models = nil; c.Preferences.DefaultModel = "" }, wantErr: "at least one model"},
		{name: "relative endpoint", mutate: func(c *domain.Config) { c.Models[0].Endpoint = "api.anthropic.com" }, wantErr: "not an absolute URL"},
		{name: "http without endpoint", mutate: func(c *domain.Config) {
			c.Models = append(c.Models, domain.ModelDefinition{Name: "local", Provider: domain.ProviderHTTP})
		}, wantErr: "endpoint must be set"},
		{name: "bad system mode", mutate: func(c *domain.Config) { c.Models[0].APIFormat.SystemMessageMode = "weird" }, wantErr: "system_message_mode"},
		{name: "rules file missing", mutate: func(c *domain.Config) { c.Security.RulesFile = "" }, wantErr: "rules_file"},
		{name: "cli with pipeline", mutate: func(c *domain.Config) { c.Cluster.CLI = "kubectl | tee" }, wantErr: "single binary"},
		{name: "conflicting modes", mutate: func(c *domain.Config) {
			c.Preferences.AutoExecute = true
			c.Preferences.PlanOnly = true
		}, wantErr: "mutually exclusive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
