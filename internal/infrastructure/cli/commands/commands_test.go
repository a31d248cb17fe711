package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/kshai/internal/app"
	"github.com/doeshing/kshai/internal/domain"
)

func newTestContainer(t *testing.T) *app.Container {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("KSHAI_CONFIG", filepath.Join(home, ".kshai", "config.yaml"))
	t.Setenv("KUBECONFIG", filepath.Join(home, "kubeconfig"))

	container, err := app.BuildContainer(context.Background(), app.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(context.Background()) })
	return container
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigCommand_SetThenGet(t *testing.T) {
	container := newTestContainer(t)

	_, err := execute(t, NewConfigCommand(container), "set", "preferences.plan_only", "true")
	require.NoError(t, err)

	out, err := execute(t, NewConfigCommand(container), "get", "preferences.plan_only")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	_, err = execute(t, NewConfigCommand(container), "get", "preferences.missing")
	assert.Error(t, err)
}

func TestConfigCommand_SetRejectsInvalidConfig(t *testing.T) {
	container := newTestContainer(t)

	_, err := execute(t, NewConfigCommand(container), "set", "preferences.default_model", "nope")
	require.Error(t, err)

	out, err := execute(t, NewConfigCommand(container), "get", "preferences.default_model")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet\n", out)
}

func TestConfigCommand_PathAndValidate(t *testing.T) {
	container := newTestContainer(t)

	out, err := execute(t, NewConfigCommand(container), "path")
	require.NoError(t, err)
	assert.Equal(t, container.ConfigLoader.Path()+"\n", out)

	out, err = execute(t, NewConfigCommand(container), "validate")
	require.NoError(t, err)
	assert.Contains(t, out, MsgConfigurationValid)
}

func TestModelsCommand_UseAndList(t *testing.T) {
	container := newTestContainer(t)

	_, err := execute(t, NewModelsCommand(container), "use", "offline")
	require.NoError(t, err)

	out, err := execute(t, NewModelsCommand(container), "list")
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^offline\s+heuristic\s+\*$`, out)

	_, err = execute(t, NewModelsCommand(container), "use", "missing")
	assert.Error(t, err)
}

func TestModelsCommand_TestOffline(t *testing.T) {
	container := newTestContainer(t)

	out, err := execute(t, NewModelsCommand(container), "test", "offline")
	require.NoError(t, err)
	assert.Contains(t, out, "Model offline")
}

func TestAuditCommand_ListAndStats(t *testing.T) {
	container := newTestContainer(t)
	require.NotNil(t, container.AuditStore)

	out, err := execute(t, NewAuditCommand(container), "list")
	require.NoError(t, err)
	assert.Contains(t, out, MsgNoAuditRecords)

	require.NoError(t, container.AuditStore.Save(context.Background(), domain.AuditRecord{
		Timestamp: time.Now(),
		SessionID: "s1",
		CallID:    "c1",
		Origin:    domain.OriginModel,
		Command:   "kubectl rollout restart deploy/web",
		Verdict:   domain.VerdictApproved,
		Source:    domain.SourceOperator,
		RiskLevel: domain.RiskMedium,
		Outcome:   domain.OutcomeExecuted,
	}))

	out, err = execute(t, NewAuditCommand(container), "list", "--search", "rollout")
	require.NoError(t, err)
	assert.Contains(t, out, "kubectl rollout restart deploy/web")

	out, err = execute(t, NewAuditCommand(container), "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Approved: 1")
	assert.Contains(t, out, "rollout undo")

	_, err = execute(t, NewAuditCommand(container), "clear")
	require.NoError(t, err)
	records, err := container.AuditStore.Records(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAnalyzeAuditRecords(t *testing.T) {
	stats := analyzeAuditRecords([]domain.AuditRecord{
		{Command: "kubectl get pods", Verdict: domain.VerdictApproved, Outcome: domain.OutcomeExecuted},
		{Command: "kubectl get pods", Verdict: domain.VerdictApproved, Outcome: domain.OutcomeFailed, ExitCode: 1},
		{Command: "kubectl delete ns prod", Verdict: domain.VerdictRejected, Source: domain.SourceGuardrail, Outcome: domain.OutcomeRejected},
	})

	assert.Equal(t, 2, stats.executed)
	assert.Equal(t, 1, stats.successful)
	assert.Equal(t, 2, stats.commandFreq["kubectl get pods"])
	assert.Equal(t, 1, stats.sources[domain.SourceGuardrail])
}

func TestDisplayDoctorReport(t *testing.T) {
	var out bytes.Buffer
	displayDoctorReport(&out, domain.HealthReport{Checks: []domain.HealthCheck{
		{Name: "Binary kubectl", Status: domain.HealthOK, Details: "/usr/bin/kubectl"},
		{Name: "API server", Status: domain.HealthWarn, Details: "connection refused"},
	}})
	assert.Equal(t, "[OK] Binary kubectl - /usr/bin/kubectl\n[WARN] API server - connection refused\n", out.String())
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, NewVersionCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "KSHAI version dev")
}

func TestVersionCommand_Short(t *testing.T) {
	out, err := execute(t, NewVersionCommand(), "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}
