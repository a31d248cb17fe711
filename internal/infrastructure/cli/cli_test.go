package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/kshai/internal/app"
	"github.com/doeshing/kshai/internal/application/session"
	"github.com/doeshing/kshai/internal/domain"
)

func TestPrompter_Confirm(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		action domain.GuardrailAction
		want   bool
	}{
		{"simple yes", "y\n", domain.ActionConfirm, true},
		{"simple default no", "\n", domain.ActionConfirm, false},
		{"explicit needs full word", "y\n", domain.ActionExplicitConfirm, false},
		{"explicit yes", "yes\n", domain.ActionExplicitConfirm, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompter(NewLineReader(strings.NewReader(tt.input)), &out, true)
			got, err := p.Confirm(context.Background(), domain.ConfirmationRequest{
				Tool:    domain.ToolKubectl,
				Command: "kubectl delete pod web-0",
				Risk:    domain.RiskAssessment{Level: domain.RiskHigh, Action: tt.action, Reasons: []string{"deletes a resource"}},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "deletes a resource")
		})
	}
}

func TestPrompter_CancelledWhileWaiting(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	p := NewPrompter(NewLineReader(r), io.Discard, true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ok, err := p.Confirm(ctx, domain.ConfirmationRequest{Command: "kubectl get pods"})
	assert.False(t, ok)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPrompter_DisabledWhenNotInteractive(t *testing.T) {
	p := NewPrompter(NewLineReader(strings.NewReader("")), io.Discard, false)
	assert.False(t, p.Enabled())
}

func TestLineReader_KeepsLineAfterCancel(t *testing.T) {
	r, w := io.Pipe()
	lines := NewLineReader(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := lines.ReadLine(ctx)
	require.ErrorIs(t, err, context.Canceled)

	go func() {
		_, _ = w.Write([]byte("get pods\r\n"))
	}()
	line, err := lines.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "get pods", line)

	w.Close()
	_, err = lines.ReadLine(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestRenderer_TurnOutput(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, false)
	output := strings.Repeat("line\n", defaultPreviewLines+3)

	for _, ev := range []session.RenderEvent{
		session.RenderText{Text: "Checking pods"},
		session.RenderToolCall{CallID: "c1", Tool: domain.ToolKubectl, Command: "kubectl get pods"},
		session.RenderDecision{CallID: "c1", Decision: domain.Decision{Verdict: domain.VerdictApproved, Source: domain.SourceOperator}},
		session.RenderToolResult{CallID: "c1", Result: domain.ToolResult{Outcome: domain.OutcomeExecuted},
			Execution: &domain.ExecutionResult{Stdout: output}},
		session.RenderDecision{CallID: "c2", Decision: domain.Decision{Verdict: domain.VerdictRejected, Source: domain.SourceGuardrail, Reason: "blocked by guardrail: protected namespace"}},
		session.RenderTurnEnd{Reason: domain.StopMaxRounds},
	} {
		r.Render(ev)
	}

	text := out.String()
	assert.Contains(t, text, "Checking pods\n")
	assert.Contains(t, text, "kubectl: kubectl get pods")
	assert.Contains(t, text, "approved (operator)")
	assert.Contains(t, text, "executed, exit 0")
	assert.Contains(t, text, "3 more lines")
	assert.Contains(t, text, "rejected (guardrail): blocked by guardrail")
	assert.Contains(t, text, "tool round limit")

	out.Reset()
	r.Verbose = func() bool { return true }
	r.Render(session.RenderToolResult{CallID: "c3", Result: domain.ToolResult{Outcome: domain.OutcomeExecuted},
		Execution: &domain.ExecutionResult{Stdout: output}})
	assert.Equal(t, defaultPreviewLines+3, strings.Count(out.String(), "  line\n"))
}

func newTestContainer(t *testing.T) *app.Container {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("KSHAI_CONFIG", filepath.Join(home, ".kshai", "config.yaml"))
	t.Setenv("KUBECONFIG", filepath.Join(home, "kubeconfig"))
	t.Setenv("ANTHROPIC_API_KEY", "")

	container, err := app.BuildContainer(context.Background(), app.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(context.Background()) })
	return container
}

func TestRunChat_NonInteractiveRejectsSuggestions(t *testing.T) {
	container := newTestContainer(t)
	var out bytes.Buffer

	err := runChat(context.Background(), container, "", strings.NewReader("which pods are failing?\n/exit\n"), &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "model claude-sonnet")
	assert.Contains(t, text, "suggested: kubectl get pods -A")
	assert.Contains(t, text, "confirmation unavailable in non-interactive mode")
	assert.Contains(t, text, "bye")
}

func TestRunAsk_PlanOnly(t *testing.T) {
	container := newTestContainer(t)
	var out bytes.Buffer

	err := runAsk(context.Background(), container, askOptions{plan: true}, "show me the nodes", strings.NewReader(""), &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "suggested: kubectl get nodes -o wide")
	assert.Contains(t, text, "rejected (plan_only)")
}

func TestRunAsk_ConflictingFlags(t *testing.T) {
	container := newTestContainer(t)
	err := runAsk(context.Background(), container, askOptions{auto: true, plan: true}, "hi", strings.NewReader(""), io.Discard)
	assert.Error(t, err)
}
