package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/infrastructure/security"
	"github.com/doeshing/kshai/internal/ports/mocks"
)

type fakeTimeout struct{}

func (fakeTimeout) Error() string { return "command timed out after 1s" }
func (fakeTimeout) Timeout() bool { return true }

func modelAction(tool, command string) domain.ProposedAction {
	return domain.ProposedAction{CallID: "call-1", Tool: tool, Command: command, Origin: domain.OriginModel}
}

func TestPlanOnlyNeverDispatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	executor := mocks.NewMockCommandExecutor(ctrl)
	prompter := mocks.NewMockConfirmationPrompter(ctrl)
	audit := mocks.NewMockAuditStore(ctrl)

	executor.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	audit.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, rec domain.AuditRecord) error {
		assert.Equal(t, domain.VerdictRejected, rec.Verdict)
		assert.Equal(t, domain.SourcePlanOnly, rec.Source)
		assert.Equal(t, domain.OutcomeRejected, rec.Outcome)
		return nil
	}).Times(3)

	g := New(executor, prompter, WithAudit(audit))
	policy := domain.ExecutionPolicy{PlanOnly: true, AutoExecute: true}
	for _, cmd := range []string{"get pods", "delete ns prod", "scale deploy/web --replicas=0"} {
		review, err := g.Review(context.Background(), modelAction(domain.ToolKubectl, cmd), policy)
		require.NoError(t, err)
		assert.Equal(t, "would run: kubectl "+cmd, review.Decision.Reason)

		result, exec := g.Dispatch(context.Background(), "sess", review)
		assert.Nil(t, exec)
		assert.False(t, result.IsError)
		assert.Equal(t, domain.OutcomeRejected, result.Outcome)
		assert.Equal(t, "call-1", result.CallID)
	}
}

func TestAutoExecuteDispatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	executor := mocks.NewMockCommandExecutor(ctrl)
	limits := domain.ExecutionLimits{Timeout: 5 * time.Second, MaxOutputBytes: 100}

	executor.EXPECT().Execute(gomock.Any(), "kubectl get pods", limits).
		Return(domain.ExecutionResult{Stdout: "pod-a Running", ExitCode: 0, Duration: 10 * time.Millisecond}, nil)

	g := New(executor, nil, WithLimits(limits))
	review, err := g.Review(context.Background(), modelAction(domain.ToolKubectl, "get pods"), domain.ExecutionPolicy{AutoExecute: true})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceAutoExecute, review.Decision.Source)

	result, exec := g.Dispatch(context.Background(), "sess", review)
	require.NotNil(t, exec)
	assert.Equal(t, domain.ToolResult{CallID: "call-1", Output: "pod-a Running", Outcome: domain.OutcomeExecuted}, result)
}

func TestConfirmation(t *testing.T) {
	tests := []struct {
		name     string
		answer   bool
		err      error
		approved bool
		reason   string
	}{
		{name: "yes", answer: true, approved: true},
		{name: "no", answer: false, reason: "declined by operator"},
		{name: "eof", err: errors.New("EOF"), reason: "confirmation failed: EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			executor := mocks.NewMockCommandExecutor(ctrl)
			prompter := mocks.NewMockConfirmationPrompter(ctrl)

			prompter.EXPECT().Enabled().Return(true)
			prompter.EXPECT().Confirm(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req domain.ConfirmationRequest) (bool, error) {
				assert.Equal(t, "helm list", req.Command)
				assert.Equal(t, domain.ToolShell, req.Tool)
				return tt.answer, tt.err
			})
			if tt.approved {
				executor.EXPECT().Execute(gomock.Any(), "helm list", gomock.Any()).Return(domain.ExecutionResult{Stdout: "web"}, nil)
			}

			g := New(executor, prompter)
			review, err := g.Review(context.Background(), modelAction(domain.ToolShell, "helm list"), domain.ExecutionPolicy{})
			require.NoError(t, err)
			assert.Equal(t, tt.approved, review.Decision.Approved())
			assert.Equal(t, domain.SourceOperator, review.Decision.Source)
			assert.Equal(t, tt.reason, review.Decision.Reason)

			result, _ := g.Dispatch(context.Background(), "sess", review)
			if tt.approved {
				assert.Equal(t, domain.OutcomeExecuted, result.Outcome)
			} else {
				assert.Equal(t, domain.OutcomeRejected, result.Outcome)
				assert.False(t, result.IsError)
			}
		})
	}
}

func TestNonInteractivePrompterRejects(t *testing.T) {
	ctrl := gomock.NewController(t)
	prompter := mocks.NewMockConfirmationPrompter(ctrl)
	prompter.EXPECT().Enabled().Return(false)

	g := New(mocks.NewMockCommandExecutor(ctrl), prompter)
	review, err := g.Review(context.Background(), modelAction(domain.ToolShell, "ls"), domain.ExecutionPolicy{})
	require.NoError(t, err)
	assert.False(t, review.Decision.Approved())
}

func TestConfirmationCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	prompter := mocks.NewMockConfirmationPrompter(ctrl)
	ctx, cancel := context.WithCancel(context.Background())

	prompter.EXPECT().Enabled().Return(true)
	prompter.EXPECT().Confirm(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ domain.ConfirmationRequest) (bool, error) {
		cancel()
		return false, ctx.Err()
	})

	g := New(mocks.NewMockCommandExecutor(ctrl), prompter)
	_, err := g.Review(ctx, modelAction(domain.ToolShell, "ls"), domain.ExecutionPolicy{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGuardrailBlockOverridesAutoExecute(t *testing.T) {
	ctrl := gomock.NewController(t)
	executor := mocks.NewMockCommandExecutor(ctrl)
	security := mocks.NewMockSecurityService(ctrl)

	security.EXPECT().Evaluate("kubectl delete ns kube-system").Return(domain.RiskAssessment{
		Level:   domain.RiskCritical,
		Action:  domain.ActionBlock,
		Reasons: []string{"deletes a system namespace"},
	}, nil)
	executor.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	g := New(executor, nil, WithSecurity(security))
	review, err := g.Review(context.Background(), modelAction(domain.ToolKubectl, "delete ns kube-system"), domain.ExecutionPolicy{AutoExecute: true})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceGuardrail, review.Decision.Source)
	assert.Equal(t, domain.RiskCritical, review.Decision.Risk)
	assert.Contains(t, review.Decision.Reason, "deletes a system namespace")

	result, _ := g.Dispatch(context.Background(), "sess", review)
	assert.Equal(t, domain.OutcomeRejected, result.Outcome)
}

func TestGuardrailAppliesWithPinnedContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	executor := mocks.NewMockCommandExecutor(ctrl)
	executor.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	rules, err := security.Compile(security.DefaultRules())
	require.NoError(t, err)

	g := New(executor, nil, WithCluster("kubectl", "prod"), WithSecurity(rules))
	review, err := g.Review(context.Background(), modelAction(domain.ToolKubectl, "delete namespace payments"), domain.ExecutionPolicy{})
	require.NoError(t, err)
	assert.Equal(t, "kubectl --context prod delete namespace payments", review.Command)
	assert.Equal(t, domain.RiskCritical, review.Decision.Risk)
	assert.False(t, review.Decision.Approved())
}

func TestGuardrailBlockRuleWithPinnedContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	executor := mocks.NewMockCommandExecutor(ctrl)
	executor.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	blocking := mocks.NewMockSecurityService(ctrl)
	blocking.EXPECT().Evaluate("kubectl delete ns payments").Return(domain.RiskAssessment{
		Level:   domain.RiskCritical,
		Action:  domain.ActionBlock,
		Reasons: []string{"payments is off limits"},
	}, nil)

	g := New(executor, nil, WithCluster("kubectl", "prod"), WithSecurity(blocking))
	review, err := g.Review(context.Background(), modelAction(domain.ToolKubectl, "kubectl delete ns payments"), domain.ExecutionPolicy{AutoExecute: true})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceGuardrail, review.Decision.Source)
	assert.False(t, review.Decision.Approved())
}

func TestGuardrailReasonsReachPrompter(t *testing.T) {
	ctrl := gomock.NewController(t)
	security := mocks.NewMockSecurityService(ctrl)
	prompter := mocks.NewMockConfirmationPrompter(ctrl)

	risk := domain.RiskAssessment{Level: domain.RiskHigh, Action: domain.ActionExplicitConfirm, Reasons: []string{"mutates a protected namespace"}}
	security.EXPECT().Evaluate(gomock.Any()).Return(risk, nil)
	prompter.EXPECT().Enabled().Return(true)
	prompter.EXPECT().Confirm(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req domain.ConfirmationRequest) (bool, error) {
		assert.Equal(t, risk, req.Risk)
		return false, nil
	})

	g := New(mocks.NewMockCommandExecutor(ctrl), prompter, WithSecurity(security))
	review, err := g.Review(context.Background(), modelAction(domain.ToolKubectl, "delete pod x -n prod"), domain.ExecutionPolicy{})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, review.Decision.Risk)
}

func TestOperatorCommandsSkipConfirmation(t *testing.T) {
	ctrl := gomock.NewController(t)
	executor := mocks.NewMockCommandExecutor(ctrl)
	executor.EXPECT().Execute(gomock.Any(), "kubectl get ns", gomock.Any()).Return(domain.ExecutionResult{Stdout: "default"}, nil)

	g := New(executor, mocks.NewMockConfirmationPrompter(ctrl))
	action := domain.ProposedAction{CallID: "run-1", Tool: domain.ToolShell, Command: "kubectl get ns", Origin: domain.OriginOperator}
	review, err := g.Review(context.Background(), action, domain.ExecutionPolicy{})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceDirectRun, review.Decision.Source)

	result, _ := g.Dispatch(context.Background(), "sess", review)
	assert.Equal(t, domain.OutcomeExecuted, result.Outcome)
}

func TestInvalidCallsFail(t *testing.T) {
	ctrl := gomock.NewController(t)
	g := New(mocks.NewMockCommandExecutor(ctrl), nil)

	for _, action := range []domain.ProposedAction{
		modelAction(domain.ToolShell, "   "),
		modelAction("browser", "open"),
	} {
		review, err := g.Review(context.Background(), action, domain.ExecutionPolicy{AutoExecute: true})
		require.NoError(t, err)
		result, exec := g.Dispatch(context.Background(), "sess", review)
		assert.Nil(t, exec)
		assert.True(t, result.IsError)
		assert.Equal(t, domain.OutcomeFailed, result.Outcome)
	}
}

func TestToolResultMapping(t *testing.T) {
	tests := []struct {
		name    string
		exec    domain.ExecutionResult
		err     error
		outcome domain.Outcome
		isError bool
		output  string
	}{
		{name: "success", exec: domain.ExecutionResult{Stdout: "ok"}, outcome: domain.OutcomeExecuted, output: "ok"},
		{name: "non-zero exit", exec: domain.ExecutionResult{Stderr: "not found", ExitCode: 1}, outcome: domain.OutcomeFailed, isError: true, output: "not found\nexit status 1"},
		{name: "truncated", exec: domain.ExecutionResult{Stdout: "aaaa\n[output truncated: 10 bytes omitted]", Truncated: true}, outcome: domain.OutcomeExecuted, isError: true, output: "aaaa\n[output truncated: 10 bytes omitted]"},
		{name: "timeout", exec: domain.ExecutionResult{Stdout: "partial"}, err: fakeTimeout{}, outcome: domain.OutcomeTimeout, isError: true, output: "partial\ncommand timed out after 1s"},
		{name: "cancelled", err: context.Canceled, outcome: domain.OutcomeCancelled, isError: true, output: "cancelled by operator"},
		{name: "start failure", err: errors.New("exec: no such file"), outcome: domain.OutcomeFailed, isError: true, output: "exec: no such file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toolResult("id", tt.exec, tt.err)
			assert.Equal(t, tt.outcome, got.Outcome)
			assert.Equal(t, tt.isError, got.IsError)
			assert.Equal(t, tt.output, got.Output)
		})
	}
}

func TestResolveCommand(t *testing.T) {
	g := New(nil, nil, WithCluster("kubectl", "prod"))
	tests := []struct {
		action domain.ProposedAction
		want   string
	}{
		{modelAction(domain.ToolKubectl, "get pods"), "kubectl --context prod get pods"},
		{modelAction(domain.ToolKubectl, "kubectl get pods"), "kubectl --context prod get pods"},
		{modelAction(domain.ToolKubectl, "get pods --context dev"), "kubectl get pods --context dev"},
		{modelAction(domain.ToolShell, "helm list -A"), "helm list -A"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.ResolveCommand(tt.action))
	}

	plain := New(nil, nil)
	assert.Equal(t, "kubectl get nodes", plain.ResolveCommand(modelAction(domain.ToolKubectl, "get nodes")))
}
