// Package gate decides whether a proposed command may run and is the only
// component that talks to the command executor.
//
// Rules apply in order: plan-only mode rejects everything, a guardrail block
// rejects, auto-execute and operator-typed commands are approved, and all
// other commands wait for the operator's answer.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/pkg/logger"
	"github.com/doeshing/kshai/internal/pkg/telemetry"
	"github.com/doeshing/kshai/internal/ports"
)

// Gate rules on proposed actions and dispatches the approved ones.
type Gate struct {
	executor       ports.CommandExecutor
	prompter       ports.ConfirmationPrompter
	security       ports.SecurityService
	audit          ports.AuditStore
	logger         ports.Logger
	limits         domain.ExecutionLimits
	clusterCLI     string
	clusterContext string
	now            func() time.Time
}

// Option customizes a Gate.
type Option func(*Gate)

// WithSecurity enables guardrail evaluation.
func WithSecurity(s ports.SecurityService) Option {
	return func(g *Gate) { g.security = s }
}

// WithAudit records every decision.
func WithAudit(a ports.AuditStore) Option {
	return func(g *Gate) { g.audit = a }
}

// WithLogger routes gate diagnostics.
func WithLogger(l ports.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithLimits sets the timeout and output cap of dispatched commands.
func WithLimits(limits domain.ExecutionLimits) Option {
	return func(g *Gate) { g.limits = limits }
}

// WithCluster sets the CLI and kubeconfig context used for kubectl tool calls.
func WithCluster(cli, kubeContext string) Option {
	return func(g *Gate) {
		if cli != "" {
			g.clusterCLI = cli
		}
		g.clusterContext = kubeContext
	}
}

// New creates a Gate around the executor and the operator prompter.
func New(executor ports.CommandExecutor, prompter ports.ConfirmationPrompter, opts ...Option) *Gate {
	g := &Gate{
		executor:   executor,
		prompter:   prompter,
		logger:     logger.Discard(),
		limits:     domain.ExecutionLimits{Timeout: domain.DefaultCommandTimeout, MaxOutputBytes: domain.DefaultMaxOutputBytes},
		clusterCLI: domain.DefaultClusterCLI,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Review is a ruled action: the resolved command line and the decision.
type Review struct {
	Action   domain.ProposedAction
	Command  string
	Decision domain.Decision
	// invalid marks actions that could never run, such as an empty command.
	invalid bool
}

// Review rules on action under policy. It only returns an error when ctx is
// cancelled while waiting for the operator.
func (g *Gate) Review(ctx context.Context, action domain.ProposedAction, policy domain.ExecutionPolicy) (Review, error) {
	r := Review{Action: action, Command: g.ResolveCommand(action)}

	if problem := validate(action, r.Command); problem != "" {
		r.invalid = true
		r.Decision = rejected(domain.SourceGuardrail, problem, "")
		return r, nil
	}

	if policy.PlanOnly {
		r.Decision = rejected(domain.SourcePlanOnly, "would run: "+r.Command, "")
		return r, nil
	}

	risk := g.evaluate(g.guardedCommand(action))
	if risk.Blocks() {
		r.Decision = rejected(domain.SourceGuardrail, "blocked by guardrail: "+strings.Join(risk.Reasons, "; "), risk.Level)
		return r, nil
	}

	switch {
	case action.Origin == domain.OriginOperator:
		r.Decision = domain.Decision{Verdict: domain.VerdictApproved, Source: domain.SourceDirectRun, Risk: risk.Level}
		return r, nil
	case policy.AutoExecute:
		r.Decision = domain.Decision{Verdict: domain.VerdictApproved, Source: domain.SourceAutoExecute, Risk: risk.Level}
		return r, nil
	}

	if g.prompter == nil || !g.prompter.Enabled() {
		r.Decision = rejected(domain.SourceOperator, "confirmation unavailable in non-interactive mode", risk.Level)
		return r, nil
	}

	ok, err := g.prompter.Confirm(ctx, domain.ConfirmationRequest{Tool: action.Tool, Command: r.Command, Risk: risk})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return r, ctxErr
	}
	switch {
	case err != nil:
		g.logger.Warn("confirmation failed", map[string]interface{}{"call_id": action.CallID, "error": err.Error()})
		r.Decision = rejected(domain.SourceOperator, "confirmation failed: "+err.Error(), risk.Level)
	case ok:
		r.Decision = domain.Decision{Verdict: domain.VerdictApproved, Source: domain.SourceOperator, Risk: risk.Level}
	default:
		r.Decision = rejected(domain.SourceOperator, "declined by operator", risk.Level)
	}
	return r, nil
}

// Dispatch runs an approved review and turns the outcome into a tool result.
// Rejections produce a non-error result carrying the reason.
func (g *Gate) Dispatch(ctx context.Context, sessionID string, r Review) (domain.ToolResult, *domain.ExecutionResult) {
	telemetry.RecordGateDecision(string(r.Decision.Verdict), string(r.Decision.Source))
	rec := domain.AuditRecord{
		Timestamp: g.now(),
		SessionID: sessionID,
		CallID:    r.Action.CallID,
		Origin:    r.Action.Origin,
		Command:   r.Command,
		Verdict:   r.Decision.Verdict,
		Source:    r.Decision.Source,
		RiskLevel: r.Decision.Risk,
	}

	if !r.Decision.Approved() {
		result := domain.ToolResult{CallID: r.Action.CallID, Output: r.Decision.Reason, Outcome: domain.OutcomeRejected}
		if r.invalid {
			result.IsError = true
			result.Outcome = domain.OutcomeFailed
		}
		rec.Outcome = result.Outcome
		g.record(ctx, rec)
		return result, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "gate.dispatch",
		telemetry.AttrCallID.String(r.Action.CallID),
		telemetry.AttrTool.String(r.Action.Tool),
		telemetry.AttrVerdict.String(string(r.Decision.Verdict)),
	)
	defer span.End()

	exec, err := g.executor.Execute(ctx, r.Command, g.limits)
	result := toolResult(r.Action.CallID, exec, err)
	span.SetAttributes(telemetry.AttrOutcome.String(string(result.Outcome)))
	telemetry.RecordCommand(string(result.Outcome), exec.Duration)

	rec.Outcome = result.Outcome
	rec.ExitCode = exec.ExitCode
	rec.DurationMS = exec.Duration.Milliseconds()
	// Audit must survive the turn being cancelled mid-command.
	g.record(context.WithoutCancel(ctx), rec)

	g.logger.Debug("command dispatched", map[string]interface{}{
		"call_id":   r.Action.CallID,
		"outcome":   string(result.Outcome),
		"exit_code": exec.ExitCode,
	})
	return result, &exec
}

// ResolveCommand returns the command line that will actually run.
// kubectl tool arguments are prefixed with the cluster CLI and pinned to the
// configured context.
func (g *Gate) ResolveCommand(action domain.ProposedAction) string {
	command, args, ok := g.splitKubectl(action)
	if !ok {
		return command
	}
	if g.clusterContext != "" && !strings.Contains(args, "--context") {
		return fmt.Sprintf("%s --context %s %s", g.clusterCLI, g.clusterContext, args)
	}
	return command
}

// guardedCommand is the command the guardrail rules see: the resolved command
// without the pinned context flag, so rules anchored on "kubectl <verb>" match.
func (g *Gate) guardedCommand(action domain.ProposedAction) string {
	command, _, _ := g.splitKubectl(action)
	return command
}

// splitKubectl returns the CLI-prefixed command and its bare arguments for
// kubectl tool calls. ok is false for other tools.
func (g *Gate) splitKubectl(action domain.ProposedAction) (command, args string, ok bool) {
	command = strings.TrimSpace(action.Command)
	if action.Tool != domain.ToolKubectl || command == "" {
		return command, "", false
	}
	args = command
	if first, rest, _ := strings.Cut(command, " "); first == g.clusterCLI || first == domain.ToolKubectl {
		args = strings.TrimSpace(rest)
	}
	return strings.TrimSpace(g.clusterCLI + " " + args), args, true
}

func (g *Gate) evaluate(command string) domain.RiskAssessment {
	if g.security == nil {
		return domain.RiskAssessment{Level: domain.RiskSafe, Action: domain.ActionAllow}
	}
	risk, err := g.security.Evaluate(command)
	if err != nil {
		g.logger.Warn("guardrail evaluation failed", map[string]interface{}{"error": err.Error()})
		return domain.RiskAssessment{Level: domain.RiskSafe, Action: domain.ActionAllow}
	}
	return risk
}

func (g *Gate) record(ctx context.Context, rec domain.AuditRecord) {
	if g.audit == nil {
		return
	}
	if err := g.audit.Save(ctx, rec); err != nil {
		g.logger.Error("audit save failed", err, map[string]interface{}{"call_id": rec.CallID})
	}
}

func validate(action domain.ProposedAction, command string) string {
	if action.Tool != domain.ToolKubectl && action.Tool != domain.ToolShell {
		return fmt.Sprintf("unknown tool %q", action.Tool)
	}
	if command == "" {
		return "tool call has no command argument"
	}
	return ""
}

func rejected(source domain.DecisionSource, reason string, risk domain.RiskLevel) domain.Decision {
	return domain.Decision{Verdict: domain.VerdictRejected, Source: source, Reason: reason, Risk: risk}
}

type timeout interface {
	Timeout() bool
}

// toolResult maps an executor outcome onto a result for the model.
func toolResult(callID string, exec domain.ExecutionResult, err error) domain.ToolResult {
	result := domain.ToolResult{CallID: callID, Output: exec.CombinedOutput()}
	var te timeout
	switch {
	case err == nil && exec.Succeeded():
		result.Outcome = domain.OutcomeExecuted
	case err == nil && exec.ExitCode == 0:
		// Output was cut at the byte limit.
		result.Outcome = domain.OutcomeExecuted
		result.IsError = true
	case err == nil:
		result.Outcome = domain.OutcomeFailed
		result.IsError = true
		result.Output = appendLine(result.Output, fmt.Sprintf("exit status %d", exec.ExitCode))
	case errors.Is(err, context.Canceled):
		result.Outcome = domain.OutcomeCancelled
		result.IsError = true
		result.Output = appendLine(result.Output, "cancelled by operator")
	case errors.As(err, &te) && te.Timeout():
		result.Outcome = domain.OutcomeTimeout
		result.IsError = true
		result.Output = appendLine(result.Output, err.Error())
	default:
		result.Outcome = domain.OutcomeFailed
		result.IsError = true
		result.Output = appendLine(result.Output, err.Error())
	}
	return result
}

func appendLine(output, line string) string {
	if output == "" {
		return line
	}
	return strings.TrimRight(output, "\n") + "\n" + line
}
