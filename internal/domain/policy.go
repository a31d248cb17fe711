package domain

// ExecutionPolicy is the per-session permission mode.
type ExecutionPolicy struct {
	AutoExecute bool `json:"auto_execute"`
	PlanOnly    bool `json:"plan_only"`
	Verbose     bool `json:"verbose"`
}

// Origin tells the gate who proposed an action.
type Origin string

const (
	OriginModel    Origin = "model"
	OriginOperator Origin = "operator"
)

// ProposedAction is a command waiting for a gate decision.
type ProposedAction struct {
	CallID  string
	Tool    string
	Command string
	Origin  Origin
}

// DecisionVerdict is the terminal state of a proposed action.
type DecisionVerdict string

const (
	VerdictApproved DecisionVerdict = "approved"
	VerdictRejected DecisionVerdict = "rejected"
)

// DecisionSource records which rule produced a verdict.
type DecisionSource string

const (
	SourcePlanOnly    DecisionSource = "plan_only"
	SourceGuardrail   DecisionSource = "guardrail"
	SourceAutoExecute DecisionSource = "auto_execute"
	SourceOperator    DecisionSource = "operator"
	SourceDirectRun   DecisionSource = "direct_run"
)

// Decision is the gate's ruling on one action.
type Decision struct {
	Verdict DecisionVerdict `json:"verdict"`
	Source  DecisionSource  `json:"source"`
	Reason  string          `json:"reason,omitempty"`
	Risk    RiskLevel       `json:"risk,omitempty"`
}

// Approved reports whether the action may run.
func (d Decision) Approved() bool {
	return d.Verdict == VerdictApproved
}

// SessionState enumerates the session manager's states.
type SessionState string

const (
	StateIdle                  SessionState = "idle"
	StateRunning               SessionState = "running"
	StateAwaitingOperatorInput SessionState = "awaiting_operator_input"
	StateAwaitingConfirmation  SessionState = "awaiting_confirmation"
	StateCancelled             SessionState = "cancelled"
	StateStopped               SessionState = "stopped"
)

// ConfirmationRequest is what the operator sees before approving a command.
type ConfirmationRequest struct {
	Tool    string
	Command string
	Risk    RiskAssessment
}
