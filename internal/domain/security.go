package domain

// RiskLevel enumerates guardrail outcomes.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// GuardrailAction describes how the gate should react to a risk level.
type GuardrailAction string

const (
	ActionAllow           GuardrailAction = "allow"
	ActionSimpleConfirm   GuardrailAction = "simple_confirm"
	ActionConfirm         GuardrailAction = "confirm"
	ActionExplicitConfirm GuardrailAction = "explicit_confirm"
	ActionBlock           GuardrailAction = "block"
)

// RiskAssessment aggregates security evaluation data.
type RiskAssessment struct {
	Level               RiskLevel
	Action              GuardrailAction
	Reasons             []string
	ProtectedNamespaces []string
	MatchedRules        []string
}

// Blocks reports whether the command must never run.
func (r RiskAssessment) Blocks() bool {
	return r.Action == ActionBlock
}

// Flagged reports whether any rule matched.
func (r RiskAssessment) Flagged() bool {
	return len(r.Reasons) > 0
}
