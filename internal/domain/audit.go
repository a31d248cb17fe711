package domain

import "time"

// AuditRecord captures one gate decision and, when dispatched, its result.
type AuditRecord struct {
	Timestamp  time.Time       `json:"timestamp"`
	SessionID  string          `json:"session_id"`
	CallID     string          `json:"call_id"`
	Origin     Origin          `json:"origin"`
	Command    string          `json:"command"`
	Verdict    DecisionVerdict `json:"verdict"`
	Source     DecisionSource  `json:"source"`
	RiskLevel  RiskLevel       `json:"risk_level"`
	Outcome    Outcome         `json:"outcome"`
	ExitCode   int             `json:"exit_code"`
	DurationMS int64           `json:"duration_ms"`
}
