package domain

import "time"

// ExecutionLimits bounds a single command run.
type ExecutionLimits struct {
	Timeout        time.Duration
	MaxOutputBytes int
}

// ExecutionResult captures what a finished command produced.
type ExecutionResult struct {
	Command   string        `json:"command"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
	Truncated bool          `json:"truncated"`
}

// Succeeded is true for a zero exit with complete output.
func (r ExecutionResult) Succeeded() bool {
	return r.ExitCode == 0 && !r.Truncated
}

// CombinedOutput joins stdout and stderr the way the model sees them.
func (r ExecutionResult) CombinedOutput() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}
