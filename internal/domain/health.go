package domain

import "fmt"

// HealthStatus is the outcome of one doctor probe.
type HealthStatus string

const (
	HealthOK    HealthStatus = "ok"
	HealthWarn  HealthStatus = "warn"
	HealthError HealthStatus = "error"
)

// HealthCheck is one probe result. Details is shown verbatim to the operator.
type HealthCheck struct {
	Name    string
	Status  HealthStatus
	Details string
}

// HealthReport lists probe results in display order.
type HealthReport struct {
	Checks []HealthCheck
}

// Count returns how many checks ended with status.
func (r HealthReport) Count(status HealthStatus) int {
	n := 0
	for _, check := range r.Checks {
		if check.Status == status {
			n++
		}
	}
	return n
}

// HasErrors reports whether any check failed outright.
func (r HealthReport) HasErrors() bool {
	return r.Count(HealthError) > 0
}

// Summary renders the per-status totals, e.g. "5 ok, 2 warn, 0 error".
func (r HealthReport) Summary() string {
	return fmt.Sprintf("%d ok, %d warn, %d error", r.Count(HealthOK), r.Count(HealthWarn), r.Count(HealthError))
}
