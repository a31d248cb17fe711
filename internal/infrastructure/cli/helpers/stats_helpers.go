package helpers

import (
	"sort"
	"strings"

	"github.com/doeshing/kshai/internal/domain"
)

// CommandStatistic represents usage statistics for a command
type CommandStatistic struct {
	Command string
	Count   int
}

// CalculateTopCommands returns the top N most frequently used commands
// If limit is 0 or negative, returns all commands
func CalculateTopCommands(commandFrequency map[string]int, limit int) []CommandStatistic {
	stats := make([]CommandStatistic, 0, len(commandFrequency))
	for cmd, count := range commandFrequency {
		stats = append(stats, CommandStatistic{Command: cmd, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count == stats[j].Count {
			return stats[i].Command < stats[j].Command
		}
		return stats[i].Count > stats[j].Count
	})

	if limit > 0 && len(stats) > limit {
		return stats[:limit]
	}
	return stats
}

// CalculateSuccessRate calculates the success rate as a percentage
func CalculateSuccessRate(successfulCount int, executedCount int) float64 {
	if executedCount == 0 {
		return 0.0
	}
	return float64(successfulCount) / float64(executedCount) * 100.0
}

type undoHint struct {
	pattern string
	hint    string
}

// undoHints are matched as substrings of executed commands, in order.
var undoHints = []undoHint{
	{"rollout restart", "Use `kubectl rollout undo <kind>/<name>` to return to the previous revision."},
	{" set image", "Use `kubectl rollout undo <kind>/<name>` to return to the previous image."},
	{" scale ", "Scale back with `kubectl scale --replicas=<previous>`; `kubectl rollout history` shows what ran."},
	{" cordon ", "Use `kubectl uncordon <node>` to make the node schedulable again."},
	{" drain ", "Use `kubectl uncordon <node>` once the node is healthy; evicted pods are recreated by their controllers."},
	{" delete ", "Deleted objects must be re-applied from manifests; check `kubectl get events -A` for fallout."},
	{"helm upgrade", "Use `helm history <release>` and `helm rollback <release> <revision>` to revert."},
	{"helm uninstall", "Reinstall with `helm install` using the values from `helm get values` if saved."},
}

// DeriveUndoHints suggests recovery steps for state-changing commands that
// actually ran. Returns a sorted list of unique hints.
func DeriveUndoHints(records []domain.AuditRecord) []string {
	seen := make(map[string]bool)
	for _, record := range records {
		if record.Outcome != domain.OutcomeExecuted {
			continue
		}
		command := " " + strings.ToLower(record.Command) + " "
		for _, h := range undoHints {
			if strings.Contains(command, h.pattern) {
				seen[h.hint] = true
			}
		}
	}

	hints := make([]string, 0, len(seen))
	for hint := range seen {
		hints = append(hints, hint)
	}
	sort.Strings(hints)
	return hints
}
