package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/doeshing/kshai/internal/app"
	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/infrastructure/audit"
	"github.com/doeshing/kshai/internal/infrastructure/cli/helpers"
)

// maxAuditAnalysisRecords bounds how many decisions 'audit stats' reads.
const maxAuditAnalysisRecords = 1000

// NewAuditCommand creates the audit command with all subcommands
func NewAuditCommand(container *app.Container) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the log of gate decisions",
	}

	auditCmd.AddCommand(
		newAuditListCommand(container),
		newAuditClearCommand(container),
		newAuditExportCommand(container),
		newAuditStatsCommand(container),
	)

	return auditCmd
}

// newAuditListCommand creates the 'audit list' subcommand
func newAuditListCommand(container *app.Container) *cobra.Command {
	var (
		limit  int
		search string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent gate decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := auditStore(container)
			if err != nil {
				return err
			}
			return listAuditRecords(cmd.Context(), cmd.OutOrStdout(), store, limit, search)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", domain.DefaultAuditListLimit, "Max entries to show")
	cmd.Flags().StringVar(&search, "search", "", "Only show commands or session ids containing this text")
	return cmd
}

// newAuditClearCommand creates the 'audit clear' subcommand
func newAuditClearCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := auditStore(container)
			if err != nil {
				return err
			}
			if err := store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear audit log: %w", err)
			}
			return nil
		},
	}
}

// newAuditExportCommand creates the 'audit export' subcommand
func newAuditExportCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Export decisions to a JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := auditStore(container)
			if err != nil {
				return err
			}
			if err := store.ExportJSON(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to export audit log to %s: %w", args[0], err)
			}
			return nil
		},
	}
}

// newAuditStatsCommand creates the 'audit stats' subcommand
func newAuditStatsCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show outcome counts, top commands and undo hints",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := auditStore(container)
			if err != nil {
				return err
			}
			return showAuditStats(cmd.Context(), cmd.OutOrStdout(), store)
		},
	}
}

func auditStore(container *app.Container) (*audit.SQLiteStore, error) {
	if container == nil || container.AuditStore == nil {
		return nil, errors.New(ErrAuditStoreUnavailable)
	}
	return container.AuditStore, nil
}

// listAuditRecords prints decisions newest first.
func listAuditRecords(ctx context.Context, out io.Writer, store *audit.SQLiteStore, limit int, search string) error {
	records, err := store.Records(ctx, limit, search)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, MsgNoAuditRecords)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tORIGIN\tVERDICT\tSOURCE\tRISK\tOUTCOME\tCOMMAND")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Timestamp.Local().Format(domain.TimestampFormat),
			rec.Origin,
			rec.Verdict,
			rec.Source,
			rec.RiskLevel,
			rec.Outcome,
			rec.Command)
	}
	return tw.Flush()
}

// auditStatistics holds analyzed decision statistics
type auditStatistics struct {
	executed    int
	successful  int
	commandFreq map[string]int
	verdicts    map[domain.DecisionVerdict]int
	sources     map[domain.DecisionSource]int
}

func analyzeAuditRecords(records []domain.AuditRecord) auditStatistics {
	stats := auditStatistics{
		commandFreq: make(map[string]int),
		verdicts:    make(map[domain.DecisionVerdict]int),
		sources:     make(map[domain.DecisionSource]int),
	}
	for _, rec := range records {
		stats.verdicts[rec.Verdict]++
		stats.sources[rec.Source]++
		stats.commandFreq[rec.Command]++
		if rec.Verdict != domain.VerdictApproved {
			continue
		}
		stats.executed++
		if rec.Outcome == domain.OutcomeExecuted && rec.ExitCode == 0 {
			stats.successful++
		}
	}
	return stats
}

func showAuditStats(ctx context.Context, out io.Writer, store *audit.SQLiteStore) error {
	records, err := store.Records(ctx, maxAuditAnalysisRecords, "")
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, MsgNoAuditRecords)
		return nil
	}

	stats := analyzeAuditRecords(records)
	fmt.Fprintf(out, "Decisions analyzed: %d\nApproved: %d\nRejected: %d\nSuccess rate: %.1f%%\n",
		len(records),
		stats.verdicts[domain.VerdictApproved],
		stats.verdicts[domain.VerdictRejected],
		helpers.CalculateSuccessRate(stats.successful, stats.executed))

	fmt.Fprintln(out, "Decided by:")
	for _, source := range []domain.DecisionSource{
		domain.SourceOperator, domain.SourceAutoExecute, domain.SourceDirectRun,
		domain.SourceGuardrail, domain.SourcePlanOnly,
	} {
		if n := stats.sources[source]; n > 0 {
			fmt.Fprintf(out, "  %s: %d\n", source, n)
		}
	}

	fmt.Fprintln(out, "Top commands:")
	for _, stat := range helpers.CalculateTopCommands(stats.commandFreq, 5) {
		fmt.Fprintf(out, "  %s (%d)\n", stat.Command, stat.Count)
	}

	if hints := helpers.DeriveUndoHints(records); len(hints) > 0 {
		fmt.Fprintln(out, "Undo hints:")
		for _, hint := range hints {
			fmt.Fprintf(out, "  - %s\n", hint)
		}
	}
	return nil
}
