package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doeshing/kshai/internal/app"
	"github.com/doeshing/kshai/internal/domain"
)

// NewDoctorCommand runs the environment probes and prints the report.
func NewDoctorCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose environment setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			if container == nil || container.DoctorService == nil {
				return errors.New(ErrDoctorServiceUnavailable)
			}

			report, err := container.DoctorService.Run(cmd.Context())
			// The partial report is still useful when a probe errored.
			displayDoctorReport(cmd.OutOrStdout(), report)
			fmt.Fprintln(cmd.OutOrStdout(), report.Summary())

			if err != nil {
				return fmt.Errorf("diagnostics completed with errors: %w", err)
			}
			if report.HasErrors() {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}

// displayDoctorReport prints one line per check.
func displayDoctorReport(out io.Writer, report domain.HealthReport) {
	for _, check := range report.Checks {
		fmt.Fprintf(out, "[%s] %s - %s\n",
			strings.ToUpper(string(check.Status)),
			check.Name,
			check.Details)
	}
}
