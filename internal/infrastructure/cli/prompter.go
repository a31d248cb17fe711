package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/ports"
)

// Prompter implements ConfirmationPrompter over the shared operator line reader.
type Prompter struct {
	lines       *LineReader
	out         io.Writer
	styles      styles
	interactive bool
}

// NewPrompter builds a prompter. It is enabled only when interactive is true.
func NewPrompter(lines *LineReader, out io.Writer, interactive bool) *Prompter {
	return &Prompter{lines: lines, out: out, styles: newStyles(), interactive: interactive}
}

// StdinIsTerminal reports whether the operator can answer prompts.
func StdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Enabled reports whether confirmations can be asked.
func (p *Prompter) Enabled() bool {
	return p.interactive && p.lines != nil
}

// Confirm asks the operator for approval, scaled to the guardrail action.
func (p *Prompter) Confirm(ctx context.Context, req domain.ConfirmationRequest) (bool, error) {
	if req.Risk.Flagged() {
		level := strings.ToUpper(string(req.Risk.Level))
		fmt.Fprintln(p.out, p.styles.warn.Render(fmt.Sprintf("%s risk (%s)", level, req.Risk.Action)))
		for _, reason := range req.Risk.Reasons {
			fmt.Fprintf(p.out, " - %s\n", reason)
		}
	}
	fmt.Fprintf(p.out, "%s %s\n", p.styles.dim.Render(req.Tool+":"), p.styles.code.Render(req.Command))

	if req.Risk.Action == domain.ActionExplicitConfirm {
		return p.ask(ctx, "Type 'yes' to run (anything else cancels): ", func(answer string) bool {
			return answer == "yes"
		})
	}
	return p.ask(ctx, "Run it? [y/N]: ", func(answer string) bool {
		answer = strings.ToLower(answer)
		return answer == "y" || answer == "yes"
	})
}

func (p *Prompter) ask(ctx context.Context, prompt string, accept func(string) bool) (bool, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.lines.ReadLine(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			fmt.Fprintln(p.out)
			return false, ctxErr
		}
		return false, err
	}
	return accept(strings.TrimSpace(line)), nil
}

var _ ports.ConfirmationPrompter = (*Prompter)(nil)
