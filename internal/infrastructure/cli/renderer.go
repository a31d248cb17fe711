package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/doeshing/kshai/internal/application/session"
	"github.com/doeshing/kshai/internal/domain"
)

// defaultPreviewLines bounds command output shown when verbose is off.
const defaultPreviewLines = 12

// Renderer prints session events to the terminal.
type Renderer struct {
	out          io.Writer
	text         *streamWriter
	styles       styles
	spinner      *Spinner
	previewLines int
	// structured calls continue the turn with another model round
	awaitModel bool
	// Verbose reports whether full command output should be shown.
	Verbose func() bool
}

// NewRenderer builds a renderer. The spinner only runs when animate is true.
func NewRenderer(out io.Writer, animate bool) *Renderer {
	r := &Renderer{
		out:          out,
		text:         newStreamWriter(out),
		styles:       newStyles(),
		previewLines: defaultPreviewLines,
		Verbose:      func() bool { return false },
	}
	if animate {
		r.spinner = NewSpinner(out)
	}
	return r
}

// Waiting shows activity until the next event arrives.
func (r *Renderer) Waiting() {
	if r.spinner != nil {
		r.spinner.Start()
	}
}

// Idle stops the activity indicator.
func (r *Renderer) Idle() {
	if r.spinner != nil {
		r.spinner.Stop()
	}
}

// Render prints one event.
func (r *Renderer) Render(ev session.RenderEvent) {
	r.Idle()
	switch ev := ev.(type) {
	case session.RenderText:
		r.text.WriteChunk(ev.Text)
	case session.RenderToolCall:
		r.text.EndLine()
		r.awaitModel = !ev.Extracted
		label := ev.Tool
		if ev.Extracted {
			label = "suggested"
		}
		fmt.Fprintf(r.out, "%s %s\n", r.styles.info.Render("> "+label+":"), r.styles.code.Render(ev.Command))
	case session.RenderDecision:
		r.renderDecision(ev)
	case session.RenderToolResult:
		r.renderResult(ev)
		if r.awaitModel {
			r.Waiting()
		}
	case session.RenderNotice:
		r.text.EndLine()
		fmt.Fprintln(r.out, r.styles.dim.Render(ev.Text))
	case session.RenderError:
		r.text.EndLine()
		fmt.Fprintln(r.out, r.styles.err.Render("error: "+ev.Err.Error()))
	case session.RenderTurnEnd:
		r.text.EndLine()
		switch ev.Reason {
		case domain.StopMaxTokens:
			fmt.Fprintln(r.out, r.styles.warn.Render("(reply truncated by the model's token limit)"))
		case domain.StopMaxRounds:
			fmt.Fprintln(r.out, r.styles.warn.Render("(stopped after the tool round limit)"))
		case domain.StopCancelled:
			fmt.Fprintln(r.out, r.styles.warn.Render("(cancelled)"))
		}
	}
}

func (r *Renderer) renderDecision(ev session.RenderDecision) {
	d := ev.Decision
	if d.Approved() {
		fmt.Fprintln(r.out, r.styles.dim.Render(fmt.Sprintf("  approved (%s)", d.Source)))
		return
	}
	line := fmt.Sprintf("  rejected (%s)", d.Source)
	if d.Reason != "" {
		line += ": " + d.Reason
	}
	fmt.Fprintln(r.out, r.styles.warn.Render(line))
}

func (r *Renderer) renderResult(ev session.RenderToolResult) {
	res := ev.Result
	if res.Outcome == domain.OutcomeRejected {
		return
	}
	status := string(res.Outcome)
	if ev.Execution != nil {
		status = fmt.Sprintf("%s, exit %d in %s", res.Outcome, ev.Execution.ExitCode, ev.Execution.Duration.Round(time.Millisecond))
	}
	style := r.styles.success
	if res.IsError || res.Outcome != domain.OutcomeExecuted {
		style = r.styles.err
	}
	fmt.Fprintln(r.out, style.Render("  "+status))

	output := res.Output
	if ev.Execution != nil {
		output = ev.Execution.CombinedOutput()
	}
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return
	}
	lines := strings.Split(output, "\n")
	if !r.Verbose() && len(lines) > r.previewLines {
		hidden := len(lines) - r.previewLines
		lines = append(lines[:r.previewLines], r.styles.dim.Render(fmt.Sprintf("... %d more lines (/verbose to show all)", hidden)))
	}
	for _, line := range lines {
		fmt.Fprintln(r.out, "  "+line)
	}
}
