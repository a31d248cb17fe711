package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doeshing/kshai/internal/app"
	"github.com/doeshing/kshai/internal/application/session"
)

// errTurnFailed makes one-shot commands exit non-zero after an error or a failed command.
var errTurnFailed = errors.New("turn failed")

// operator bundles one terminal channel: shared input, prompter and renderer.
type operator struct {
	lines       *LineReader
	out         io.Writer
	interactive bool
	prompter    *Prompter
	renderer    *Renderer
}

func newOperator(in io.Reader, out io.Writer, interactive bool) *operator {
	lines := NewLineReader(in)
	return &operator{
		lines:       lines,
		out:         out,
		interactive: interactive,
		prompter:    NewPrompter(lines, out, interactive),
		renderer:    NewRenderer(out, interactive),
	}
}

func (o *operator) session(container *app.Container, model string) (*session.Manager, error) {
	mgr, err := container.NewSession(o.prompter, model)
	if err != nil {
		return nil, err
	}
	o.renderer.Verbose = func() bool { return mgr.Policy().Verbose }
	return mgr, nil
}

// submit runs one line to completion and reports whether anything failed.
// SIGINT cancels the running turn instead of killing the process.
func (o *operator) submit(ctx context.Context, mgr *session.Manager, line string) (failed bool) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	done := make(chan struct{})
	defer func() {
		signal.Stop(sigs)
		close(done)
	}()
	go func() {
		for {
			select {
			case <-sigs:
				mgr.Cancel()
			case <-done:
				return
			}
		}
	}()

	o.renderer.Waiting()
	defer o.renderer.Idle()
	for ev := range mgr.Submit(ctx, line) {
		switch ev := ev.(type) {
		case session.RenderError:
			failed = true
		case session.RenderToolResult:
			failed = failed || ev.Result.IsError
		}
		o.renderer.Render(ev)
	}
	return failed
}

func newChatCommand(container *app.Container) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive cluster operations session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), container, model, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model name (default from config)")
	return cmd
}

func runChat(ctx context.Context, container *app.Container, model string, in io.Reader, out io.Writer) error {
	op := newOperator(in, out, StdinIsTerminal())
	mgr, err := op.session(container, model)
	if err != nil {
		return err
	}

	s := op.renderer.styles
	cluster := container.Cluster
	fmt.Fprintln(out, s.dim.Render(fmt.Sprintf("kshai session %s | model %s | context %s | /help for directives",
		mgr.ID(), mgr.Model().Name, valueOr(cluster.Context, "(none)"))))

	for !mgr.Stopped() {
		fmt.Fprint(out, s.prompt.Render("kshai> "))
		line, err := op.lines.ReadLine(ctx)
		if err != nil {
			fmt.Fprintln(out)
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		op.submit(ctx, mgr, line)
	}
	return nil
}

type askOptions struct {
	model string
	auto  bool
	plan  bool
}

func newAskCommand(container *app.Container) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), container, opts, strings.Join(args, " "), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model name (default from config)")
	cmd.Flags().BoolVarP(&opts.auto, "auto", "a", false, "Run proposed commands without confirmation (guardrail blocks still apply)")
	cmd.Flags().BoolVarP(&opts.plan, "plan", "p", false, "Only show proposed commands, run nothing")
	return cmd
}

func runAsk(ctx context.Context, container *app.Container, opts askOptions, question string, in io.Reader, out io.Writer) error {
	if opts.auto && opts.plan {
		return fmt.Errorf("--auto and --plan are mutually exclusive")
	}
	op := newOperator(in, out, StdinIsTerminal())
	mgr, err := op.session(container, opts.model)
	if err != nil {
		return err
	}
	if opts.auto && !mgr.Policy().AutoExecute {
		op.submit(ctx, mgr, "/auto")
	}
	if opts.plan && !mgr.Policy().PlanOnly {
		op.submit(ctx, mgr, "/plan")
	}
	if op.submit(ctx, mgr, question) {
		return errTurnFailed
	}
	return nil
}

func newRunCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "run -- <command>",
		Short: "Run a command through the guardrail and audit log",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op := newOperator(cmd.InOrStdin(), cmd.OutOrStdout(), StdinIsTerminal())
			mgr, err := op.session(container, "")
			if err != nil {
				return err
			}
			if op.submit(cmd.Context(), mgr, "/run "+strings.Join(args, " ")) {
				return errTurnFailed
			}
			return nil
		},
	}
}

func valueOr(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
