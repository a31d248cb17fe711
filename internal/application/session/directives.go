package session

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/doeshing/kshai/internal/domain"
)

// RunIDPrefix marks ids of commands the operator typed with /run.
const RunIDPrefix = "run_"

const helpText = `Directives:
  /auto            toggle auto-execute (no confirmation)
  /plan            toggle plan-only mode (nothing runs)
  /verbose         toggle full command output
  /run <cmd>, !cmd run a command through the gate
  /model [name]    list models or switch the active model
  /history         show the conversation
  /status          show session state
  /clear           forget the conversation
  /help            show this help
  /exit, /quit     end the session`

func isDirective(line string) bool {
	return strings.HasPrefix(line, "/") || strings.HasPrefix(line, "!")
}

func (m *Manager) directive(ctx context.Context, line string, yield func(RenderEvent) bool) {
	if strings.HasPrefix(line, "!") {
		m.run(ctx, strings.TrimSpace(line[1:]), yield)
		return
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/auto":
		m.mu.Lock()
		m.policy.AutoExecute = !m.policy.AutoExecute
		if m.policy.AutoExecute {
			m.policy.PlanOnly = false
		}
		on := m.policy.AutoExecute
		m.mu.Unlock()
		yield(RenderNotice{Text: "auto-execute " + onOff(on)})
	case "/plan":
		m.mu.Lock()
		m.policy.PlanOnly = !m.policy.PlanOnly
		if m.policy.PlanOnly {
			m.policy.AutoExecute = false
		}
		on := m.policy.PlanOnly
		m.mu.Unlock()
		yield(RenderNotice{Text: "plan-only " + onOff(on)})
	case "/verbose":
		m.mu.Lock()
		m.policy.Verbose = !m.policy.Verbose
		on := m.policy.Verbose
		m.mu.Unlock()
		yield(RenderNotice{Text: "verbose " + onOff(on)})
	case "/clear":
		m.mu.Lock()
		busy := m.busy
		if !busy {
			m.history = nil
		}
		m.mu.Unlock()
		if busy {
			yield(RenderError{Err: ErrBusy})
			return
		}
		yield(RenderNotice{Text: "history cleared"})
	case "/history":
		yield(RenderNotice{Text: m.describeHistory()})
	case "/status":
		yield(RenderNotice{Text: m.describeStatus()})
	case "/model":
		m.switchModel(arg, yield)
	case "/run":
		m.run(ctx, arg, yield)
	case "/help":
		yield(RenderNotice{Text: helpText})
	case "/exit", "/quit":
		m.setState(domain.StateStopped)
		yield(RenderNotice{Text: "bye"})
	default:
		yield(RenderError{Err: fmt.Errorf("unknown directive %s (try /help)", name)})
	}
}

// run sends an operator-typed command through the gate. The outcome is
// recorded so the model sees it on the next turn.
func (m *Manager) run(ctx context.Context, command string, yield func(RenderEvent) bool) {
	if command == "" {
		yield(RenderError{Err: fmt.Errorf("usage: /run <command>")})
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		yield(RenderError{Err: ErrBusy})
		return
	}
	m.busy = true
	m.cancel = cancel
	m.state = domain.StateRunning
	policy := m.policy
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.busy = false
		m.cancel = nil
		if m.state != domain.StateStopped {
			m.state = domain.StateAwaitingOperatorInput
		}
		m.mu.Unlock()
	}()

	action := domain.ProposedAction{
		CallID:  RunIDPrefix + ulid.Make().String(),
		Tool:    domain.ToolShell,
		Command: command,
		Origin:  domain.OriginOperator,
	}
	review, err := m.deps.Gate.Review(runCtx, action, policy)
	if err != nil {
		yield(RenderTurnEnd{Reason: domain.StopCancelled})
		return
	}
	if !yield(RenderDecision{CallID: action.CallID, Command: review.Command, Decision: review.Decision}) {
		return
	}
	result, exec := m.deps.Gate.Dispatch(runCtx, m.id, review)
	decision := review.Decision
	m.append(domain.Message{
		Role: domain.RoleTool,
		Kind: domain.KindExtracted,
		Extracted: &domain.ExtractedCommand{
			RawText:  review.Command,
			Decision: &decision,
			Result:   &result,
		},
	})
	yield(RenderToolResult{CallID: action.CallID, Result: result, Execution: exec})
}

func (m *Manager) switchModel(name string, yield func(RenderEvent) bool) {
	current := m.Model()
	if name == "" {
		var b strings.Builder
		for _, model := range m.models {
			marker := "  "
			if model.Name == current.Name {
				marker = "* "
			}
			fmt.Fprintf(&b, "%s%s (%s)\n", marker, model.Name, model.ModelID)
		}
		yield(RenderNotice{Text: strings.TrimRight(b.String(), "\n")})
		return
	}

	var next domain.ModelDefinition
	found := false
	for _, model := range m.models {
		if model.Name == name {
			next, found = model, true
			break
		}
	}
	if !found {
		yield(RenderError{Err: fmt.Errorf("model %s not configured", name)})
		return
	}
	provider, err := m.deps.Factory.ForModel(next)
	if err != nil {
		yield(RenderError{Err: fmt.Errorf("provider init: %w", err)})
		return
	}
	m.mu.Lock()
	m.model = next
	m.provider = provider
	m.mu.Unlock()
	yield(RenderNotice{Text: fmt.Sprintf("switched to %s via %s (%s backend)", next.Name, provider.Name(), provider.Config().Kind)})
}

func (m *Manager) describeHistory() string {
	history := m.History()
	if len(history) == 0 {
		return "history is empty"
	}
	var b strings.Builder
	for _, msg := range history {
		fmt.Fprintf(&b, "#%d %s: %s\n", msg.Ordinal, msg.Role, summarize(msg))
	}
	if m.deps.Tokens != nil {
		fmt.Fprintf(&b, "%d messages, ~%d tokens", len(history), m.deps.Tokens.CountMessages(history))
	} else {
		fmt.Fprintf(&b, "%d messages", len(history))
	}
	return b.String()
}

func (m *Manager) describeStatus() string {
	m.mu.Lock()
	model := m.model
	provider := m.provider
	policy := m.policy
	turns := m.turnCount
	size := len(m.history)
	m.mu.Unlock()

	lines := []string{
		"session:  " + m.id,
		fmt.Sprintf("model:    %s via %s (%s backend)", model.Name, provider.Name(), provider.Config().Kind),
		fmt.Sprintf("policy:   auto-execute %s, plan-only %s, verbose %s", onOff(policy.AutoExecute), onOff(policy.PlanOnly), onOff(policy.Verbose)),
		fmt.Sprintf("turns:    %d", turns),
		fmt.Sprintf("history:  %d messages", size),
	}
	if m.deps.Tokens != nil {
		lines = append(lines, fmt.Sprintf("tokens:   ~%d", m.deps.Tokens.CountMessages(m.History())))
	}
	return strings.Join(lines, "\n")
}

// summaryWidth is the rune width of one /history line.
const summaryWidth = 80

func summarize(msg domain.Message) string {
	var text string
	switch {
	case msg.ToolCall != nil:
		text = fmt.Sprintf("[%s] %s", msg.ToolCall.Name, msg.ToolCall.Command())
	case msg.ToolResult != nil:
		text = fmt.Sprintf("[%s] %s", msg.ToolResult.Outcome, msg.ToolResult.Output)
	case msg.Extracted != nil:
		outcome := "proposed"
		if msg.Extracted.Result != nil {
			outcome = string(msg.Extracted.Result.Outcome)
		}
		text = fmt.Sprintf("[%s] %s", outcome, msg.Extracted.RawText)
	default:
		text = msg.Content
	}
	text = strings.ReplaceAll(text, "\n", " ")
	if utf8.RuneCountInString(text) > summaryWidth {
		runes := []rune(text)
		text = string(runes[:summaryWidth-3]) + "..."
	}
	return text
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
