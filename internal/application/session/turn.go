package session

import (
	"context"
	"errors"
	"strings"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/pkg/telemetry"
	"github.com/doeshing/kshai/internal/ports"
)

// turnRun is the state of one turn.
type turnRun struct {
	m       *Manager
	ctx     context.Context
	stream  ports.EventStream
	yield   func(RenderEvent) bool
	pending strings.Builder
	// lastText is the ordinal of the newest assistant text of this turn.
	lastText int
	// closed is set once the consumer stops reading render events.
	closed bool
}

func (t *turnRun) emit(ev RenderEvent) bool {
	if t.closed {
		return false
	}
	if !t.yield(ev) {
		t.closed = true
		return false
	}
	return true
}

// flush stores buffered assistant text as one message.
func (t *turnRun) flush() {
	if t.pending.Len() == 0 {
		return
	}
	msg := t.m.append(domain.Message{Role: domain.RoleAssistant, Kind: domain.KindText, Content: t.pending.String()})
	t.lastText = msg.Ordinal
	t.pending.Reset()
}

func (m *Manager) turn(ctx context.Context, line string, yield func(RenderEvent) bool) {
	turnCtx, cancel := context.WithCancel(ctx)
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
	m.turnCount++
	turnNo := m.turnCount
	provider := m.provider
	model := m.model
	m.mu.Unlock()

	turnCtx, span := telemetry.StartSpan(turnCtx, "session.turn",
		telemetry.AttrSessionID.String(m.id),
		telemetry.AttrTurn.Int(turnNo),
		telemetry.AttrProvider.String(provider.Name()),
		telemetry.AttrModel.String(model.Name),
	)
	defer span.End()

	outcome := "completed"
	defer func() {
		m.mu.Lock()
		m.busy = false
		m.cancel = nil
		if m.state != domain.StateStopped {
			if outcome == "cancelled" {
				m.state = domain.StateCancelled
			} else {
				m.state = domain.StateAwaitingOperatorInput
			}
		}
		m.mu.Unlock()
		telemetry.RecordTurn(outcome)
		span.SetAttributes(telemetry.AttrOutcome.String(outcome))
	}()

	m.append(domain.Message{Role: domain.RoleUser, Kind: domain.KindText, Content: line})

	req := ports.ProviderRequest{History: m.History()}
	if provider.Config().Kind == domain.BackendStructured {
		req.Tools = m.tools
	}
	if m.deps.SystemPrompt != nil {
		system, err := m.deps.SystemPrompt(provider.Config().Kind, model)
		if err != nil {
			outcome = "failed"
			yield(RenderError{Err: err})
			return
		}
		req.System = system
	}

	stream := provider.Stream(turnCtx, req)
	defer stream.Close()

	t := &turnRun{m: m, ctx: turnCtx, stream: stream, yield: yield}
	for {
		if t.closed {
			cancel()
		}
		ev, ok := stream.Next()
		if !ok {
			break
		}
		switch e := ev.(type) {
		case domain.TextDelta:
			t.pending.WriteString(e.Text)
			t.emit(RenderText{Text: e.Text})
		case domain.ToolCallRequest:
			t.flush()
			if turnCtx.Err() != nil || t.closed {
				// The call never reached history; nothing to pair.
				continue
			}
			if !t.handleCall(e) {
				cancel()
			}
		case domain.TurnEnd:
			t.flush()
			t.emit(RenderTurnEnd{Reason: e.Reason})
			return
		case domain.FatalError:
			t.flush()
			outcome = "failed"
			var te *domain.TransportError
			if errors.As(e.Err, &te) {
				telemetry.RecordProviderError(te.Provider, string(te.Kind))
			}
			span.RecordError(e.Err)
			m.deps.Logger.Error("turn failed", e.Err, map[string]interface{}{"session_id": m.id, "turn": turnNo})
			t.emit(RenderError{Err: e.Err})
			return
		}
	}

	// The stream ended without TurnEnd: the turn was cancelled.
	t.flush()
	outcome = "cancelled"
	t.emit(RenderTurnEnd{Reason: domain.StopCancelled})
}

// handleCall routes one proposed command through the gate and records the
// result. It returns false when the turn must stop.
func (t *turnRun) handleCall(req domain.ToolCallRequest) bool {
	m := t.m
	call := req.Call
	extracted := req.Extracted != nil

	if !extracted {
		m.append(domain.Message{Role: domain.RoleAssistant, Kind: domain.KindToolCall, ToolCall: &call})
	}

	action := domain.ProposedAction{CallID: call.ID, Tool: call.Name, Command: call.Command(), Origin: domain.OriginModel}
	var (
		decision *domain.Decision
		result   domain.ToolResult
		proceed  = true
	)

	if t.emit(RenderToolCall{CallID: call.ID, Tool: call.Name, Command: action.Command, Extracted: extracted}) {
		m.setState(domain.StateAwaitingConfirmation)
		review, err := m.deps.Gate.Review(t.ctx, action, m.Policy())
		m.setState(domain.StateRunning)
		switch {
		case err != nil || t.ctx.Err() != nil:
			result = cancelledResult(call.ID)
			proceed = false
		default:
			decision = &review.Decision
			if !t.emit(RenderDecision{CallID: call.ID, Command: review.Command, Decision: review.Decision}) || t.ctx.Err() != nil {
				result = cancelledResult(call.ID)
				proceed = false
				break
			}
			var exec *domain.ExecutionResult
			result, exec = m.deps.Gate.Dispatch(t.ctx, m.id, review)
			if result.Outcome == domain.OutcomeCancelled {
				proceed = false
			}
			t.emit(RenderToolResult{CallID: call.ID, Result: result, Execution: exec})
		}
	} else {
		result = cancelledResult(call.ID)
		proceed = false
	}

	if extracted {
		entry := *req.Extracted
		entry.SourceOrdinal = t.lastText
		entry.Decision = decision
		entry.Result = &result
		m.append(domain.Message{Role: domain.RoleTool, Kind: domain.KindExtracted, Extracted: &entry})
	} else {
		m.append(domain.Message{Role: domain.RoleTool, Kind: domain.KindToolResult, ToolResult: &result})
	}

	if !proceed || t.closed {
		return false
	}
	if err := t.stream.Resolve(result); err != nil {
		m.deps.Logger.Warn("resolve tool result", map[string]interface{}{"call_id": call.ID, "error": err.Error()})
	}
	return true
}

func cancelledResult(callID string) domain.ToolResult {
	return domain.ToolResult{CallID: callID, Output: "cancelled by operator", IsError: true, Outcome: domain.OutcomeCancelled}
}
