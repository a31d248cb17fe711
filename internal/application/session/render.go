package session

import "github.com/doeshing/kshai/internal/domain"

// RenderEvent is the closed set of things a turn shows the operator.
type RenderEvent interface {
	isRender()
}

// RenderText is assistant text, shown as it arrives.
type RenderText struct {
	Text string
}

// RenderToolCall announces a proposed command before the gate rules on it.
type RenderToolCall struct {
	CallID    string
	Tool      string
	Command   string
	Extracted bool
}

// RenderDecision is the gate's ruling, with the command that would run.
type RenderDecision struct {
	CallID   string
	Command  string
	Decision domain.Decision
}

// RenderToolResult carries what the model will see, plus the raw execution when one happened.
type RenderToolResult struct {
	CallID    string
	Result    domain.ToolResult
	Execution *domain.ExecutionResult
}

// RenderNotice is session feedback that is not part of the conversation.
type RenderNotice struct {
	Text string
}

// RenderError reports a failed turn or an invalid directive.
type RenderError struct {
	Err error
}

// RenderTurnEnd closes a turn.
type RenderTurnEnd struct {
	Reason domain.StopReason
}

func (RenderText) isRender()       {}
func (RenderToolCall) isRender()   {}
func (RenderDecision) isRender()   {}
func (RenderToolResult) isRender() {}
func (RenderNotice) isRender()     {}
func (RenderError) isRender()      {}
func (RenderTurnEnd) isRender()    {}
