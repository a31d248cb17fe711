package domain

import (
	"errors"
	"fmt"
)

// Event is the closed set of normalized provider events.
type Event interface {
	isEvent()
}

// TextDelta carries a fragment of assistant text.
type TextDelta struct {
	Text string
}

// ToolCallRequest asks the session to run something. Extracted is set when
// the call was synthesized from generic backend text.
type ToolCallRequest struct {
	Call      ToolCall
	Extracted *ExtractedCommand
}

// TurnEnd closes the turn.
type TurnEnd struct {
	Reason StopReason
}

// FatalError ends the turn abnormally.
type FatalError struct {
	Err error
}

func (TextDelta) isEvent()       {}
func (ToolCallRequest) isEvent() {}
func (TurnEnd) isEvent()         {}
func (FatalError) isEvent()      {}

// StopReason explains why a turn ended.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
	StopMaxRounds StopReason = "max_rounds"
	StopCancelled StopReason = "cancelled"
)

// TransportErrorKind classifies backend failures.
type TransportErrorKind string

const (
	TransportAuth      TransportErrorKind = "auth"
	TransportRateLimit TransportErrorKind = "rate_limit"
	TransportNetwork   TransportErrorKind = "network"
	TransportServer    TransportErrorKind = "server"
	TransportProtocol  TransportErrorKind = "protocol"
)

// TransportError wraps a backend failure with its class.
type TransportError struct {
	Kind     TransportErrorKind
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportKind reports whether err is a TransportError of the given kind.
func IsTransportKind(err error, kind TransportErrorKind) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == kind
}

// ClassifyStatus maps an HTTP status code to a transport error kind.
func ClassifyStatus(status int) TransportErrorKind {
	switch {
	case status == 401 || status == 403:
		return TransportAuth
	case status == 429:
		return TransportRateLimit
	case status >= 500:
		return TransportServer
	default:
		return TransportProtocol
	}
}
