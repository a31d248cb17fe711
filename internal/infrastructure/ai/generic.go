package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/pkg/telemetry"
	"github.com/doeshing/kshai/internal/ports"
)

// ExtractedIDPrefix marks synthetic ids of calls found in generic backend text.
const ExtractedIDPrefix = "extract_"

// completion produces one assistant message, streaming fragments through emit.
type completion func(ctx context.Context, emit func(string) bool) error

// genericDriver runs a single text completion and turns the fenced shell
// blocks of the finished message into synthetic tool calls.
type genericDriver struct {
	provider  string
	limiter   *rate.Limiter
	timeout   time.Duration
	extractor ports.CommandExtractor
	logger    ports.Logger
}

func (d genericDriver) run(ctx context.Context, complete completion, l *ledger, yield func(domain.Event) bool) {
	if err := d.limiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			yield(domain.FatalError{Err: &domain.TransportError{Kind: domain.TransportRateLimit, Provider: d.provider, Err: err}})
		}
		return
	}

	var message strings.Builder
	err := d.complete(ctx, complete, func(text string) bool {
		message.WriteString(text)
		return yield(domain.TextDelta{Text: text})
	})
	if errors.Is(err, errConsumerStopped) || ctx.Err() != nil {
		return
	}
	if err != nil {
		yield(domain.FatalError{Err: err})
		return
	}

	var commands []string
	if d.extractor != nil {
		commands = d.extractor.Commands(message.String())
	}
	d.logger.Debug("extracted commands", map[string]interface{}{"provider": d.provider, "count": len(commands)})
	for _, command := range commands {
		call := domain.ToolCall{
			ID:        ExtractedIDPrefix + uuid.NewString(),
			Name:      domain.ToolShell,
			Arguments: map[string]string{domain.ToolArgCommand: command},
		}
		l.expect(call.ID)
		if !yield(domain.ToolCallRequest{Call: call, Extracted: &domain.ExtractedCommand{RawText: command}}) {
			return
		}
		// Results reach the backend on the next turn through history.
		l.take(call.ID)
		if ctx.Err() != nil {
			return
		}
	}
	yield(domain.TurnEnd{Reason: domain.StopEndTurn})
}

func (d genericDriver) complete(ctx context.Context, complete completion, emit func(string) bool) error {
	ctx, span := telemetry.StartSpan(ctx, "provider.complete", telemetry.AttrProvider.String(d.provider))
	defer span.End()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	err := complete(ctx, emit)
	if err != nil && !errors.Is(err, errConsumerStopped) {
		span.RecordError(err)
	}
	return err
}
