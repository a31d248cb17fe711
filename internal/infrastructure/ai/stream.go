package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"golang.org/x/time/rate"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/pkg/telemetry"
	"github.com/doeshing/kshai/internal/ports"
)

// errConsumerStopped reports that the session stopped pulling events.
var errConsumerStopped = errors.New("event consumer stopped")

// eventStream adapts a push-style producer to ports.EventStream.
type eventStream struct {
	next   func() (domain.Event, bool)
	stop   func()
	cancel context.CancelFunc
	ledger *ledger
	done   bool
}

type producer func(ctx context.Context, l *ledger, yield func(domain.Event) bool)

func newEventStream(ctx context.Context, produce producer) *eventStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{cancel: cancel, ledger: newLedger()}
	seq := iter.Seq[domain.Event](func(yield func(domain.Event) bool) {
		produce(ctx, s.ledger, yield)
	})
	s.next, s.stop = iter.Pull(seq)
	return s
}

func (s *eventStream) Next() (domain.Event, bool) {
	if s.done {
		return nil, false
	}
	ev, ok := s.next()
	if !ok {
		s.done = true
	}
	return ev, ok
}

func (s *eventStream) Resolve(result domain.ToolResult) error {
	return s.ledger.resolve(result)
}

func (s *eventStream) Close() error {
	s.done = true
	s.cancel()
	s.stop()
	return nil
}

var _ ports.EventStream = (*eventStream)(nil)

// ledger tracks calls handed to the session and the results it resolved.
type ledger struct {
	open    map[string]bool
	results map[string]domain.ToolResult
}

func newLedger() *ledger {
	return &ledger{open: map[string]bool{}, results: map[string]domain.ToolResult{}}
}

func (l *ledger) expect(id string) {
	l.open[id] = true
}

func (l *ledger) resolve(result domain.ToolResult) error {
	if !l.open[result.CallID] {
		return fmt.Errorf("no outstanding tool call %q", result.CallID)
	}
	delete(l.open, result.CallID)
	l.results[result.CallID] = result
	return nil
}

func (l *ledger) take(id string) (domain.ToolResult, bool) {
	result, ok := l.results[id]
	if ok {
		delete(l.results, id)
	}
	return result, ok
}

// exchange is one structured conversation with a backend inside a turn.
type exchange interface {
	// round sends the transcript and streams text through emit. Tool calls
	// are returned once the backend has finished the round.
	round(ctx context.Context, emit func(string) bool) (roundResult, error)
	// appendResults records the assistant round and the tool results so the
	// next round continues the same exchange.
	appendResults(results []domain.ToolResult)
}

type roundResult struct {
	calls []domain.ToolCall
	stop  domain.StopReason
}

// structuredDriver runs rounds until the backend stops asking for tools.
type structuredDriver struct {
	provider  string
	limiter   *rate.Limiter
	timeout   time.Duration
	maxRounds int
	logger    ports.Logger
}

func (d structuredDriver) run(ctx context.Context, ex exchange, l *ledger, yield func(domain.Event) bool) {
	for round := 1; ; round++ {
		if err := d.limiter.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				yield(domain.FatalError{Err: &domain.TransportError{Kind: domain.TransportRateLimit, Provider: d.provider, Err: err}})
			}
			return
		}

		res, err := d.runRound(ctx, ex, round, yield)
		if errors.Is(err, errConsumerStopped) || ctx.Err() != nil {
			return
		}
		if err != nil {
			yield(domain.FatalError{Err: err})
			return
		}
		if len(res.calls) == 0 {
			yield(domain.TurnEnd{Reason: res.stop})
			return
		}

		results := make([]domain.ToolResult, 0, len(res.calls))
		for _, call := range res.calls {
			l.expect(call.ID)
			if !yield(domain.ToolCallRequest{Call: call}) {
				return
			}
			result, ok := l.take(call.ID)
			if !ok {
				if ctx.Err() == nil {
					yield(domain.FatalError{Err: fmt.Errorf("tool call %s was not resolved", call.ID)})
				}
				return
			}
			results = append(results, result)
		}

		if round >= d.maxRounds {
			d.logger.Warn("tool round limit reached", map[string]interface{}{"provider": d.provider, "rounds": round})
			yield(domain.TurnEnd{Reason: domain.StopMaxRounds})
			return
		}
		ex.appendResults(results)
	}
}

func (d structuredDriver) runRound(ctx context.Context, ex exchange, round int, yield func(domain.Event) bool) (roundResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "provider.round",
		telemetry.AttrProvider.String(d.provider),
		telemetry.AttrRound.Int(round),
	)
	defer span.End()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	res, err := ex.round(ctx, func(text string) bool {
		return yield(domain.TextDelta{Text: text})
	})
	if err != nil && !errors.Is(err, errConsumerStopped) {
		span.RecordError(err)
	}
	return res, err
}
