// Package session runs the operator conversation: one turn at a time, one
// writer over history, every proposed command routed through the gate.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/doeshing/kshai/internal/application/gate"
	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/pkg/logger"
	"github.com/doeshing/kshai/internal/pkg/telemetry"
	"github.com/doeshing/kshai/internal/ports"
)

// ErrBusy is returned when a turn is submitted while another one runs.
var ErrBusy = errors.New("a turn is already running")

// ErrStopped is returned after the operator ended the session.
var ErrStopped = errors.New("session stopped")

// PromptFunc renders the system prompt for a backend.
type PromptFunc func(mode domain.BackendMode, model domain.ModelDefinition) (string, error)

// HistoryCounter reports the token cost of history.
type HistoryCounter interface {
	CountMessages([]domain.Message) int
}

// Dependencies wires a Manager to its collaborators.
type Dependencies struct {
	Factory      ports.ProviderFactory
	Gate         *gate.Gate
	SystemPrompt PromptFunc
	Tokens       HistoryCounter
	Logger       ports.Logger
}

// Manager owns one conversation.
type Manager struct {
	deps   Dependencies
	models []domain.ModelDefinition
	tools  []domain.ToolSpec
	now    func() time.Time

	mu          sync.Mutex
	id          string
	history     []domain.Message
	nextOrdinal int
	policy      domain.ExecutionPolicy
	state       domain.SessionState
	turnCount   int
	// busy is held from the start of a turn or /run until its cleanup has run.
	busy        bool
	cancel      context.CancelFunc
	model       domain.ModelDefinition
	provider    ports.Provider
}

// New creates a session for cfg using the named model, or the configured default.
func New(deps Dependencies, cfg domain.Config, modelName string) (*Manager, error) {
	if deps.Factory == nil || deps.Gate == nil {
		return nil, errors.New("session.Manager dependencies not satisfied")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}

	model, err := pickModel(cfg, modelName)
	if err != nil {
		return nil, err
	}
	provider, err := deps.Factory.ForModel(model)
	if err != nil {
		return nil, fmt.Errorf("provider init: %w", err)
	}

	m := &Manager{
		deps:        deps,
		models:      cfg.Models,
		tools:       domain.ClusterTools(cfg.GetClusterCLI()),
		now:         time.Now,
		id:          ulid.Make().String(),
		nextOrdinal: 1,
		policy:      cfg.InitialPolicy(),
		state:       domain.StateIdle,
		model:       model,
		provider:    provider,
	}
	deps.Logger.Info("session started", map[string]interface{}{
		"session_id": m.id,
		"model":      model.Name,
		"provider":   provider.Name(),
	})
	return m, nil
}

func pickModel(cfg domain.Config, name string) (domain.ModelDefinition, error) {
	if name == "" {
		return cfg.GetDefaultModel()
	}
	model, ok := cfg.FindModelByName(name)
	if !ok {
		return domain.ModelDefinition{}, fmt.Errorf("model %s not configured", name)
	}
	return model, nil
}

// Submit handles one operator line: a control directive or a conversation
// turn. The returned sequence drives the turn; stopping iteration early
// cancels it.
func (m *Manager) Submit(ctx context.Context, line string) iter.Seq[RenderEvent] {
	return func(yield func(RenderEvent) bool) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		if m.State() == domain.StateStopped {
			yield(RenderError{Err: ErrStopped})
			return
		}
		if isDirective(line) {
			m.directive(ctx, line, yield)
			return
		}
		m.turn(ctx, line, yield)
	}
}

// Cancel aborts the running turn, if any. It is safe to call from another
// goroutine. The session stays busy until the turn has finished unwinding.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
}

// Busy reports whether a turn or /run still owns the history.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// ID returns the session id.
func (m *Manager) ID() string {
	return m.id
}

// State returns the current state.
func (m *Manager) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stopped reports whether the operator ended the session.
func (m *Manager) Stopped() bool {
	return m.State() == domain.StateStopped
}

// Policy returns the current execution policy.
func (m *Manager) Policy() domain.ExecutionPolicy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

// History returns a copy of the conversation.
func (m *Manager) History() []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.history...)
}

// Model returns the active model definition.
func (m *Manager) Model() domain.ModelDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

func (m *Manager) setState(state domain.SessionState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// append assigns the next ordinal and stores msg.
func (m *Manager) append(msg domain.Message) domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.Ordinal = m.nextOrdinal
	m.nextOrdinal++
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	m.history = append(m.history, msg)
	telemetry.SetHistorySize(len(m.history))
	return msg
}
