// Package ai adapts model backends to the normalized event stream.
//
// Structured backends (Anthropic Messages, OpenAI chat completions) stream
// text and native tool calls; the stream keeps the exchange alive inside one
// turn until the backend stops asking for tools. Generic backends (the
// configuration-driven HTTP provider and the offline heuristic) produce text
// only; fenced shell blocks in their reply become synthetic tool calls.
package ai

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/pkg/logger"
	"github.com/doeshing/kshai/internal/ports"
)

const (
	defaultRateLimit = 1.0
	defaultBurst     = 5
)

// Factory creates provider instances based on model definitions.
// It maintains a single HTTP client shared across all providers.
type Factory struct {
	httpClient *http.Client
	extractor  ports.CommandExtractor
	logger     ports.Logger
	timeout    time.Duration
	maxRounds  int
	clusterCLI string
}

// Option customizes a Factory.
type Option func(*Factory)

// WithHTTPClient replaces the shared HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Factory) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithLogger routes provider diagnostics.
func WithLogger(l ports.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithRequestTimeout bounds each backend round.
func WithRequestTimeout(d time.Duration) Option {
	return func(f *Factory) {
		f.timeout = d
	}
}

// WithMaxToolRounds bounds the rounds of one structured turn.
func WithMaxToolRounds(n int) Option {
	return func(f *Factory) {
		if n > 0 {
			f.maxRounds = n
		}
	}
}

// WithClusterCLI sets the CLI used by offline suggestions.
func WithClusterCLI(cli string) Option {
	return func(f *Factory) {
		if cli != "" {
			f.clusterCLI = cli
		}
	}
}

// NewFactory creates a provider factory. The extractor serves generic backends.
func NewFactory(extractor ports.CommandExtractor, opts ...Option) *Factory {
	f := &Factory{
		// Rounds carry their own deadline; streaming bodies must not be cut by a client timeout.
		httpClient: &http.Client{},
		extractor:  extractor,
		logger:     logger.Discard(),
		timeout:    domain.DefaultRequestTimeout,
		maxRounds:  domain.DefaultMaxToolRounds,
		clusterCLI: domain.DefaultClusterCLI,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ForModel builds the adapter named by the model, or the heuristic fallback
// when the model's credentials are not available.
func (f *Factory) ForModel(model domain.ModelDefinition) (ports.Provider, error) {
	kind := model.Provider
	if kind == "" {
		kind = inferProviderKind(model.Endpoint, model.Name)
	}
	kind, err := domain.ParseProviderKind(string(kind))
	if err != nil {
		return nil, err
	}

	switch kind {
	case domain.ProviderAnthropic:
		key := firstEnv(model.AuthEnvVar, "ANTHROPIC_API_KEY")
		if key == "" {
			return f.fallback(model, "ANTHROPIC_API_KEY"), nil
		}
		return &anthropicProvider{providerBase: f.base(model, kind), apiKey: key}, nil
	case domain.ProviderOpenAI:
		key := firstEnv(model.AuthEnvVar, "OPENAI_API_KEY")
		if key == "" {
			return f.fallback(model, "OPENAI_API_KEY"), nil
		}
		return &openAIProvider{
			providerBase: f.base(model, kind),
			apiKey:       key,
			org:          firstEnv(model.OrgEnvVar, "OPENAI_ORG_ID"),
		}, nil
	case domain.ProviderHTTP:
		key := firstEnv(model.AuthEnvVar)
		if model.AuthEnvVar != "" && key == "" {
			return f.fallback(model, model.AuthEnvVar), nil
		}
		return &httpProvider{providerBase: f.base(model, kind), apiKey: key, extractor: f.extractor}, nil
	default:
		return f.heuristic(model), nil
	}
}

func (f *Factory) fallback(model domain.ModelDefinition, envVar string) ports.Provider {
	f.logger.Warn("credentials missing, using offline heuristic provider", map[string]interface{}{
		"model":   model.Name,
		"env_var": orDefault(model.AuthEnvVar, envVar),
	})
	return f.heuristic(model)
}

func (f *Factory) heuristic(model domain.ModelDefinition) ports.Provider {
	return &heuristicProvider{
		providerBase: f.base(model, domain.ProviderHeuristic),
		cli:          f.clusterCLI,
		extractor:    f.extractor,
	}
}

func (f *Factory) base(model domain.ModelDefinition, kind domain.ProviderKind) providerBase {
	limit := model.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	return providerBase{
		name:  string(kind),
		model: model,
		config: domain.ProviderConfig{
			Kind:           kind.Mode(),
			Adapter:        kind,
			ModelName:      model.Name,
			ModelID:        model.ModelID,
			CredentialsRef: model.AuthEnvVar,
		},
		client:    f.httpClient,
		limiter:   rate.NewLimiter(rate.Limit(limit), defaultBurst),
		timeout:   f.timeout,
		maxRounds: f.maxRounds,
		logger:    f.logger,
	}
}

// inferProviderKind guesses the adapter for models that do not name one.
func inferProviderKind(endpoint string, name string) domain.ProviderKind {
	nameLower := strings.ToLower(name)

	switch {
	case strings.Contains(endpoint, "anthropic.com"):
		return domain.ProviderAnthropic
	case strings.Contains(endpoint, "openai.com"):
		return domain.ProviderOpenAI
	case strings.Contains(nameLower, "ollama"), strings.Contains(endpoint, "11434"), strings.Contains(endpoint, "localhost"):
		return domain.ProviderHTTP
	case endpoint != "":
		return domain.ProviderHTTP
	default:
		return domain.ProviderHeuristic
	}
}

var _ ports.ProviderFactory = (*Factory)(nil)

// providerBase carries what every adapter shares.
type providerBase struct {
	name      string
	model     domain.ModelDefinition
	config    domain.ProviderConfig
	client    *http.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	maxRounds int
	logger    ports.Logger
}

func (p providerBase) Name() string {
	return p.name
}

func (p providerBase) Config() domain.ProviderConfig {
	return p.config
}

func (p providerBase) driver() structuredDriver {
	return structuredDriver{
		provider:  p.name,
		limiter:   p.limiter,
		timeout:   p.timeout,
		maxRounds: p.maxRounds,
		logger:    p.logger,
	}
}

func (p providerBase) genericDriver(extractor ports.CommandExtractor) genericDriver {
	return genericDriver{
		provider:  p.name,
		limiter:   p.limiter,
		timeout:   p.timeout,
		extractor: extractor,
		logger:    p.logger,
	}
}

// setExtraHeaders adds any additional headers defined in the APIFormat configuration.
func (p providerBase) setExtraHeaders(req *http.Request) {
	for key, value := range p.model.APIFormat.ExtraHeaders {
		req.Header.Set(key, value)
	}
}
