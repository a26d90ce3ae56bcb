package gateway

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nulzo/streamchat/internal/analytics"
	"github.com/nulzo/streamchat/internal/httpclient"
	"github.com/nulzo/streamchat/internal/llm"
	"github.com/nulzo/streamchat/internal/prompt"
	"github.com/nulzo/streamchat/internal/settings"
	"github.com/nulzo/streamchat/internal/store/model"
	"github.com/nulzo/streamchat/pkg/api"

	// every provider registers itself with llm on import
	_ "github.com/nulzo/streamchat/internal/llm/anthropic"
	_ "github.com/nulzo/streamchat/internal/llm/ark"
	_ "github.com/nulzo/streamchat/internal/llm/openai"
)

const tracerName = "github.com/nulzo/streamchat/internal/gateway"

// Service is the streaming chat facade.
type Service interface {
	// SendMessageStream sends message with history to the configured provider
	// and calls onFragment once per text increment, in order, before it
	// returns. It returns nil once the provider signals the end of the answer.
	SendMessageStream(ctx context.Context, message string, history []api.ConversationTurn, onFragment func(string)) error

	// Stream is SendMessageStream as an iterator. Breaking out of the loop
	// cancels the in-flight read. A failure is yielded once, last.
	Stream(ctx context.Context, message string, history []api.ConversationTurn) iter.Seq2[string, error]

	// SendMessage is the retired non-streaming path.
	SendMessage(ctx context.Context, message string, history []api.ConversationTurn) (string, error)

	// BreakerStates reports the circuit state per provider used so far.
	BreakerStates() map[api.ProviderID]string
}

type Option func(*service)

func WithHTTPClient(c httpclient.HTTPClient) Option {
	return func(s *service) { s.client = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *service) { s.logger = l }
}

func WithIngestor(i analytics.Ingestor) Option {
	return func(s *service) { s.ingestor = i }
}

func WithPromptBuilder(b *prompt.Builder) Option {
	return func(s *service) { s.builder = b }
}

// WithEndpoints overrides the upstream URL per provider.
func WithEndpoints(endpoints map[api.ProviderID]string) Option {
	return func(s *service) {
		for id, url := range endpoints {
			if url != "" {
				s.endpoints[id] = url
			}
		}
	}
}

func WithBreaker(cfg BreakerConfig) Option {
	return func(s *service) { s.breakerCfg = &cfg }
}

// WithoutBreaker opens every stream directly.
func WithoutBreaker() Option {
	return func(s *service) { s.breakerCfg = nil }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *service) { s.tracer = t }
}

type service struct {
	store      settings.Store
	client     httpclient.HTTPClient
	logger     *zap.Logger
	ingestor   analytics.Ingestor
	builder    *prompt.Builder
	endpoints  map[api.ProviderID]string
	breakerCfg *BreakerConfig
	breakers   *breakers
	tracer     trace.Tracer
}

func NewService(store settings.Store, opts ...Option) Service {
	s := &service{
		store:      store,
		client:     http.DefaultClient,
		logger:     zap.NewNop(),
		builder:    prompt.NewBuilder(),
		endpoints:  make(map[api.ProviderID]string),
		breakerCfg: &BreakerConfig{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breakerCfg != nil {
		s.breakers = newBreakers(*s.breakerCfg, s.logger)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// call is everything resolved before any network I/O.
type call struct {
	provider llm.Provider
	settings api.Settings
	url      string
	headers  map[string]string
	body     interface{}
}

// prepare resolves settings into a ready-to-send request. Every failure is a
// *api.ConfigurationError and happens before a connection is attempted.
func (s *service) prepare(ctx context.Context, message string, history []api.ConversationTurn) (*call, error) {
	cfg, err := s.store.Load(ctx)
	if err != nil {
		return nil, &api.ConfigurationError{Err: fmt.Errorf("load settings: %w", err)}
	}

	p, err := llm.Get(cfg.Provider)
	if err != nil {
		return nil, &api.ConfigurationError{Provider: cfg.Provider, Err: err}
	}

	if err := settings.Validate(cfg); err != nil {
		return nil, err
	}

	cred := p.Credential(cfg)
	if strings.TrimSpace(cred.Value) == "" {
		return nil, &api.ConfigurationError{Provider: cfg.Provider, Field: cred.Field, Err: api.ErrMissingCredential}
	}

	messages := s.builder.BuildContext(ctx, message, history)
	body, err := p.BuildRequest(messages, cfg, llm.RequestOptions{Stream: true})
	if err != nil {
		return nil, err
	}

	url := p.Endpoint(cfg)
	if override, ok := s.endpoints[cfg.Provider]; ok {
		url = override
	}

	return &call{
		provider: p,
		settings: cfg,
		url:      url,
		headers:  p.Headers(cred.Value),
		body:     body,
	}, nil
}

func (s *service) SendMessageStream(ctx context.Context, message string, history []api.ConversationTurn, onFragment func(string)) (err error) {
	ctx, span := s.tracer.Start(ctx, "gateway.SendMessageStream",
		trace.WithAttributes(attribute.Int("chat.history_turns", len(history))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	c, err := s.prepare(ctx, message, history)
	if err != nil {
		s.logger.Warn("Stream rejected before sending", zap.Error(err))
		return err
	}

	id := uuid.NewString()
	modelName := llm.ModelFor(c.provider.Spec(), c.settings)
	span.SetAttributes(
		attribute.String("stream.id", id),
		attribute.String("llm.provider", string(c.settings.Provider)),
		attribute.String("llm.model", modelName),
	)
	log := s.logger.With(
		zap.String("stream_id", id),
		zap.String("provider", string(c.settings.Provider)),
		zap.String("model", modelName),
	)

	start := time.Now()
	var (
		fragments  int
		characters int
		firstAt    time.Duration
	)
	defer func() {
		s.record(&model.StreamLog{
			ID:              id,
			Provider:        string(c.settings.Provider),
			Model:           modelName,
			HistoryTurns:    len(history),
			Fragments:       fragments,
			Characters:      characters,
			FirstFragmentMs: firstAt.Milliseconds(),
			DurationMs:      time.Since(start).Milliseconds(),
		}, err)
	}()

	stream, err := s.open(ctx, c, log)
	if err != nil {
		log.Warn("Failed to open stream", zap.String("url", c.url), zap.Error(err))
		return err
	}
	log.Debug("Stream opened", zap.String("url", c.url))

	err = stream.Each(ctx, c.provider.ParseChunk, func(fragment string) {
		if fragments == 0 {
			firstAt = time.Since(start)
			span.AddEvent("first_fragment")
		}
		fragments++
		characters += len(fragment)
		if onFragment != nil {
			onFragment(fragment)
		}
	})

	span.SetAttributes(attribute.Int("stream.fragments", fragments))
	switch {
	case err == nil:
		log.Info("Stream completed",
			zap.Int("fragments", fragments),
			zap.Duration("duration", time.Since(start)),
		)
	case errors.Is(err, api.ErrCanceled):
		log.Info("Stream canceled", zap.Int("fragments", fragments))
	default:
		log.Warn("Stream failed", zap.Int("fragments", fragments), zap.Error(err))
	}
	return err
}

func (s *service) open(ctx context.Context, c *call, log *zap.Logger) (*httpclient.EventStream, error) {
	open := func() (*httpclient.EventStream, error) {
		return httpclient.Open(ctx, s.client, c.url, c.headers, c.body, httpclient.WithLogger(log))
	}
	if s.breakers == nil {
		return open()
	}
	return s.breakers.open(c.settings.Provider, c.url, open)
}

func (s *service) record(entry *model.StreamLog, err error) {
	if s.ingestor == nil {
		return
	}

	entry.Status = model.StatusCompleted
	if err != nil {
		entry.Status = model.StatusFailed
		if errors.Is(err, api.ErrCanceled) {
			entry.Status = model.StatusCanceled
		}
		entry.ErrorMessage = err.Error()
		var te *api.TransportError
		if errors.As(err, &te) {
			entry.UpstreamStatus = te.StatusCode
		}
	}
	entry.CreatedAt = time.Now().UTC()
	s.ingestor.Log(entry)
}

func (s *service) Stream(ctx context.Context, message string, history []api.ConversationTurn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		err := s.SendMessageStream(ctx, message, history, func(fragment string) {
			if stopped {
				return
			}
			if !yield(fragment, nil) {
				stopped = true
				cancel()
			}
		})
		if stopped || err == nil {
			return
		}
		yield("", err)
	}
}

func (s *service) SendMessage(ctx context.Context, message string, history []api.ConversationTurn) (string, error) {
	s.logger.Warn("Non-streaming request rejected")
	return "", api.ErrNonStreamingDeprecated
}

func (s *service) BreakerStates() map[api.ProviderID]string {
	if s.breakers == nil {
		return map[api.ProviderID]string{}
	}
	return s.breakers.states()
}
