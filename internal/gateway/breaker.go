package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/nulzo/streamchat/internal/httpclient"
	"github.com/nulzo/streamchat/pkg/api"
)

const (
	defaultMaxFailures uint32 = 5
	defaultTimeout            = 30 * time.Second
	defaultInterval           = 60 * time.Second
)

// BreakerConfig tunes the per-provider circuit breaker that guards stream
// opening. Zero fields fall back to defaults.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before half-opening.
	Timeout time.Duration
	// Interval clears failure counts while closed.
	Interval time.Duration
}

type breakers struct {
	cfg    BreakerConfig
	logger *zap.Logger

	mu sync.Mutex
	m  map[api.ProviderID]*gobreaker.CircuitBreaker[*httpclient.EventStream]
}

func newBreakers(cfg BreakerConfig, logger *zap.Logger) *breakers {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	return &breakers{
		cfg:    cfg,
		logger: logger,
		m:      make(map[api.ProviderID]*gobreaker.CircuitBreaker[*httpclient.EventStream]),
	}
}

func (b *breakers) get(id api.ProviderID) *gobreaker.CircuitBreaker[*httpclient.EventStream] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.m[id]; ok {
		return cb
	}

	maxFailures := b.cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker[*httpclient.EventStream](gobreaker.Settings{
		Name:        "llm:" + string(id),
		MaxRequests: 1, // one trial request while half-open
		Interval:    b.cfg.Interval,
		Timeout:     b.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: countsAsHealthy,
	})
	b.m[id] = cb
	return cb
}

// open runs fn through the provider's breaker. Only stream opening is
// guarded; failures while reading an open stream never trip it.
func (b *breakers) open(id api.ProviderID, url string, fn func() (*httpclient.EventStream, error)) (*httpclient.EventStream, error) {
	stream, err := b.get(id).Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &api.TransportError{URL: url, Err: fmt.Errorf("provider %q circuit open: %w", id, err)}
	}
	return stream, err
}

// states reports the breaker state of every provider used so far.
func (b *breakers) states() map[api.ProviderID]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[api.ProviderID]string, len(b.m))
	for id, cb := range b.m {
		out[id] = cb.State().String()
	}
	return out
}

// countsAsHealthy reports whether err says nothing about upstream health.
// Caller cancellation and client errors such as a bad key are the caller's
// problem; 429 and 5xx are the provider's.
func countsAsHealthy(err error) bool {
	if err == nil || errors.Is(err, api.ErrCanceled) {
		return true
	}
	var te *api.TransportError
	if errors.As(err, &te) && te.StatusCode >= 400 && te.StatusCode < 500 {
		return te.StatusCode != http.StatusTooManyRequests
	}
	return false
}
