package scoring

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/originality/connectivity"
	"github.com/hazyhaar/originality/observability"
)

type scoreRequest struct {
	Text string `json:"text"`
}

// Engine scores text with the configured provider and falls back to the
// local heuristic whenever the provider cannot answer.
type Engine struct {
	kind     Kind
	provider Provider
	local    *Local
	call     func(context.Context, scoreRequest) (*Result, error)
	breaker  *connectivity.CircuitBreaker
	client   *connectivity.HTTPClient
	cache    Cache
	metrics  *observability.MetricsManager
	logger   *slog.Logger
}

// NewEngine resolves cfg.Provider once. Unknown selectors and external
// providers without an API key use the local heuristic.
func NewEngine(cfg Config) *Engine {
	cfg.defaults()
	kind, ok := ParseKind(cfg.Provider)
	if !ok {
		cfg.Logger.Warn("unknown scoring provider, using mock", "provider", cfg.Provider)
	}

	if kind == KindMock {
		return newEngine(kind, nil, cfg)
	}
	if cfg.APIKey == "" {
		cfg.Logger.Warn("scoring provider has no API key, using mock", "provider", string(kind))
		return newEngine(kind, nil, cfg)
	}

	// Leave headroom so the Timeout middleware fires before the transport.
	client := connectivity.NewHTTPClient(cfg.Timeout + 5*time.Second)
	var p Provider
	switch kind {
	case KindCopyleaks:
		p = NewCopyleaks(cfg, client)
	case KindRapidAPI:
		p = NewRapidAPI(cfg, client)
	case KindDetector:
		p = NewDetector(cfg, client)
	}
	e := newEngine(kind, p, cfg)
	e.client = client
	return e
}

// NewEngineWithProvider wraps an arbitrary provider in the fallback chain.
func NewEngineWithProvider(p Provider, cfg Config) *Engine {
	cfg.defaults()
	return newEngine(Kind(p.Name()), p, cfg)
}

func newEngine(kind Kind, remote Provider, cfg Config) *Engine {
	e := &Engine{
		kind:    kind,
		local:   NewLocal(cfg.Rand),
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if remote == nil {
		e.provider = e.local
		return e
	}
	e.provider = remote
	e.breaker = connectivity.NewCircuitBreaker(
		connectivity.WithBreakerThreshold(cfg.BreakerThreshold),
		connectivity.WithBreakerResetTimeout(cfg.BreakerReset),
	)

	name := remote.Name()
	remoteH := connectivity.JSON(func(ctx context.Context, req scoreRequest) (*Result, error) {
		return remote.Score(ctx, req.Text)
	})
	localH := connectivity.JSON(func(_ context.Context, req scoreRequest) (*Result, error) {
		return e.local.score(req.Text), nil
	})
	h := connectivity.Chain(
		connectivity.WithFallback(localH, name, e.logger, e.onFallback),
		connectivity.Recovery(e.logger),
		connectivity.Logging(e.logger, name),
		connectivity.WithObservability(e.metrics, name),
		connectivity.WithCircuitBreaker(e.breaker, name),
		connectivity.Timeout(cfg.Timeout, name),
	)(remoteH)
	e.call = connectivity.Typed[scoreRequest, *Result](h)
	return e
}

// ProviderName is the name of the configured provider, or of the local
// heuristic when no external provider is usable.
func (e *Engine) ProviderName() string { return e.provider.Name() }

// Kind is the resolved provider selector.
func (e *Engine) Kind() Kind { return e.kind }

// Breaker exposes the circuit breaker guarding the external provider, nil
// when scoring is local.
func (e *Engine) Breaker() *connectivity.CircuitBreaker { return e.breaker }

// Score returns a result for text. It never fails: any provider error,
// timeout, panic or open circuit yields a local result with Fallback set.
func (e *Engine) Score(ctx context.Context, text string) *Result {
	words := CountWords(text)
	key := CacheKey(e.provider.Name(), text)
	if res := e.cached(ctx, key); res != nil {
		return res
	}

	var res *Result
	if e.call == nil {
		res = e.local.score(text)
		if e.kind != KindMock {
			e.metrics.Count(observability.MetricProviderFallback, "provider", string(e.kind), "kind", string(KindAuth))
		}
	} else {
		var err error
		res, err = e.call(ctx, scoreRequest{Text: text})
		if err != nil || res == nil {
			// Only reached when the caller cancelled: the chain already
			// falls back for every provider failure.
			e.logger.WarnContext(ctx, "scoring chain failed, scoring locally",
				"provider", e.provider.Name(), "error", err)
			e.metrics.Count(observability.MetricProviderFallback, "provider", e.provider.Name(), "kind", "cancelled")
			res = e.local.score(text)
		}
	}
	res.normalize(words, time.Now())

	if res.Status == StatusScored {
		e.metrics.Observe(observability.MetricScoreValue, res.Score, "percent", "provider", res.Provider)
	}
	if e.cacheable(res) {
		if err := e.cache.Set(ctx, key, res); err != nil {
			e.logger.WarnContext(ctx, "score cache write failed", "error", err)
		}
	}
	return res
}

func (e *Engine) cached(ctx context.Context, key string) *Result {
	if e.cache == nil {
		return nil
	}
	res, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.WarnContext(ctx, "score cache read failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	e.metrics.Count(observability.MetricScoreCacheHit, "provider", e.provider.Name())
	return res
}

// cacheable keeps pending scans and fallback verdicts of an external
// provider out of the cache, so a later call can still reach the provider.
func (e *Engine) cacheable(res *Result) bool {
	if e.cache == nil || res.Status != StatusScored {
		return false
	}
	return !res.Fallback || (e.call == nil && e.kind == KindMock)
}

func (e *Engine) onFallback(ctx context.Context, service string, err error) {
	kind := classify(service, err).Kind
	var open *connectivity.ErrCircuitOpen
	if errors.As(err, &open) {
		kind = "circuit_open"
	}
	var timeout *connectivity.ErrCallTimeout
	if errors.As(err, &timeout) {
		kind = KindTimeout
	}
	e.metrics.Count(observability.MetricProviderFallback, "provider", service, "kind", string(kind))
}

// Close releases idle provider connections.
func (e *Engine) Close() {
	if e.client != nil {
		e.client.Close()
	}
}
