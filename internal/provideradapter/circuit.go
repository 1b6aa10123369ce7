package provideradapter

import (
	"context"
	"errors"

	"github.com/citewatch/tracker/internal/metrics"
	"github.com/citewatch/tracker/internal/resilience"
)

// breakerAdapter wraps an Adapter's Query calls in a per-provider circuit
// breaker, so a provider that is down doesn't keep taking a full query
// timeout on every job the scheduler dispatches for it.
type breakerAdapter struct {
	Adapter
	cb *resilience.CircuitBreaker
}

func newBreakerAdapter(a Adapter, cb *resilience.CircuitBreaker) Adapter {
	return &breakerAdapter{Adapter: a, cb: cb}
}

func (b *breakerAdapter) Query(ctx context.Context, queryText string, opts Options) (*Answer, error) {
	answer, err := resilience.ExecuteVal(ctx, b.cb, func(ctx context.Context) (*Answer, error) {
		return b.Adapter.Query(ctx, queryText, opts)
	})

	openGauge := 0.0
	if b.cb.State() == resilience.CircuitOpen {
		openGauge = 1.0
	}
	metrics.CircuitBreakerOpen.WithLabelValues(string(b.Adapter.Name())).Set(openGauge)

	if err == resilience.ErrCircuitOpen {
		return nil, NewError(ErrUpstreamError, "circuit open for "+string(b.Adapter.Name()), err)
	}
	return answer, err
}

// DefaultBreakerConfig trips on the same error kinds NewError already marks
// retriable — auth and quota failures need a human, not a backoff, so they
// don't count against the breaker.
func DefaultBreakerConfig() resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.ShouldTrip = func(err error) bool {
		var perr *Error
		if !errors.As(err, &perr) {
			return err != nil
		}
		return perr.Retriable
	}
	return cfg
}

// RegisterWithBreaker registers an adapter behind a per-provider circuit
// breaker, keyed by model.Provider so the breaker's state is independent
// per platform.
func (r *Registry) RegisterWithBreaker(a Adapter, breakers *resilience.ServiceBreakers) {
	cb := breakers.Get(string(a.Name()))
	r.Register(newBreakerAdapter(a, cb))
}
