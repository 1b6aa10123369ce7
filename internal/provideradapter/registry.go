package provideradapter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/citewatch/tracker/internal/model"
)

// Registry is an immutable-after-warmup set of provider adapters,
// populated once at process start from config. Adapters absent from
// config (missing API key) are never registered, so a lookup miss means
// "not enabled" rather than "not found".
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.Provider]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.Provider]Adapter)}
}

// Register adds an adapter, keyed by its own Name(). Intended to be
// called during process startup only.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a provider, or (nil, false) if it isn't
// registered.
func (r *Registry) Get(p model.Provider) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	return a, ok
}

// WarmUp probes every registered adapter's Healthcheck once, pacing the
// calls through a token-bucket limiter so a process restart with many
// providers configured doesn't fire a burst of simultaneous probe requests
// at every upstream at once. ratePerSecond/burst size the limiter; a
// ratePerSecond <= 0 disables pacing (all probes fire immediately).
func (r *Registry) WarmUp(ctx context.Context, ratePerSecond float64, burst int) map[model.Provider]HealthStatus {
	r.mu.RLock()
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		adapters = append(adapters, a)
	}
	r.mu.RUnlock()

	results := make(map[model.Provider]HealthStatus, len(adapters))
	if len(adapters) == 0 {
		return results
	}

	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, a := range adapters {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			status := a.Healthcheck(ctx)
			mu.Lock()
			results[a.Name()] = status
			mu.Unlock()
		}(a)
	}
	wg.Wait()
	return results
}

// Enabled returns the providers currently registered.
func (r *Registry) Enabled() []model.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}
