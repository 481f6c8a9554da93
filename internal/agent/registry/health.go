package registry

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arosstale/pi-builder-sub000/internal/agent/wrappers"
)

type healthEntry struct {
	healthy   bool
	checkedAt time.Time
}

// IsHealthy reports whether a wrapper's binary answers its version probe.
// Results are cached for the configured TTL; a stale entry triggers a fresh
// probe. Concurrent probes of the same id race benignly, the last write
// wins.
func (r *Registry) IsHealthy(ctx context.Context, id string) bool {
	w, ok := r.Get(id)
	if !ok {
		return false
	}

	if healthy, fresh := r.cachedHealth(id); fresh {
		return healthy
	}
	return r.probe(ctx, w)
}

// AvailableAgents returns the healthy wrappers in registration order.
func (r *Registry) AvailableAgents(ctx context.Context) []wrappers.Wrapper {
	healthy := r.CheckHealth(ctx)

	var out []wrappers.Wrapper
	for _, w := range r.List() {
		if healthy[w.ID()] {
			out = append(out, w)
		}
	}
	return out
}

// CheckHealth probes every registered wrapper and returns id to health.
// Probes run concurrently, one goroutine per wrapper, so a slow binary
// never serialises the sweep.
func (r *Registry) CheckHealth(ctx context.Context) map[string]bool {
	wrapperList := r.List()

	var mu sync.Mutex
	results := make(map[string]bool, len(wrapperList))

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range wrapperList {
		g.Go(func() error {
			healthy := r.IsHealthy(gctx, w.ID())
			mu.Lock()
			results[w.ID()] = healthy
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Registry) cachedHealth(id string) (healthy, fresh bool) {
	r.healthMu.RLock()
	defer r.healthMu.RUnlock()

	entry, ok := r.health[id]
	if !ok || time.Since(entry.checkedAt) >= r.healthTTL {
		return false, false
	}
	return entry.healthy, true
}

func (r *Registry) probe(ctx context.Context, w wrappers.Wrapper) bool {
	healthy := w.Healthy(ctx)

	r.healthMu.Lock()
	r.health[w.ID()] = healthEntry{healthy: healthy, checkedAt: time.Now()}
	r.healthMu.Unlock()

	return healthy
}
