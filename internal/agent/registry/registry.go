// Package registry holds the set of installed agent wrappers, caches their
// health, and picks one per task by preferred order and capability.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub000/internal/agent/wrappers"
	"github.com/arosstale/pi-builder-sub000/internal/common/constants"
	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
)

// Registry tracks registered wrappers. The wrapper set is effectively
// read-only after startup; the health cache is the only state that mutates
// during normal operation.
type Registry struct {
	mu        sync.RWMutex
	wrappers  map[string]wrappers.Wrapper
	order     []string
	preferred []string
	fallback  bool
	logger    *logger.Logger

	healthMu  sync.RWMutex
	health    map[string]healthEntry
	healthTTL time.Duration
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithPreferredAgents sets the ordered list of wrapper ids that selection
// consults first.
func WithPreferredAgents(ids ...string) Option {
	return func(r *Registry) {
		r.preferred = append([]string(nil), ids...)
	}
}

// WithHealthTTL overrides how long a health probe result stays cached.
func WithHealthTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.healthTTL = ttl
	}
}

// WithoutFallback disables retrying other candidates when Execute gets a
// non-success result.
func WithoutFallback() Option {
	return func(r *Registry) {
		r.fallback = false
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger, opts ...Option) *Registry {
	r := &Registry{
		wrappers:  make(map[string]wrappers.Wrapper),
		health:    make(map[string]healthEntry),
		healthTTL: constants.HealthCacheTTL,
		fallback:  true,
		logger:    log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a wrapper. Ids must be unique.
func (r *Registry) Register(w wrappers.Wrapper) error {
	if w.ID() == "" {
		return fmt.Errorf("wrapper id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.wrappers[w.ID()]; exists {
		return fmt.Errorf("wrapper %q already registered", w.ID())
	}

	r.wrappers[w.ID()] = w
	r.order = append(r.order, w.ID())
	r.logger.Debug("registered wrapper",
		zap.String("id", w.ID()),
		zap.String("binary", w.Binary()))
	return nil
}

// Unregister removes a wrapper and drops its cached health entry.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	if _, exists := r.wrappers[id]; !exists {
		r.mu.Unlock()
		return fmt.Errorf("wrapper %q not found", id)
	}
	delete(r.wrappers, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.healthMu.Lock()
	delete(r.health, id)
	r.healthMu.Unlock()

	r.logger.Debug("unregistered wrapper", zap.String("id", id))
	return nil
}

// Get returns a wrapper by id.
func (r *Registry) Get(id string) (wrappers.Wrapper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wrappers[id]
	return w, ok
}

// Exists reports whether a wrapper id is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.wrappers[id]
	return ok
}

// List returns all wrappers in registration order.
func (r *Registry) List() []wrappers.Wrapper {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]wrappers.Wrapper, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.wrappers[id])
	}
	return out
}

// PreferredAgents returns a copy of the configured preferred-order list.
func (r *Registry) PreferredAgents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.preferred...)
}

// SelectForTask picks a wrapper for the task, or nil when none qualifies.
// Order: preferred list, then capability match, then registration order.
func (r *Registry) SelectForTask(ctx context.Context, task wrappers.Task) wrappers.Wrapper {
	return r.selectForTask(ctx, task, nil)
}

// selectForTask applies the selection order while skipping tried ids.
func (r *Registry) selectForTask(ctx context.Context, task wrappers.Task, tried map[string]bool) wrappers.Wrapper {
	for _, id := range r.PreferredAgents() {
		w, ok := r.Get(id)
		if !ok || tried[id] {
			continue
		}
		if task.Capability != "" && !wrappers.HasCapability(w, task.Capability) {
			continue
		}
		if r.IsHealthy(ctx, id) {
			return w
		}
	}

	if task.Capability != "" {
		for _, w := range r.List() {
			if tried[w.ID()] || !wrappers.HasCapability(w, task.Capability) {
				continue
			}
			if r.IsHealthy(ctx, w.ID()) {
				return w
			}
		}
	}

	for _, w := range r.List() {
		if tried[w.ID()] {
			continue
		}
		if r.IsHealthy(ctx, w.ID()) {
			return w
		}
	}
	return nil
}

// Execute selects a wrapper and runs the task, falling back to the next
// candidate on a non-success result. All failures come back in-band; the
// synthetic error when every candidate is exhausted names the tried ids.
func (r *Registry) Execute(ctx context.Context, task wrappers.Task) *wrappers.Result {
	tried := make(map[string]bool)
	var attempted []string

	for {
		w := r.selectForTask(ctx, task, tried)
		if w == nil {
			return noAgentResult(attempted)
		}
		tried[w.ID()] = true
		attempted = append(attempted, w.ID())

		result := w.Execute(ctx, task)
		if result.OK() || !r.fallback {
			return result
		}
		r.logger.Warn("wrapper failed, trying next candidate",
			zap.String("agent", w.ID()),
			zap.String("status", string(result.Status)),
			zap.Int("exit_code", result.ExitCode))
	}
}

// ExecuteStream selects a wrapper and streams its stdout. There is no
// fallback across candidates; a spawn failure or an empty selection comes
// back as a synthetic stream so callers always get the same shape.
func (r *Registry) ExecuteStream(ctx context.Context, task wrappers.Task) *wrappers.Stream {
	w := r.SelectForTask(ctx, task)
	if w == nil {
		result := &wrappers.Result{
			Status:   wrappers.StatusError,
			Stderr:   "no available agent",
			ExitCode: -1,
		}
		return wrappers.SyntheticStream(result, "no available agent")
	}

	stream, err := w.ExecuteStream(ctx, task)
	if err != nil {
		r.logger.Warn("wrapper spawn failed",
			zap.String("agent", w.ID()),
			zap.Error(err))
		result := &wrappers.Result{
			AgentID:  w.ID(),
			Status:   wrappers.StatusError,
			Stderr:   err.Error(),
			ExitCode: -1,
		}
		return wrappers.SyntheticStream(result)
	}
	return stream
}

func noAgentResult(tried []string) *wrappers.Result {
	msg := "no available agent found"
	if len(tried) > 0 {
		msg = fmt.Sprintf("no available agent found (tried: %s)", strings.Join(tried, ", "))
	}
	return &wrappers.Result{
		Status:   wrappers.StatusError,
		Stderr:   msg,
		ExitCode: -1,
	}
}
