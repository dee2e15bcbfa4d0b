package ai

import (
	"sync"

	"mnemosyne/pkg/errors"
	"mnemosyne/pkg/logger"
)

// Registry holds the connectors a deployment can dispatch to, the default
// selection, the fallback policy, and per-model usage metrics. It is the
// single lookup point between callers that speak model IDs and the
// provider-specific connectors behind them.
//
// A Registry is safe for concurrent use. Lookups take a read lock;
// recording usage takes the read lock only long enough to find the model's
// metrics, then records under that model's own mutex.
type Registry struct {
	mu sync.RWMutex

	entries   map[string]*registryEntry
	order     []string // registration order, for deterministic fallback picks
	defaultID string

	fallbackEnabled bool
}

type registryEntry struct {
	connector Connector
	metrics   *ModelMetrics
}

// NewRegistry creates an empty registry. Fallback dispatch is controlled by
// fallbackEnabled; when false, FallbackFor always reports no alternative.
func NewRegistry(fallbackEnabled bool) *Registry {
	return &Registry{
		entries:         make(map[string]*registryEntry),
		fallbackEnabled: fallbackEnabled,
	}
}

// Register adds a connector under its descriptor's model ID. Registering an
// ID again replaces the connector and resets its accumulated metrics. The
// first registered model becomes the default until SetDefault overrides it.
func (r *Registry) Register(conn Connector) error {
	if conn == nil {
		return errors.Wrap(errors.ErrInvalidInput, "connector is nil")
	}
	id := conn.Descriptor().ID
	if id == "" {
		return errors.Wrap(errors.ErrInvalidInput, "connector descriptor has empty model ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		logger.Get().With("component", "ai_registry").Infow("Replacing registered model", "model", id)
	} else {
		r.order = append(r.order, id)
	}
	r.entries[id] = &registryEntry{connector: conn, metrics: newModelMetrics()}

	if r.defaultID == "" {
		r.defaultID = id
	}
	return nil
}

// SetDefault marks modelID as the registry default for empty-ID resolves
func (r *Registry) SetDefault(modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[modelID]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "model %s is not registered", modelID)
	}
	r.defaultID = modelID
	return nil
}

// Resolve returns the connector for modelID. An empty ID resolves to the
// registry default.
func (r *Registry) Resolve(modelID string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if modelID == "" {
		modelID = r.defaultID
	}
	if modelID == "" {
		return nil, errors.Wrap(errors.ErrNotFound, "no models registered")
	}

	entry, ok := r.entries[modelID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "model %s is not registered", modelID)
	}
	return entry.connector, nil
}

// FallbackFor picks an alternative connector to retry with after primaryID
// failed. The default model is tried first; when the primary already is the
// default, the first other registered model is picked instead. This is a
// first-available policy, not capability-matched. Returns ErrNoFallback
// when fallback is disabled or no alternative exists; the primary itself is
// never returned.
func (r *Registry) FallbackFor(primaryID string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.fallbackEnabled {
		return nil, errors.Wrap(errors.ErrNoFallback, "fallback dispatch is disabled")
	}

	if _, ok := r.entries[primaryID]; !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "model %s is not registered", primaryID)
	}

	if primaryID != r.defaultID && r.defaultID != "" {
		return r.entries[r.defaultID].connector, nil
	}
	for _, id := range r.order {
		if id != primaryID {
			return r.entries[id].connector, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNoFallback, "no alternative to model %s is registered", primaryID)
}

// RecordUsage folds one call's outcome into the model's metrics. Unknown
// model IDs are dropped with a warning rather than an error; usage
// accounting must never fail a request that already completed.
func (r *Registry) RecordUsage(modelID string, sample UsageSample) {
	// The metrics pointer must be captured under the registry lock:
	// Register and ResetMetrics swap it under the write lock.
	r.mu.RLock()
	var m *ModelMetrics
	if entry, ok := r.entries[modelID]; ok {
		m = entry.metrics
	}
	r.mu.RUnlock()

	if m == nil {
		logger.Get().With("component", "ai_registry").Warnw("Usage recorded for unknown model", "model", modelID)
		return
	}
	m.Record(sample)
}

// MetricsSnapshot returns the current counters for modelID
func (r *Registry) MetricsSnapshot(modelID string) (MetricsSnapshot, error) {
	r.mu.RLock()
	var m *ModelMetrics
	if entry, ok := r.entries[modelID]; ok {
		m = entry.metrics
	}
	r.mu.RUnlock()

	if m == nil {
		return MetricsSnapshot{}, errors.Wrapf(errors.ErrNotFound, "model %s is not registered", modelID)
	}
	snap := m.Snapshot()
	snap.ModelID = modelID
	return snap, nil
}

// AllMetrics returns snapshots for every registered model in registration order
func (r *Registry) AllMetrics() []MetricsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]MetricsSnapshot, 0, len(r.order))
	for _, id := range r.order {
		snap := r.entries[id].metrics.Snapshot()
		snap.ModelID = id
		out = append(out, snap)
	}
	return out
}

// ResetMetrics clears the accumulated counters for modelID
func (r *Registry) ResetMetrics(modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[modelID]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "model %s is not registered", modelID)
	}
	entry.metrics = newModelMetrics()
	return nil
}

// DefaultID returns the current default model ID, empty when nothing is registered
func (r *Registry) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}

// ModelIDs lists registered model IDs in registration order
func (r *Registry) ModelIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Descriptors lists registered model descriptors in registration order
func (r *Registry) Descriptors() []ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModelDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].connector.Descriptor())
	}
	return out
}

// FallbackEnabled reports whether fallback dispatch is active
func (r *Registry) FallbackEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallbackEnabled
}
