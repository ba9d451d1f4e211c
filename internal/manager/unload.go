package manager

import (
	"llmd/pkg/types"
)

// Unload destroys the ready model named name and removes it from the cache.
// Categories are searched in fixed order (chat, embedding, reranker) and the
// first match wins. Entries still loading are not considered loaded. Reports
// whether anything was removed.
func (m *Manager) Unload(name string) bool {
	if name == "" {
		return false
	}
	var victim *LoadedModel
	m.mu.Lock()
	for _, c := range types.Categories() {
		id := Identity{Category: c, Path: m.store.Resolve(name, c)}
		if lm := m.models[id]; lm != nil && lm.state == StateReady {
			delete(m.models, id)
			victim = lm
			break
		}
	}
	m.mu.Unlock()
	if victim == nil {
		return false
	}
	m.destroy(victim, "unload")
	return true
}

// destroy releases lm (already removed from the map) and notifies listeners.
// It must be called without holding m.mu: teardown waits for in-flight
// engine calls on lm.
func (m *Manager) destroy(lm *LoadedModel, reason string) {
	if err := lm.destroy(); err != nil {
		m.log.Warn().Err(err).Str("event", reason).Str("model", lm.name).Msg("release model resources")
	}
	loadedModels.WithLabelValues(string(lm.id.Category)).Dec()
	m.log.Info().Str("event", reason).Str("model", lm.name).Str("category", string(lm.id.Category)).Msg("model destroyed")
	m.publisher.Publish(Event{Name: reason, Model: lm.name, Category: lm.id.Category})

	m.listenMu.Lock()
	fns := append([]func(Identity){}, m.onDestroy...)
	m.listenMu.Unlock()
	for _, fn := range fns {
		fn(lm.id)
	}
}
