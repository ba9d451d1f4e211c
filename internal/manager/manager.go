package manager

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"llmd/internal/llm"
	"llmd/internal/registry"
	"llmd/pkg/types"
)

// Manager is the model cache. It is the only writer of the models map.
type Manager struct {
	engine llm.Engine
	store  *registry.Store

	// ctx is canceled by Close and bounds every engine load.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	models map[Identity]*LoadedModel
	closed bool
	// one in-flight load per Identity
	loads singleflight.Group

	idleTTL       time.Duration
	sweepInterval time.Duration

	log       zerolog.Logger
	publisher EventPublisher
	now       func() time.Time

	listenMu  sync.Mutex
	onDestroy []func(Identity)

	sweepMu     sync.Mutex
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}

	closeOnce sync.Once

	startTime      time.Time
	loadsTotal     atomic.Uint64
	failuresTotal  atomic.Uint64
	evictionsTotal atomic.Uint64
}

// OnDestroy registers fn to be called after a model is unloaded or evicted.
func (m *Manager) OnDestroy(fn func(Identity)) {
	m.listenMu.Lock()
	m.onDestroy = append(m.onDestroy, fn)
	m.listenMu.Unlock()
}

// Release marks the end of a caller's use of a model. Entries are not
// reference counted; eviction looks only at the last-use time, so Release
// does nothing today.
func (m *Manager) Release(Identity) {}

// Ready reports whether at least one model is loaded and ready.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, lm := range m.models {
		if lm.state == StateReady {
			return true
		}
	}
	return false
}

// IsLoaded reports whether a ready entry exists for the artifact path.
func (m *Manager) IsLoaded(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, lm := range m.models {
		if id.Path == path && lm.state == StateReady {
			return true
		}
	}
	return false
}

// List returns a snapshot of cache membership, sorted by category then path.
func (m *Manager) List() []Entry {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.models))
	for id, lm := range m.models {
		out = append(out, Entry{
			Name:     lm.name,
			Path:     id.Path,
			Category: id.Category,
			State:    lm.state,
			Ready:    lm.state == StateReady,
			LastUsed: lm.LastUsed(),
		})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// ListAvailable lists artifacts on disk for every category, flagging the
// ones currently in the cache.
func (m *Manager) ListAvailable() []types.Model {
	return m.store.ListAll(m.IsLoaded)
}

// Close stops the sweeper and destroys every cached model.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.StopSweeper()
		m.cancel()
		m.mu.Lock()
		m.closed = true
		victims := make([]*LoadedModel, 0, len(m.models))
		for id, lm := range m.models {
			if lm.state == StateReady {
				victims = append(victims, lm)
				delete(m.models, id)
			}
		}
		m.mu.Unlock()
		for _, lm := range victims {
			m.destroy(lm, "close")
		}
	})
}
