package manager

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"llmd/internal/common/fsutil"
	"llmd/internal/llm"
	"llmd/pkg/types"
)

// Acquire returns the ready model for (name, category), loading it first if
// needed. Concurrent callers for the same identity share a single load; a
// failed load is not cached. The returned model's last-use time is refreshed.
//
// Errors: *NotFoundError (no artifact), *WrongCategoryError (artifact exists
// only under another category), *LoadError (engine failure), or ctx.Err()
// when the caller stops waiting. A canceled waiter does not cancel the
// shared load.
func (m *Manager) Acquire(ctx context.Context, name string, c types.Category) (*LoadedModel, error) {
	id := Identity{Category: c, Path: m.store.Resolve(name, c)}
	if lm := m.readyTouch(id); lm != nil {
		return lm, nil
	}

	ch := m.loads.DoChan(id.String(), func() (any, error) {
		return m.load(id, name)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		lm := res.Val.(*LoadedModel)
		// The entry may have been unloaded between the flight finishing and
		// this waiter resuming; only hand out live entries.
		if cur := m.readyTouch(id); cur == lm {
			return lm, nil
		}
		return m.Acquire(ctx, name, c)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readyTouch returns the ready entry for id with its last-use time refreshed.
// The refresh happens under the read lock so a concurrent sweep, which decides
// under the write lock, always sees it.
func (m *Manager) readyTouch(id Identity) *LoadedModel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lm := m.models[id]
	if lm == nil || lm.state != StateReady {
		return nil
	}
	lm.touch(m.now())
	return lm
}

// load runs inside the singleflight for id.
func (m *Manager) load(id Identity, name string) (*LoadedModel, error) {
	if lm := m.readyTouch(id); lm != nil {
		return lm, nil
	}
	if !fsutil.IsRegularFile(id.Path) {
		return nil, m.notFound(name, id)
	}

	startTs := time.Now()
	lm := &LoadedModel{id: id, name: fileName(id.Path), state: StateLoading}
	lm.touch(m.now())
	m.mu.Lock()
	m.models[id] = lm
	m.mu.Unlock()
	m.log.Info().Str("event", "load_start").Str("model", lm.name).Str("category", string(id.Category)).Msg("loading model")
	m.publisher.Publish(Event{Name: "load_start", Model: lm.name, Category: id.Category})

	// The load outlives any single caller; only Close cancels it.
	handle, err := m.engine.Load(m.ctx, id.Path, llm.LoadOptions{Embeddings: id.Category != types.CategoryChat})
	var rt runtime
	if err == nil {
		if rt, err = newRuntime(handle, id.Category); err != nil {
			_ = handle.Close()
		}
	}
	if err != nil {
		m.mu.Lock()
		lm.state = StateFailed
		if m.models[id] == lm {
			delete(m.models, id)
		}
		m.mu.Unlock()
		m.failuresTotal.Add(1)
		loadFailuresTotal.WithLabelValues(string(id.Category)).Inc()
		m.log.Error().Err(err).Str("event", "load_failed").Str("model", lm.name).Str("category", string(id.Category)).Msg("model load failed")
		m.publisher.Publish(Event{Name: "load_failed", Model: lm.name, Category: id.Category, Fields: map[string]any{"error": err.Error()}})
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Name: name, Path: id.Path}
		}
		return nil, &LoadError{Path: id.Path, Err: err}
	}

	lm.mu.Lock()
	lm.handle, lm.rt = handle, rt
	lm.mu.Unlock()
	m.mu.Lock()
	if m.closed || m.models[id] != lm {
		if m.models[id] == lm {
			delete(m.models, id)
		}
		m.mu.Unlock()
		_ = lm.destroy()
		return nil, &LoadError{Path: id.Path, Err: ErrModelClosed}
	}
	lm.state = StateReady
	lm.touch(m.now())
	m.mu.Unlock()

	m.loadsTotal.Add(1)
	loadsTotal.WithLabelValues(string(id.Category)).Inc()
	loadedModels.WithLabelValues(string(id.Category)).Inc()
	dur := time.Since(startTs)
	loadDuration.WithLabelValues(string(id.Category)).Observe(dur.Seconds())
	m.log.Info().Str("event", "load_ready").Str("model", lm.name).Str("category", string(id.Category)).Dur("dur", dur).Msg("model ready")
	m.publisher.Publish(Event{Name: "load_ready", Model: lm.name, Category: id.Category, Fields: map[string]any{"dur_ms": int(dur / time.Millisecond)}})
	return lm, nil
}

// notFound builds the error for an absent artifact, preferring a category
// mismatch when the name exists under another category.
func (m *Manager) notFound(name string, id Identity) error {
	for _, c := range m.store.Locate(name) {
		if c != id.Category {
			return &WrongCategoryError{Name: fileName(id.Path), Path: id.Path, Requested: id.Category, Actual: c}
		}
	}
	m.log.Debug().Str("event", "model_not_found").Str("path", id.Path).Msg("artifact missing")
	return &NotFoundError{Name: name, Path: id.Path}
}
