package manager

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"llmd/internal/llm"
	"llmd/pkg/types"
)

// State represents the lifecycle state of a cache entry.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Identity is the cache key: an artifact path loaded as a category.
type Identity struct {
	Category types.Category
	Path     string
}

func (id Identity) String() string { return string(id.Category) + ":" + id.Path }

// runtime is the category-specific execution context attached to a loaded
// model. Exactly one of the concrete types below is ever stored.
type runtime interface {
	close() error
}

type embeddingRuntime struct{ ctx llm.EmbeddingContext }

func (r embeddingRuntime) close() error { return r.ctx.Close() }

type rankingRuntime struct{ ctx llm.RankingContext }

func (r rankingRuntime) close() error { return r.ctx.Close() }

// generationRuntime carries nothing: chat contexts are created per session.
type generationRuntime struct{}

func (generationRuntime) close() error { return nil }

func newRuntime(h llm.Model, c types.Category) (runtime, error) {
	switch c {
	case types.CategoryEmbedding:
		ctx, err := h.NewEmbeddingContext()
		if err != nil {
			return nil, err
		}
		return embeddingRuntime{ctx: ctx}, nil
	case types.CategoryReranker:
		ctx, err := h.NewRankingContext()
		if err != nil {
			return nil, err
		}
		return rankingRuntime{ctx: ctx}, nil
	default:
		return generationRuntime{}, nil
	}
}

// LoadedModel is one in-memory model instance owned by the Manager.
//
// Engine calls made through a LoadedModel hold its teardown lock for reading,
// so destruction waits for them to finish. Calls that start after destruction
// fail with ErrModelClosed.
type LoadedModel struct {
	id   Identity
	name string

	// guarded by Manager.mu
	state State

	lastUsed atomic.Int64 // unix nanos

	mu     sync.RWMutex
	handle llm.Model
	rt     runtime
	closed bool
	// generation contexts handed out and not yet closed
	gens map[*generation]struct{}
}

// generation is a generation context owned by a session. destroy closes any
// that are still open before it releases the handle.
type generation struct {
	llm.GenerationContext
	lm   *LoadedModel
	once sync.Once
	err  error
}

func (g *generation) Close() error {
	g.lm.mu.Lock()
	delete(g.lm.gens, g)
	g.lm.mu.Unlock()
	return g.close()
}

func (g *generation) close() error {
	g.once.Do(func() { g.err = g.GenerationContext.Close() })
	return g.err
}

// Identity returns the cache key of the model.
func (lm *LoadedModel) Identity() Identity { return lm.id }

// Name returns the artifact file name.
func (lm *LoadedModel) Name() string { return lm.name }

// Category returns the category the model was loaded as.
func (lm *LoadedModel) Category() types.Category { return lm.id.Category }

// LastUsed returns the time of the last successful acquisition.
func (lm *LoadedModel) LastUsed() time.Time { return time.Unix(0, lm.lastUsed.Load()) }

func (lm *LoadedModel) touch(now time.Time) { lm.lastUsed.Store(now.UnixNano()) }

// Alive reports whether the model has not been destroyed.
func (lm *LoadedModel) Alive() bool {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return !lm.closed
}

// Do runs fn while holding the model alive. fn must not retain the handle
// beyond its return.
func (lm *LoadedModel) Do(fn func() error) error {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	if lm.closed {
		return ErrModelClosed
	}
	return fn()
}

// Embed returns one vector per input, in input order.
func (lm *LoadedModel) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	if lm.closed {
		return nil, ErrModelClosed
	}
	rt, ok := lm.rt.(embeddingRuntime)
	if !ok {
		return nil, wrongCategory(lm.name, types.CategoryEmbedding, lm.id.Category)
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		v, err := rt.ctx.Embed(ctx, in)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Ranked is one scored document. Index is the document's position in the
// request.
type Ranked struct {
	Document string
	Score    float32
	Index    int
}

// Rank scores every document against query and returns them by descending
// score; equal scores keep request order.
func (lm *LoadedModel) Rank(ctx context.Context, query string, documents []string) ([]Ranked, error) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	if lm.closed {
		return nil, ErrModelClosed
	}
	rt, ok := lm.rt.(rankingRuntime)
	if !ok {
		return nil, wrongCategory(lm.name, types.CategoryReranker, lm.id.Category)
	}
	out := make([]Ranked, len(documents))
	for i, d := range documents {
		s, err := rt.ctx.Rank(ctx, query, d)
		if err != nil {
			return nil, err
		}
		out[i] = Ranked{Document: d, Score: s, Index: i}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// NewGenerationContext creates a fresh generation context on the model's
// handle. The caller owns the returned context and should Close it; contexts
// still open when the model is destroyed are closed before the handle.
func (lm *LoadedModel) NewGenerationContext() (llm.GenerationContext, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.closed {
		return nil, ErrModelClosed
	}
	if _, ok := lm.rt.(generationRuntime); !ok {
		return nil, wrongCategory(lm.name, types.CategoryChat, lm.id.Category)
	}
	gc, err := lm.handle.NewGenerationContext()
	if err != nil {
		return nil, err
	}
	g := &generation{GenerationContext: gc, lm: lm}
	if lm.gens == nil {
		lm.gens = make(map[*generation]struct{})
	}
	lm.gens[g] = struct{}{}
	return g, nil
}

// destroy releases the runtime and handle once; it blocks until in-flight
// engine calls have returned.
func (lm *LoadedModel) destroy() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.closed {
		return nil
	}
	lm.closed = true
	var firstErr error
	for g := range lm.gens {
		if err := g.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	lm.gens = nil
	if lm.rt != nil {
		if err := lm.rt.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if lm.handle != nil {
		if err := lm.handle.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Entry is a snapshot of one cache entry.
type Entry struct {
	Name     string
	Path     string
	Category types.Category
	State    State
	Ready    bool
	LastUsed time.Time
}
