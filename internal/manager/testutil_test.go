package manager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llmd/internal/llm/llmtest"
	"llmd/internal/registry"
	"llmd/pkg/types"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	m      *Manager
	engine *llmtest.Engine
	store  *registry.Store
	pub    *MemoryPublisher
	clock  *fakeClock
}

// newFixture builds a Manager over a temp models root with a scripted engine.
func newFixture(t *testing.T, engine *llmtest.Engine) *fixture {
	t.Helper()
	if engine == nil {
		engine = &llmtest.Engine{}
	}
	store, err := registry.New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.EnsureLayout(); err != nil {
		t.Fatalf("layout: %v", err)
	}
	f := &fixture{engine: engine, store: store, pub: NewMemoryPublisher(), clock: newFakeClock()}
	f.m = New(Config{
		Engine:    engine,
		Store:     store,
		Publisher: f.pub,
		Logger:    zerolog.Nop(),
		Now:       f.clock.Now,
	})
	t.Cleanup(f.m.Close)
	return f
}

// artifact creates an empty artifact for name under category c and returns its path.
func (f *fixture) artifact(t *testing.T, c types.Category, name string) string {
	t.Helper()
	p := filepath.Join(f.store.Dir(c), registry.FileName(name))
	if err := os.WriteFile(p, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return p
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
