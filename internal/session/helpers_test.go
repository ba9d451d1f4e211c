package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"llmd/internal/llm/llmtest"
	"llmd/internal/manager"
	"llmd/internal/registry"
	"llmd/pkg/types"
)

type env struct {
	engine *llmtest.Engine
	mgr    *manager.Manager
	ctrl   *Controller
}

func newEnv(t *testing.T, engine *llmtest.Engine, cfg Config) *env {
	t.Helper()
	if engine == nil {
		engine = &llmtest.Engine{}
	}
	store, err := registry.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.EnsureLayout())
	for _, name := range []string{"chat-a", "chat-b"} {
		p := filepath.Join(store.Dir(types.CategoryChat), registry.FileName(name))
		require.NoError(t, os.WriteFile(p, []byte("gguf"), 0o644))
	}
	e := &env{
		engine: engine,
		mgr:    manager.New(manager.Config{Engine: engine, Store: store, Logger: zerolog.Nop()}),
		ctrl:   New(cfg),
	}
	e.mgr.OnDestroy(e.ctrl.DropModel)
	t.Cleanup(func() {
		e.ctrl.Close()
		e.mgr.Close()
	})
	return e
}

func (e *env) acquire(t *testing.T, name string) *manager.LoadedModel {
	t.Helper()
	lm, err := e.mgr.Acquire(context.Background(), name, types.CategoryChat)
	require.NoError(t, err)
	return lm
}

// waitFor polls cond until it holds or a second elapses.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func ids(c *Controller) []string {
	var out []string
	for _, info := range c.Snapshot() {
		out = append(out, info.ID)
	}
	return out
}
