package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"llmd/internal/llm/llmtest"
	"llmd/internal/manager"
	"llmd/internal/registry"
	"llmd/internal/session"
	"llmd/pkg/types"
)

type testServer struct {
	h        http.Handler
	engine   *llmtest.Engine
	mgr      *manager.Manager
	sessions *session.Controller
	store    *registry.Store
}

func newTestServer(t *testing.T, engine *llmtest.Engine) *testServer {
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
	mgr := manager.New(manager.Config{Engine: engine, Store: store, Logger: zerolog.Nop()})
	sessions := session.New(session.Config{Logger: zerolog.Nop()})
	mgr.OnDestroy(sessions.DropModel)
	t.Cleanup(func() {
		sessions.Close()
		mgr.Close()
	})
	return &testServer{h: NewMux(mgr, sessions), engine: engine, mgr: mgr, sessions: sessions, store: store}
}

// artifact writes an empty model file and returns its path.
func (ts *testServer) artifact(t *testing.T, c types.Category, name string) string {
	t.Helper()
	p := filepath.Join(ts.store.Dir(c), registry.FileName(name))
	if err := os.WriteFile(p, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return p
}

// do serves one request; hdr is a flat list of header key/value pairs.
func (ts *testServer) do(method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	ts.h.ServeHTTP(w, req)
	return w
}
