package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmd/internal/manager"
	"llmd/internal/session"
	"llmd/pkg/types"
)

// Banner is the body of GET /.
const Banner = "llmd is running. OpenAI-compatible API under /v1."

// Models is the model cache driven by the handlers. *manager.Manager
// implements it.
type Models interface {
	Acquire(ctx context.Context, name string, c types.Category) (*manager.LoadedModel, error)
	Release(id manager.Identity)
	Unload(name string) bool
	ListAvailable() []types.Model
	Status() types.StatusResponse
	Ready() bool
}

type api struct {
	models   Models
	sessions *session.Controller
}

// NewMux builds the HTTP handler for models and sessions.
func NewMux(models Models, sessions *session.Controller) http.Handler {
	a := &api{models: models, sessions: sessions}

	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, logging, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(corsMiddleware())
	}
	// Compression for JSON endpoints; event streams are left alone
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, Banner)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/embeddings", a.embeddings)
		r.Post("/rerank", a.rerank)
		r.Post("/chat/completions", a.chatCompletions)
		r.Get("/models", a.listModels)
		r.Post("/models/load", a.loadModel)
		r.Post("/models/unload", a.unloadModel)
		r.Delete("/sessions/{id}", a.deleteSession)
	})

	r.Get("/status", a.status)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if models.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no model loaded"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// decodeJSON reads the size-limited body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return errors.New("request body too large")
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

// withModel acquires name as category c and runs fn on it. If the model is
// unloaded between acquisition and use, it is acquired once more.
func (a *api) withModel(ctx context.Context, name string, c types.Category, fn func(*manager.LoadedModel) error) error {
	for attempt := 0; ; attempt++ {
		lm, err := a.models.Acquire(ctx, name, c)
		if err != nil {
			return err
		}
		err = fn(lm)
		a.models.Release(lm.Identity())
		if attempt == 0 && errors.Is(err, manager.ErrModelClosed) {
			continue
		}
		return err
	}
}

// status godoc
// @Summary      Cache and session status
// @Tags         ops
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (a *api) status(w http.ResponseWriter, r *http.Request) {
	st := a.models.Status()
	st.Sessions = []types.SessionStatus{}
	if a.sessions != nil {
		for _, info := range a.sessions.Snapshot() {
			st.Sessions = append(st.Sessions, types.SessionStatus{
				ID:      info.ID,
				Model:   info.Model,
				Created: info.Created.Unix(),
				Turns:   info.Turns,
			})
		}
		st.ActiveSessions = len(st.Sessions)
	}
	writeJSON(w, http.StatusOK, st)
}
