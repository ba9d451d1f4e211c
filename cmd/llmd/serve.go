package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llmd/internal/config"
	"llmd/internal/httpapi"
	"llmd/internal/llm"
	"llmd/internal/manager"
	"llmd/internal/registry"
	"llmd/internal/session"
)

const shutdownTimeout = 5 * time.Second

func serve(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	store, err := registry.New(cfg.ModelsDir, logger.With().Str("component", "registry").Logger())
	if err != nil {
		return err
	}
	if err := store.EnsureLayout(); err != nil {
		return err
	}
	if !llm.Built {
		logger.Warn().Msg("built without -tags=llama: model loads will fail with dependency unavailable")
	}
	engine := llm.NewLlamaEngine(llm.LlamaConfig{
		ContextSize: cfg.LlamaContext,
		Threads:     cfg.LlamaThreads,
		GPULayers:   cfg.LlamaGPULayers,
	})

	mgr := manager.New(manager.Config{
		Engine:        engine,
		Store:         store,
		IdleTTL:       cfg.IdleTTL(),
		SweepInterval: cfg.SweepInterval(),
		Logger:        logger,
	})
	sessions := session.New(session.Config{
		TTL:          cfg.SessionTTL(),
		HistoryChars: cfg.SessionHistoryChars,
		Logger:       logger,
	})
	mgr.OnDestroy(sessions.DropModel)
	mgr.StartSweeper()
	defer mgr.Close()
	defer sessions.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpapi.SetLogger(logger)
	httpapi.SetRequestLogLevel(requestLogLevel(cfg.LogLevel))
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(len(cfg.CORSOrigins) > 0, cfg.CORSOrigins, nil, nil)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.NewMux(mgr, sessions),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("models_dir", store.Root()).Bool("engine", llm.Built).Msg("llmd listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown")
	}
	return nil
}
