package manager

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"llmd/internal/llm"
	"llmd/internal/registry"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultIdleTTL       = 15 * time.Minute
	defaultSweepInterval = 15 * time.Minute
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	// Engine loads artifacts. Required.
	Engine llm.Engine
	// Store resolves names to artifact paths. Required.
	Store *registry.Store
	// IdleTTL is how long a ready model may go unused before the sweep evicts it.
	IdleTTL time.Duration
	// SweepInterval is the period of the background idle sweep.
	SweepInterval time.Duration
	Logger        zerolog.Logger
	Publisher     EventPublisher
	// Now overrides the clock (tests).
	Now func() time.Time
}

// New constructs a Manager from cfg, applying defaults.
func New(cfg Config) *Manager {
	m := &Manager{
		engine:        cfg.Engine,
		store:         cfg.Store,
		models:        make(map[Identity]*LoadedModel),
		idleTTL:       cfg.IdleTTL,
		sweepInterval: cfg.SweepInterval,
		log:           cfg.Logger.With().Str("component", "manager").Logger(),
		publisher:     cfg.Publisher,
		now:           cfg.Now,
		startTime:     time.Now(),
	}
	if m.idleTTL <= 0 {
		m.idleTTL = defaultIdleTTL
	}
	if m.sweepInterval <= 0 {
		m.sweepInterval = defaultSweepInterval
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}
