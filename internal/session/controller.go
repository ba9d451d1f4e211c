package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"llmd/internal/llm"
	"llmd/internal/manager"
)

// DefaultTTL is the inactivity window after which a session expires.
const DefaultTTL = 30 * time.Minute

// DefaultHistoryChars bounds the conversation text kept per session. It
// leaves room for the reply within a 2048 token context.
const DefaultHistoryChars = 4096

// Config holds Controller tunables.
type Config struct {
	// TTL is the inactivity window. Defaults to DefaultTTL.
	TTL time.Duration
	// AdmissionWait bounds how long a prompt waits for a session that is
	// already generating. Zero waits until the request context ends.
	AdmissionWait time.Duration
	// HistoryChars caps the characters of earlier turns rendered into each
	// prompt; the oldest exchanges are dropped first. Defaults to
	// DefaultHistoryChars.
	HistoryChars int
	Logger       zerolog.Logger
}

// Controller owns every chat session of the process.
type Controller struct {
	ttl          time.Duration
	maxWait      time.Duration
	historyChars int
	log          zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// New returns an empty Controller.
func New(cfg Config) *Controller {
	c := &Controller{
		ttl:          cfg.TTL,
		maxWait:      cfg.AdmissionWait,
		historyChars: cfg.HistoryChars,
		log:          cfg.Logger.With().Str("component", "session").Logger(),
		sessions:     make(map[string]*Session),
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.historyChars <= 0 {
		c.historyChars = DefaultHistoryChars
	}
	return c
}

// Session is one chat conversation bound to a generation context.
type Session struct {
	id      string
	model   *manager.LoadedModel
	system  string
	created time.Time

	gen       llm.GenerationContext
	closeOnce sync.Once

	// one generation at a time
	slot *semaphore.Weighted

	mu      sync.Mutex
	history []Turn
	timer   *time.Timer
	closed  bool
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Model returns the loaded model the session generates with.
func (s *Session) Model() *manager.LoadedModel { return s.model }

// turns returns a copy of the accumulated turns, excluding the system prompt.
func (s *Session) turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

// Seed appends prior turns. It is meant for a session that was just created
// from a request carrying earlier messages.
func (s *Session) Seed(turns []Turn) {
	s.mu.Lock()
	s.history = append(s.history, turns...)
	s.mu.Unlock()
}

// Closed reports whether the session has expired or been released.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) closeContext() {
	s.closeOnce.Do(func() {
		if s.gen != nil {
			_ = s.gen.Close()
		}
	})
}

// GetOrCreate returns the active session stored under key when it is still
// bound to lm. Otherwise it creates a session on lm with systemPrompt,
// stores it under key (or a random identifier when key is empty) and
// reports created=true. An expired or unknown key simply gets a new session.
func (c *Controller) GetOrCreate(key string, lm *manager.LoadedModel, systemPrompt string) (s *Session, created bool, err error) {
	if key != "" {
		c.mu.Lock()
		cur := c.sessions[key]
		c.mu.Unlock()
		if cur != nil && cur.model == lm && lm.Alive() && !cur.Closed() {
			return cur, false, nil
		}
	}

	gen, err := lm.NewGenerationContext()
	if err != nil {
		return nil, false, err
	}
	id := key
	if id == "" {
		id = uuid.NewString()
	}
	s = &Session{
		id:      id,
		model:   lm,
		system:  systemPrompt,
		created: time.Now(),
		gen:     gen,
		slot:    semaphore.NewWeighted(1),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.closeContext()
		return nil, false, ErrSessionClosed
	}
	prev := c.sessions[id]
	c.sessions[id] = s
	s.mu.Lock()
	s.timer = time.AfterFunc(c.ttl, func() { c.expire(s) })
	s.mu.Unlock()
	n := len(c.sessions)
	c.mu.Unlock()

	if prev != nil {
		c.release(prev, "replaced")
	} else {
		activeSessions.Inc()
	}
	c.log.Debug().Str("event", "session_create").Str("session", id).Str("model", lm.Name()).Int("active", n).Msg("session created")
	return s, true, nil
}

// touch reinstalls the expiry timer after a successful prompt.
func (c *Controller) touch(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(c.ttl, func() { c.expire(s) })
}

func (c *Controller) expire(s *Session) {
	if c.remove(s) {
		activeSessions.Dec()
	}
	c.release(s, "expired")
}

// remove deletes s from the table if it is still the entry under its id.
func (c *Controller) remove(s *Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions[s.id] != s {
		return false
	}
	delete(c.sessions, s.id)
	return true
}

// release stops the timer and closes the generation context once no
// generation is running. A running generation closes it when it finishes.
func (c *Controller) release(s *Session, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	idle := s.slot.TryAcquire(1)
	s.mu.Unlock()
	if idle {
		s.closeContext()
		s.slot.Release(1)
	}
	releasedTotal.WithLabelValues(reason).Inc()
	c.log.Debug().Str("event", "session_"+reason).Str("session", s.id).Str("model", s.model.Name()).Msg("session released")
}

// Remove releases the session stored under id and reports whether one existed.
func (c *Controller) Remove(id string) bool {
	c.mu.Lock()
	s := c.sessions[id]
	if s != nil {
		delete(c.sessions, id)
	}
	c.mu.Unlock()
	if s == nil {
		return false
	}
	activeSessions.Dec()
	c.release(s, "removed")
	return true
}

// DropModel releases every session bound to the model identity. It is
// registered as a manager destroy listener.
func (c *Controller) DropModel(id manager.Identity) {
	c.mu.Lock()
	var victims []*Session
	for key, s := range c.sessions {
		if s.model.Identity() == id {
			delete(c.sessions, key)
			victims = append(victims, s)
		}
	}
	c.mu.Unlock()
	for _, s := range victims {
		activeSessions.Dec()
		c.release(s, "model_destroyed")
	}
}

// Info is a snapshot of one active session.
type Info struct {
	ID      string
	Model   string
	Created time.Time
	Turns   int
}

// Snapshot describes the active sessions, sorted by id.
func (c *Controller) Snapshot() []Info {
	c.mu.Lock()
	list := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		list = append(list, s)
	}
	c.mu.Unlock()
	out := make([]Info, 0, len(list))
	for _, s := range list {
		s.mu.Lock()
		n := len(s.history)
		s.mu.Unlock()
		out = append(out, Info{ID: s.id, Model: s.model.Name(), Created: s.created, Turns: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close releases every session and refuses new ones.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	victims := make([]*Session, 0, len(c.sessions))
	for id, s := range c.sessions {
		victims = append(victims, s)
		delete(c.sessions, id)
	}
	c.mu.Unlock()
	for _, s := range victims {
		activeSessions.Dec()
		c.release(s, "closed")
	}
}
