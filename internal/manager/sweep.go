package manager

import (
	"context"
	"time"
)

// Sweep destroys every ready model idle for longer than maxIdle and returns
// how many were removed. An entry is retained iff now - lastUsed <= maxIdle;
// the decision is taken under the write lock, so an acquisition that
// refreshed the timestamp first is always honored.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	now := m.now()
	m.mu.Lock()
	var victims []*LoadedModel
	for id, lm := range m.models {
		if lm.state != StateReady {
			continue
		}
		if now.Sub(lm.LastUsed()) > maxIdle {
			delete(m.models, id)
			victims = append(victims, lm)
		}
	}
	m.mu.Unlock()

	for _, lm := range victims {
		m.evictionsTotal.Add(1)
		evictionsTotal.WithLabelValues(string(lm.id.Category)).Inc()
		m.destroy(lm, "evict")
	}
	if len(victims) > 0 {
		m.log.Info().Str("event", "sweep").Int("evicted", len(victims)).Dur("max_idle", maxIdle).Msg("idle sweep")
	}
	return len(victims)
}

// StartSweeper runs Sweep(IdleTTL) every SweepInterval until StopSweeper or
// Close. Calling it again replaces the running sweeper.
func (m *Manager) StartSweeper() {
	m.StopSweeper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.sweepMu.Lock()
	m.sweepCancel, m.sweepDone = cancel, done
	m.sweepMu.Unlock()

	go func() {
		defer close(done)
		t := time.NewTicker(m.sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				m.Sweep(m.idleTTL)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopSweeper stops the background sweep and waits for it to exit.
func (m *Manager) StopSweeper() {
	m.sweepMu.Lock()
	cancel, done := m.sweepCancel, m.sweepDone
	m.sweepCancel, m.sweepDone = nil, nil
	m.sweepMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
