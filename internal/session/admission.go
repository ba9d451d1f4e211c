package session

import (
	"context"
	"errors"
	"time"
)

// admit reserves the session's single generation slot. It waits at most
// maxWait (when positive) and returns a release func to be deferred.
func (s *Session) admit(ctx context.Context, maxWait time.Duration) (func(), error) {
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wctx := ctx
	if maxWait > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}
	if err := s.slot.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, busyError{id: s.id}
		}
		return nil, err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		s.slot.Release(1)
		return nil, ErrSessionClosed
	}
	return s.leave, nil
}

// leave frees the slot. When the session was released while generating, the
// generation context is closed here since release could not take the slot.
func (s *Session) leave() {
	s.mu.Lock()
	closed := s.closed
	s.slot.Release(1)
	s.mu.Unlock()
	if closed {
		s.closeContext()
	}
}
