package session

import (
	"errors"
)

// ErrSessionClosed is returned by a prompt on a session that expired or was
// dropped after it was obtained. Callers should GetOrCreate again.
var ErrSessionClosed = errors.New("session closed")

// GenerationError wraps an engine failure during text generation.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError reports whether err is a GenerationError (map to 500).
func IsGenerationError(err error) bool {
	var e *GenerationError
	return errors.As(err, &e)
}

type busyError struct{ id string }

func (e busyError) Error() string { return "session busy: " + e.id }

// IsBusy reports whether err indicates the session is already generating and
// the admission wait elapsed (map to 429).
func IsBusy(err error) bool {
	var e busyError
	return errors.As(err, &e)
}
