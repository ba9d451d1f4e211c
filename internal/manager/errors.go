package manager

import (
	"errors"
	"fmt"

	"llmd/pkg/types"
)

// ErrModelClosed is returned by engine calls on a model that was unloaded or
// evicted after it was acquired. Callers should acquire again.
var ErrModelClosed = errors.New("model was unloaded")

// NotFoundError reports an artifact absent from disk.
type NotFoundError struct {
	Name string
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model %q not found at %s", e.Name, e.Path)
}

// IsNotFound reports whether err indicates a missing artifact (map to 404).
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// LoadError wraps an engine failure while loading an artifact.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string { return "failed to load model " + e.Path + ": " + e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoadError reports whether err is a LoadError.
func IsLoadError(err error) bool {
	var e *LoadError
	return errors.As(err, &e)
}

// WrongCategoryError reports an artifact requested for an operation its
// category does not support. Path is the resolved path that was tried for
// the requested category; it is empty when the mismatch was found on an
// already loaded model.
type WrongCategoryError struct {
	Name      string
	Path      string
	Requested types.Category
	Actual    types.Category
}

func (e *WrongCategoryError) Error() string {
	msg := fmt.Sprintf("model %q is a %s model and cannot be used as %s", e.Name, e.Actual, e.Requested)
	if e.Path != "" {
		msg += " (no artifact at " + e.Path + ")"
	}
	return msg
}

// AsNotFound returns the equivalent NotFoundError for the attempted path.
func (e *WrongCategoryError) AsNotFound() *NotFoundError {
	return &NotFoundError{Name: e.Name, Path: e.Path}
}

func wrongCategory(name string, requested, actual types.Category) error {
	return &WrongCategoryError{Name: name, Requested: requested, Actual: actual}
}

// IsWrongCategory reports whether err is a WrongCategoryError (map to 400).
func IsWrongCategory(err error) bool {
	var e *WrongCategoryError
	return errors.As(err, &e)
}
