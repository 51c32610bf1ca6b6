package model

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheDependency is returned by New when a cached model depends on an
	// uncached one.
	ErrCacheDependency = errors.New("model: cached model requires cached dependencies")

	// ErrImmutable is returned by Set on models not marked mutable.
	ErrImmutable = errors.New("model: model is not mutable")

	// ErrLoadFailed marks every failed load.
	ErrLoadFailed = errors.New("model: load failed")

	// ErrDependencyFailed is wrapped when a dependency could not load.
	ErrDependencyFailed = errors.New("model: dependency failed to load")

	// ErrNotFound is returned by LoadSingle when the server answers 404.
	ErrNotFound = errors.New("model: record not found")

	// ErrDecode is wrapped when a payload does not match the expected shape
	// or is rejected by the parser.
	ErrDecode = errors.New("model: decode failed")
)

// LoadError describes a failed load. It matches ErrLoadFailed and whatever
// Err matches.
type LoadError struct {
	Path string
	// Status is the HTTP status, or 0 when no response was involved.
	Status int
	Err    error
}

func (e *LoadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("load %s: status %d: %v", e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{ErrLoadFailed, e.Err}
}
