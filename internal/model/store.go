package model

import (
	"fmt"
	"sync/atomic"
)

// Store serves the active artifact bundle to concurrently in-flight
// requests. Reads are lock-free; a reload swaps the whole bundle in one
// atomic step so no request ever observes a half-updated model.
type Store struct {
	active atomic.Pointer[Bundle]
	dir    string
}

// NewStore loads the initial bundle from dir.
func NewStore(dir string) (*Store, error) {
	b, err := Load(dir)
	if err != nil {
		return nil, err
	}
	s := &Store{dir: dir}
	s.active.Store(b)
	return s, nil
}

// NewStoreWithBundle wraps an already-built bundle. Used for tests and
// embedded deployments that construct artifacts in code.
func NewStoreWithBundle(b *Bundle) (*Store, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	s := &Store{}
	s.active.Store(b)
	return s, nil
}

// Active returns the currently served bundle. The returned bundle is
// immutable; callers must take it once per request and use it throughout,
// so a mid-request reload cannot mix model versions.
func (s *Store) Active() *Bundle {
	return s.active.Load()
}

// Reload loads a fresh bundle from the artifact directory and atomically
// swaps it in. On any load or validation error the active bundle is kept.
func (s *Store) Reload() (*Bundle, error) {
	if s.dir == "" {
		return nil, fmt.Errorf("store has no artifact directory to reload from")
	}
	b, err := Load(s.dir)
	if err != nil {
		return nil, err
	}
	s.active.Store(b)
	return b, nil
}
