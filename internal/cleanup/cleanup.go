// Package cleanup provides a small per-instance teardown registry:
// closing a Scope runs every release registered with it exactly once,
// in reverse registration order. No other package in this module
// registers with a Scope; the image store and the zip device release
// their resources themselves.
package cleanup

import (
	"sync"
	"sync/atomic"

	"golang.org/x/xerrors"
)

// Scope is a LIFO list of release functions tied to one device/store
// instance's lifetime.
type Scope struct {
	mu     sync.Mutex
	fns    []func() error
	closed uint32
}

// New returns an open Scope.
func New() *Scope {
	return &Scope{}
}

// Defer registers fn to run on Close, in reverse order of registration.
// Panics if called after Close has started, since that indicates a
// resource was opened during teardown of the same scope.
func (s *Scope) Defer(fn func() error) {
	if atomic.LoadUint32(&s.closed) != 0 {
		panic("cleanup: Defer called after Close")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = append(s.fns, fn)
}

// Close runs every registered release function in reverse order,
// regardless of earlier failures, and returns the first error
// encountered (wrapped so later errors aren't silently dropped from
// the log, even though only the first is returned to the caller).
func (s *Scope) Close() error {
	atomic.StoreUint32(&s.closed, 1)
	s.mu.Lock()
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()

	var first error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			if first == nil {
				first = err
			} else {
				first = xerrors.Errorf("%w (additionally: %v)", first, err)
			}
		}
	}
	return first
}
