package taskpool

import (
	"context"
	"errors"
	"sync"
)

type scopeState int

const (
	scopeOpen scopeState = iota
	scopeDraining
	scopeClosed
)

// Scope is a structured-concurrency boundary. Work spawned into it may
// safely reference the enclosing call's data: the scope guarantees that
// every child reaches a terminal state before control returns to the
// caller, on every exit path, so nothing spawned inside outlives the frame.
//
// A scope's bookkeeping assumes a single spawning goroutine. The spawned
// tasks run on any worker, but concurrent spawns into the same scope must
// be synchronized externally.
type Scope struct {
	pool *Pool

	mu       sync.Mutex
	state    scopeState
	children []*handle // in spawn order, for stable failure tie-break
}

// Scope creates a scope, runs fn with it, then blocks until every task
// spawned within the scope is terminal. It returns the first captured
// failure among the children in their original spawn order, or nil. The
// drain is unconditional: a panic out of fn is re-raised only after all
// children have finished, so scope-borrowed data is never left referenced.
func (p *Pool) Scope(fn func(s *Scope)) error {
	s := &Scope{pool: p, state: scopeOpen}
	if p.reg != nil {
		p.reg.ScopesOpened.WithLabelValues(p.name).Inc()
	}

	var panicked interface{}
	didPanic := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = r
				didPanic = true
			}
		}()
		fn(s)
	}()

	err := s.drain()
	if didPanic {
		panic(panicked)
	}
	return err
}

// ScopeResult is Pool.Scope for closures that produce a value. The value is
// returned alongside the scope's join result, after every child is
// terminal.
func ScopeResult[R any](p *Pool, fn func(s *Scope) R) (R, error) {
	var out R
	err := p.Scope(func(s *Scope) {
		out = fn(s)
	})
	return out, err
}

// SpawnScoped spawns work whose lifetime is bounded by s. Scheduling is
// identical to Spawn; the handle is additionally recorded in the scope so
// the join waits for it. The work may reference the frame that owns the
// scope.
func SpawnScoped[T any](s *Scope, fn Func[T]) *Task[T] {
	return spawnInto(s.pool, s, fn)
}

// Go spawns error-only work into the scope.
func (s *Scope) Go(fn func(ctx context.Context) error) *Task[struct{}] {
	return SpawnScoped(s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

// Pool returns the pool driving this scope's children.
func (s *Scope) Pool() *Pool { return s.pool }

func (s *Scope) addChild(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != scopeOpen {
		panic("taskpool: spawn into a scope that is already draining")
	}
	s.children = append(s.children, h)
}

// drain transitions open -> draining exactly once, waits for every child to
// reach a terminal state, transitions to closed, and reports the first
// failure in spawn order. Cancelled children are not failures; sibling
// cancellation is never short-circuited.
func (s *Scope) drain() error {
	s.mu.Lock()
	if s.state == scopeOpen {
		s.state = scopeDraining
	}
	children := s.children
	s.mu.Unlock()

	for _, h := range children {
		s.pool.backend.waitHandle(h)
	}

	s.mu.Lock()
	s.state = scopeClosed
	s.mu.Unlock()

	if s.pool.reg != nil {
		s.pool.reg.ScopesClosed.WithLabelValues(s.pool.name).Inc()
	}

	for _, h := range children {
		if h.err != nil && !errors.Is(h.err, ErrCancelled) {
			return h.err
		}
	}
	return nil
}
