package taskpool

import (
	"context"
	"errors"
	"sync/atomic"
)

// Func is the unit of work accepted by Spawn and SpawnScoped. It receives a
// context that is cancelled when the task's handle is cancelled or the pool
// shuts down; a well-behaved body checks it at its suspension points.
type Func[T any] func(ctx context.Context) (T, error)

// Task lifecycle. A task moves queued -> running -> {done, failed,
// cancelled}, or queued -> cancelled when cancelled before a worker picks
// it up. Exactly one goroutine performs the terminal transition.
const (
	stateQueued int32 = iota
	stateRunning
	stateDone
	stateFailed
	stateCancelled
)

// handle is the untyped scheduling core shared by every Task instantiation.
// The typed result lives in Task; the backends only ever see handles.
type handle struct {
	pool   *Pool
	scope  *Scope
	ctx    context.Context
	cancel context.CancelFunc

	state           atomic.Int32
	cancelRequested atomic.Bool
	detached        atomic.Bool

	done chan struct{}
	err  error // terminal error; written once before done is closed
}

func (h *handle) terminal() bool {
	switch h.state.Load() {
	case stateDone, stateFailed, stateCancelled:
		return true
	}
	return false
}

// complete records the body's outcome. Only the goroutine that moved the
// task to running calls it.
func (h *handle) complete(err error) {
	st := stateDone
	if err != nil {
		st = stateFailed
		if errors.Is(err, context.Canceled) && (h.cancelRequested.Load() || h.pool.closed.Load()) {
			st = stateCancelled
			err = ErrCancelled
		}
	}
	if !h.state.CompareAndSwap(stateRunning, st) {
		return
	}
	h.err = err
	h.cancel()
	close(h.done)
	h.pool.taskFinished(st)
}

// requestCancel cancels cooperatively: a still-queued task is dropped
// without ever running its body; a running task observes cancellation
// through its context at the next suspension point.
func (h *handle) requestCancel() {
	h.cancelRequested.Store(true)
	if h.state.CompareAndSwap(stateQueued, stateCancelled) {
		h.err = ErrCancelled
		h.cancel()
		close(h.done)
		h.pool.taskFinished(stateCancelled)
		return
	}
	h.cancel()
}

// jobItem pairs a handle with its type-erased body for the backends.
type jobItem struct {
	h    *handle
	exec func(ctx context.Context)
}

// Task is the owning handle for one spawned unit of work. It is the only
// way to await, cancel, or detach that work.
type Task[T any] struct {
	h     *handle
	value T
}

// Done returns a channel that is closed when the task reaches a terminal
// state. Useful for select-based composition and for event-loop callers
// that must not block.
func (t *Task[T]) Done() <-chan struct{} {
	return t.h.done
}

// BlockUntilDone blocks the calling goroutine until the task reaches a
// terminal state, then returns its value, the captured *TaskFailure, the
// body's error, or ErrCancelled.
//
// On the single-thread backend the wait itself drives queued tasks, so
// BlockUntilDone never deadlocks on work the pool still holds. On the
// event-loop backend it must not be called from the loop goroutine; use
// Done or TryResult there.
func (t *Task[T]) BlockUntilDone() (T, error) {
	if t.h.detached.Load() {
		panic("taskpool: awaited a detached task")
	}
	t.h.pool.backend.waitHandle(t.h)
	return t.value, t.h.err
}

// TryResult reports the task's outcome without blocking. The boolean is
// false while the task is not yet terminal.
func (t *Task[T]) TryResult() (T, bool, error) {
	if t.h.detached.Load() {
		panic("taskpool: awaited a detached task")
	}
	var zero T
	select {
	case <-t.h.done:
		return t.value, true, t.h.err
	default:
		return zero, false, nil
	}
}

// Cancel requests cooperative cancellation. A task that has not started is
// guaranteed never to run its body; a running task is interrupted at its
// next suspension point. Completed work is not rolled back.
func (t *Task[T]) Cancel() {
	t.h.requestCancel()
}

// Detach releases the caller's waiting obligation; the pool keeps driving
// the task to completion and a failure that is never awaited is dropped
// silently (it still counts in the failed-tasks metric). Detaching a scoped
// task panics: the scope owns the join.
func (t *Task[T]) Detach() {
	if t.h.scope != nil {
		panic("taskpool: cannot detach a scoped task")
	}
	t.h.detached.Store(true)
}

// Spawn enqueues self-contained work on the pool. The work must not borrow
// anything shorter-lived than the pool; use a Scope for frame-bounded work.
// The task is placed on the scheduler's queues immediately and will
// eventually be run by an idle worker.
func Spawn[T any](p *Pool, fn Func[T]) *Task[T] {
	return spawnInto(p, nil, fn)
}

func spawnInto[T any](p *Pool, s *Scope, fn Func[T]) *Task[T] {
	h := &handle{pool: p, scope: s, done: make(chan struct{})}
	h.ctx, h.cancel = context.WithCancel(p.baseCtx)

	t := &Task[T]{h: h}
	it := &jobItem{
		h: h,
		exec: func(ctx context.Context) {
			v, err := fn(ctx)
			if err == nil {
				t.value = v
			}
			h.complete(err)
		},
	}

	if s != nil {
		s.addChild(h)
	}

	if p.closed.Load() {
		if h.state.CompareAndSwap(stateQueued, stateFailed) {
			h.err = ErrPoolClosed
			h.cancel()
			close(h.done)
		}
		return t
	}

	p.taskSpawned()
	p.backend.enqueue(it)
	return t
}
