package taskpool

import "sync/atomic"

// eventLoop hands each runnable to an external single-threaded scheduling
// primitive instead of owning workers. Built for environments where the
// host application already runs a loop (a UI thread, a reactor) and the
// pool must not spawn goroutines of its own.
//
// BlockUntilDone and scope joins perform a real channel wait here; they are
// safe from any goroutine except the loop goroutine itself, which must use
// Done or TryResult instead.
type eventLoop struct {
	pool     *Pool
	schedule func(func())
	backlog  atomic.Int64
}

func newEventLoop(p *Pool, schedule func(func())) *eventLoop {
	return &eventLoop{pool: p, schedule: schedule}
}

func (b *eventLoop) enqueue(it *jobItem) {
	b.backlog.Add(1)
	b.schedule(func() {
		b.backlog.Add(-1)
		b.pool.runJob(it)
	})
}

func (b *eventLoop) waitHandle(h *handle) {
	<-h.done
}

func (b *eventLoop) tryTick() bool { return false }

func (b *eventLoop) parallelism() int { return 1 }

func (b *eventLoop) queued() int { return int(b.backlog.Load()) }

// shutdown has nothing to join: the loop is externally owned. Runnables
// already handed to it still fire, but their bodies observe the cancelled
// base context and terminate as cancelled.
func (b *eventLoop) shutdown() {}
