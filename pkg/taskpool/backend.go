package taskpool

// backend is the poll-to-completion capability behind a Pool, selected once
// at construction and fixed for the pool's lifetime. Spawn sites and scopes
// depend only on this interface; parallelism and blocking-wait behavior are
// the only observable differences between implementations.
type backend interface {
	// enqueue makes the item runnable. Every runnable item sits in exactly
	// one queue until a worker (or the cooperative driver) picks it up.
	enqueue(it *jobItem)

	// waitHandle blocks until h is terminal. The single-thread backend
	// drives queued tasks on the calling goroutine while it waits.
	waitHandle(h *handle)

	// tryTick runs one queued task inline if the backend supports
	// cooperative ticking.
	tryTick() bool

	parallelism() int
	queued() int

	// shutdown stops accepting work, drains what is queued, and joins any
	// workers. The pool cancels its base context before calling this.
	shutdown()
}
