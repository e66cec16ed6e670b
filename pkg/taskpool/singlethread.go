package taskpool

import (
	"runtime"
	"sync"

	"github.com/eapache/queue"
)

// singleThread collapses the pool to one cooperative FIFO run queue. Tasks
// execute on whichever goroutine is blocked in BlockUntilDone or a scope
// join, strictly one body at a time: a driving goroutine is elected per
// tick and concurrent waiters sleep until the current body finishes. The
// driving goroutine may re-enter the tick loop from inside a body (a nested
// scope join); execution stays single-threaded because the outer body is
// suspended while inner bodies run.
type singleThread struct {
	pool *Pool

	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue // of *jobItem
	driver uint64       // goroutine id of the goroutine running a body; 0 when idle
	depth  int          // nesting depth of bodies on the driver goroutine
}

func newSingleThread(p *Pool) *singleThread {
	b := &singleThread{pool: p, q: queue.New()}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *singleThread) enqueue(it *jobItem) {
	b.mu.Lock()
	b.q.Add(it)
	b.mu.Unlock()
}

func (b *singleThread) tryTick() bool {
	return b.tick(goroutineID())
}

// tick runs one queued task if no other goroutine is mid-body. The same
// goroutine may tick again from inside a body it is already running, which
// is what lets a scope join nested in a task make progress.
func (b *singleThread) tick(gid uint64) bool {
	b.mu.Lock()
	if (b.driver != 0 && b.driver != gid) || b.q.Length() == 0 {
		b.mu.Unlock()
		return false
	}
	it := b.q.Remove().(*jobItem)
	b.driver = gid
	b.depth++
	b.mu.Unlock()

	b.pool.runJob(it)

	b.mu.Lock()
	b.depth--
	if b.depth == 0 {
		b.driver = 0
		b.cond.Broadcast()
	}
	b.mu.Unlock()
	return true
}

// waitHandle drives queued tasks on the calling goroutine until h reaches a
// terminal state. Bodies run one at a time; a waiter that loses the driver
// election sleeps until the current body finishes, then retries. The final
// receive on h.done orders the completing goroutine's writes (the task's
// value and error) before the caller's reads.
func (b *singleThread) waitHandle(h *handle) {
	gid := goroutineID()
	for !h.terminal() {
		if b.tick(gid) {
			continue
		}
		b.mu.Lock()
		if b.q.Length() == 0 {
			// Another goroutine holds the item; wait for it to finish.
			b.mu.Unlock()
			break
		}
		if b.depth > 0 && b.driver != gid {
			b.cond.Wait()
		}
		b.mu.Unlock()
	}
	<-h.done
}

func (b *singleThread) parallelism() int { return 1 }

func (b *singleThread) queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.q.Length()
}

func (b *singleThread) shutdown() {
	for {
		b.mu.Lock()
		if b.q.Length() == 0 {
			b.mu.Unlock()
			return
		}
		it := b.q.Remove().(*jobItem)
		b.mu.Unlock()
		it.h.requestCancel()
	}
}

// goroutineID extracts the calling goroutine's id from its stack header
// ("goroutine N [running]:"). The cooperative driver needs it to tell a
// nested wait on the driving goroutine apart from a concurrent wait on
// another one; the runtime exposes no cheaper portable identity.
func goroutineID() uint64 {
	var buf [32]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for _, c := range buf[len("goroutine "):n] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
