package taskpool

import (
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/vnykmshr/taskflow/internal/deque"
)

// multiThread runs tasks on a fixed set of worker goroutines. Spawned work
// lands on a shared injector FIFO; an idle worker pops its own bounded
// deque first (LIFO, for locality), then refills a batch from the injector,
// then steals half of a random peer's deque. A worker that completes a full
// sweep without finding work parks on the pool's condition variable until a
// new-task signal or shutdown.
type multiThread struct {
	pool    *Pool
	workers []*mtWorker

	mu       sync.Mutex
	cond     *sync.Cond
	injector *queue.Queue // of *jobItem, guarded by mu
	stopping bool

	// pending counts runnable items across all queues. Workers park only
	// when it reaches zero, which closes the missed-wakeup window between
	// a failed sweep and a concurrent enqueue.
	pending atomic.Int64

	wg sync.WaitGroup
}

type mtWorker struct {
	id    int
	b     *multiThread
	local *deque.Deque[*jobItem]
	rng   *rand.Rand // victim selection; owned by this worker's goroutine
}

func newMultiThread(p *Pool, threads, queueSize int) *multiThread {
	b := &multiThread{
		pool:     p,
		injector: queue.New(),
	}
	b.cond = sync.NewCond(&b.mu)

	b.workers = make([]*mtWorker, threads)
	for i := range b.workers {
		b.workers[i] = &mtWorker{
			id:    i,
			b:     b,
			local: deque.New[*jobItem](queueSize),
			rng:   rand.New(rand.NewSource(int64(i) + 1)),
		}
	}

	for _, w := range b.workers {
		b.wg.Add(1)
		go w.run()
	}

	return b
}

func (b *multiThread) enqueue(it *jobItem) {
	b.pending.Add(1)
	b.mu.Lock()
	b.injector.Add(it)
	b.cond.Signal()
	b.mu.Unlock()
}

func (b *multiThread) signal() {
	b.mu.Lock()
	b.cond.Signal()
	b.mu.Unlock()
}

func (b *multiThread) popInjector() *jobItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.injector.Length() == 0 {
		return nil
	}
	return b.injector.Remove().(*jobItem)
}

func (b *multiThread) waitHandle(h *handle) {
	<-h.done
}

func (b *multiThread) tryTick() bool { return false }

func (b *multiThread) parallelism() int { return len(b.workers) }

func (b *multiThread) queued() int {
	b.mu.Lock()
	n := b.injector.Length()
	b.mu.Unlock()
	for _, w := range b.workers {
		n += w.local.Len()
	}
	return n
}

// shutdown joins the workers, then cancels whatever work slipped into the
// queues during teardown. Workers keep serving queued items until their
// queues are empty, so a graceful shutdown drains rather than abandons; the
// pool's base context is already cancelled, which is what stops long bodies.
func (b *multiThread) shutdown() {
	b.mu.Lock()
	b.stopping = true
	b.cond.Broadcast()
	b.mu.Unlock()

	b.wg.Wait()

	for {
		it := b.popInjector()
		if it == nil {
			break
		}
		b.pending.Add(-1)
		it.h.requestCancel()
	}
	for _, w := range b.workers {
		for {
			it, ok := w.local.PopBottom()
			if !ok {
				break
			}
			b.pending.Add(-1)
			it.h.requestCancel()
		}
	}
}

func (w *mtWorker) run() {
	b := w.b
	defer b.wg.Done()

	for {
		it := w.next()
		if it == nil {
			return
		}
		b.pending.Add(-1)
		b.pool.runJob(it)
	}
}

// next returns the next runnable item: local deque, then an injector
// refill, then a steal sweep over peers. A full failed sweep parks the
// worker; a nil return means the backend is shutting down with nothing left
// to serve.
func (w *mtWorker) next() *jobItem {
	b := w.b
	for {
		if it, ok := w.local.PopBottom(); ok {
			return it
		}
		if it := w.refill(); it != nil {
			return it
		}
		if it := w.steal(); it != nil {
			return it
		}

		b.mu.Lock()
		if b.stopping {
			b.mu.Unlock()
			return nil
		}
		if b.injector.Length() > 0 {
			it := b.injector.Remove().(*jobItem)
			b.mu.Unlock()
			return it
		}
		if b.pending.Load() == 0 {
			b.cond.Wait()
		}
		b.mu.Unlock()

		// pending > 0 with an empty sweep means an enqueue is mid-flight
		// or an item sits in a peer deque that a racing steal emptied.
		runtime.Gosched()
	}
}

// refill takes the injector's head and moves up to half of the remainder
// into the worker's own deque, so subsequent pops skip the shared lock.
// Items the deque cannot hold stay on the injector.
func (w *mtWorker) refill() *jobItem {
	b := w.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.injector.Length() == 0 {
		return nil
	}
	first := b.injector.Remove().(*jobItem)

	take := b.injector.Length() / 2
	if room := w.local.Cap() - w.local.Len(); take > room {
		take = room
	}
	for i := 0; i < take; i++ {
		it := b.injector.Remove().(*jobItem)
		if !w.local.PushBottom(it) {
			b.injector.Add(it)
			break
		}
	}
	return first
}

// steal sweeps peers in random order and takes half of the first non-empty
// deque. The first stolen item is run directly; the rest land on this
// worker's own deque, overflowing to the injector if it fills.
func (w *mtWorker) steal() *jobItem {
	peers := w.b.workers
	offset := w.rng.Intn(len(peers))

	for i := 0; i < len(peers); i++ {
		victim := peers[(offset+i)%len(peers)]
		if victim == w {
			continue
		}
		first, rest, ok := victim.local.Steal()
		if !ok {
			continue
		}
		for _, it := range rest {
			if !w.local.PushBottom(it) {
				w.b.mu.Lock()
				w.b.injector.Add(it)
				w.b.mu.Unlock()
			}
		}
		if len(rest) > 0 {
			w.b.signal()
		}
		return first
	}
	return nil
}
