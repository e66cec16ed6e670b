package taskpool

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/taskflow/pkg/metrics"
)

// BackendKind selects the execution model for a Pool. It is fixed at
// construction; every spawn and scope afterwards goes through the same
// backend, so callers observe one API regardless of the choice.
type BackendKind int

const (
	// Auto picks MultiThread when more than one worker is configured,
	// SingleThread otherwise.
	Auto BackendKind = iota

	// MultiThread runs tasks on a fixed set of worker goroutines with a
	// global injector queue and per-worker work-stealing deques.
	MultiThread

	// SingleThread runs tasks cooperatively on whichever goroutine is
	// blocked waiting for a result. Identical external semantics, zero
	// parallelism.
	SingleThread

	// EventLoop hands every runnable to an external single-threaded
	// scheduling primitive supplied via Config.Schedule.
	EventLoop
)

// Config holds construction options for a Pool.
type Config struct {
	// Threads is the number of workers. Zero means runtime.GOMAXPROCS(0)
	// for the multi-thread backend and 1 for the single-thread backends.
	Threads int

	// Name labels the pool in metrics and diagnostics.
	Name string

	// Backend fixes the execution model. Default Auto.
	Backend BackendKind

	// QueueSize bounds each worker's local deque (MultiThread only).
	// Spawns land on the shared injector; workers refill their deques
	// from it in bounded batches. Default 256.
	QueueSize int

	// Schedule hands a runnable to an external single-threaded loop.
	// Required for the EventLoop backend, ignored otherwise.
	Schedule func(func())

	// Metrics configures Prometheus instrumentation.
	Metrics metrics.Config
}

// Pool owns the workers (or the cooperative run queue) that execute spawned
// tasks. Create one with New, or use the process-wide Default pool.
type Pool struct {
	name    string
	kind    BackendKind
	backend backend

	baseCtx    context.Context
	baseCancel context.CancelFunc

	reg *metrics.Registry

	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownDone chan struct{}

	spawned  atomic.Int64
	finished atomic.Int64
}

// New constructs a pool and starts its workers. Configuration problems are
// reported here, never at spawn time: a negative thread count or a
// mismatched backend/thread combination returns a *ConfigError, and an
// EventLoop request without a Schedule hook returns ErrBackendUnavailable.
func New(cfg Config) (*Pool, error) {
	kind := cfg.Backend

	threads := cfg.Threads
	if threads == 0 {
		if kind == SingleThread || kind == EventLoop {
			threads = 1
		} else {
			threads = runtime.GOMAXPROCS(0)
		}
	}
	if threads < 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("thread count must be positive, got %d", cfg.Threads)}
	}

	if kind == Auto {
		if threads > 1 {
			kind = MultiThread
		} else {
			kind = SingleThread
		}
	}

	queueSize := cfg.QueueSize
	if queueSize == 0 {
		queueSize = 256
	}
	if queueSize < 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("queue size must be positive, got %d", cfg.QueueSize)}
	}

	name := cfg.Name
	if name == "" {
		name = "default"
	}

	p := &Pool{name: name, kind: kind}
	p.baseCtx, p.baseCancel = context.WithCancel(context.Background())

	if cfg.Metrics.Enabled {
		reg := metrics.DefaultRegistry
		if cfg.Metrics.Registry != nil {
			reg = metrics.NewRegistry(cfg.Metrics.Registry)
		}
		p.reg = reg
	}

	switch kind {
	case MultiThread:
		p.backend = newMultiThread(p, threads, queueSize)
	case SingleThread:
		if threads != 1 {
			return nil, &ConfigError{Reason: fmt.Sprintf("single-thread backend requires exactly one worker, got %d", threads)}
		}
		p.backend = newSingleThread(p)
	case EventLoop:
		if cfg.Schedule == nil {
			return nil, fmt.Errorf("%w: event-loop backend needs a Schedule hook", ErrBackendUnavailable)
		}
		p.backend = newEventLoop(p, cfg.Schedule)
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown backend %d", cfg.Backend)}
	}

	if p.reg != nil {
		p.reg.PoolWorkers.WithLabelValues(p.name).Set(float64(p.backend.parallelism()))
	}

	return p, nil
}

// Go spawns error-only work; a convenience over Spawn for bodies that
// produce no value.
func (p *Pool) Go(fn func(ctx context.Context) error) *Task[struct{}] {
	return Spawn(p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

// Name returns the pool's diagnostic label.
func (p *Pool) Name() string { return p.name }

// Backend returns the execution model the pool was constructed with.
func (p *Pool) Backend() BackendKind { return p.kind }

// Size returns the number of workers.
func (p *Pool) Size() int { return p.backend.parallelism() }

// QueueSize returns the current number of queued tasks waiting for
// execution across the injector and all local deques.
func (p *Pool) QueueSize() int { return p.backend.queued() }

// TotalSpawned returns the total number of tasks spawned into the pool.
func (p *Pool) TotalSpawned() int64 { return p.spawned.Load() }

// TotalFinished returns the total number of tasks that reached a terminal
// state (completed, failed, or cancelled).
func (p *Pool) TotalFinished() int64 { return p.finished.Load() }

// TryTick runs one queued task on the calling goroutine if any is ready.
// Only the single-thread backend supports ticking; other backends report
// false, as does a tick attempted while another goroutine is mid-task.
func (p *Pool) TryTick() bool {
	return p.backend.tryTick()
}

// Shutdown initiates a graceful teardown: the pool's base context is
// cancelled so running and still-queued bodies observe cancellation,
// remaining queued work is drained, and workers are joined. The returned
// channel closes when teardown is complete. Tasks spawned afterwards fail
// immediately with ErrPoolClosed.
func (p *Pool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		p.shutdownDone = make(chan struct{})
		p.closed.Store(true)
		p.baseCancel()

		go func() {
			p.backend.shutdown()
			close(p.shutdownDone)
		}()
	})

	return p.shutdownDone
}

// runJob executes one unit of work with panic isolation. A task cancelled
// before this point never runs its body: the queued->running transition
// fails and the item is dropped.
func (p *Pool) runJob(it *jobItem) {
	h := it.h
	if !h.state.CompareAndSwap(stateQueued, stateRunning) {
		return
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.complete(&TaskFailure{Recovered: r, Stack: debug.Stack()})
		}
		if p.reg != nil {
			p.reg.TaskRunDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
		}
	}()

	it.exec(h.ctx)
}

func (p *Pool) taskSpawned() {
	p.spawned.Add(1)
	if p.reg != nil {
		p.reg.TasksSpawned.WithLabelValues(p.name).Inc()
		p.reg.PoolQueued.WithLabelValues(p.name).Set(float64(p.backend.queued()))
	}
}

func (p *Pool) taskFinished(st int32) {
	p.finished.Add(1)
	if p.reg == nil {
		return
	}
	switch st {
	case stateDone:
		p.reg.TasksCompleted.WithLabelValues(p.name).Inc()
	case stateFailed:
		p.reg.TasksFailed.WithLabelValues(p.name).Inc()
	case stateCancelled:
		p.reg.TasksCancelled.WithLabelValues(p.name).Inc()
	}
	p.reg.PoolQueued.WithLabelValues(p.name).Set(float64(p.backend.queued()))
}

var (
	defaultPool *Pool
	defaultOnce sync.Once
)

// Default returns the process-wide pool, lazily constructed with the default
// configuration on first use. Its lifetime spans the process; normal callers
// never shut it down.
func Default() *Pool {
	defaultOnce.Do(func() {
		p, err := New(Config{Name: "default"})
		if err != nil {
			// Default configuration is always valid.
			panic(err)
		}
		defaultPool = p
	})
	return defaultPool
}
