package taskpool

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/taskflow/internal/testutil"
)

func TestManyTasksCompleteInBoundedTime(t *testing.T) {
	// More tasks than workers, randomized but bounded durations. All must
	// finish well within the sum of durations: workers pull batches from
	// the injector and idle workers steal from loaded peers.
	pool, err := New(Config{Threads: 4, Backend: MultiThread, QueueSize: 8})
	testutil.AssertNoError(t, err)
	defer pool.Shutdown()

	const n = 200
	rng := rand.New(rand.NewSource(1))
	durations := make([]time.Duration, n)
	for i := range durations {
		durations[i] = time.Duration(rng.Intn(3)+1) * time.Millisecond
	}

	var completed atomic.Int64
	start := time.Now()

	err = pool.Scope(func(s *Scope) {
		for i := 0; i < n; i++ {
			d := durations[i]
			s.Go(func(ctx context.Context) error {
				time.Sleep(d)
				completed.Add(1)
				return nil
			})
		}
	})

	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, completed.Load(), int64(n))

	// ~600ms of total work across 4 workers; 5s is a generous bound that
	// still catches a serialized or stalled pool.
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("workload took %v, scheduling is not distributing work", elapsed)
	}
}

func TestTinyLocalDequesStillComplete(t *testing.T) {
	// QueueSize 1 leaves almost no refill headroom, forcing workers back
	// to the injector for nearly every task.
	pool, err := New(Config{Threads: 2, Backend: MultiThread, QueueSize: 1})
	testutil.AssertNoError(t, err)
	defer pool.Shutdown()

	var completed atomic.Int64
	err = pool.Scope(func(s *Scope) {
		for i := 0; i < 100; i++ {
			s.Go(func(ctx context.Context) error {
				completed.Add(1)
				return nil
			})
		}
	})

	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, completed.Load(), int64(100))
}

func TestSpawnLandsOnInjector(t *testing.T) {
	pool, err := New(Config{Threads: 2, Backend: MultiThread})
	testutil.AssertNoError(t, err)
	defer pool.Shutdown()

	started := make(chan struct{}, 2)
	gate := make(chan struct{})
	for i := 0; i < 2; i++ {
		pool.Go(func(ctx context.Context) error {
			started <- struct{}{}
			<-gate
			return nil
		}).Detach()
	}
	<-started
	<-started

	// Both workers are mid-body: fresh spawns must queue on the shared
	// injector, not in any worker's deque.
	const n = 8
	for i := 0; i < n; i++ {
		pool.Go(func(ctx context.Context) error { return nil }).Detach()
	}

	mt := pool.backend.(*multiThread)
	mt.mu.Lock()
	onInjector := mt.injector.Length()
	mt.mu.Unlock()
	testutil.AssertEqual(t, onInjector, n)

	close(gate)
}

// runParityWorkload runs the same mixed workload on a pool and returns the
// observable outcomes: values, the first scope failure, and whether all
// side effects happened before the join returned.
func runParityWorkload(t *testing.T, pool *Pool) (values []int, scopeErr error, sideEffects int64) {
	t.Helper()

	tasks := make([]*Task[int], 5)
	for i := range tasks {
		i := i
		tasks[i] = Spawn(pool, func(ctx context.Context) (int, error) {
			return i * 2, nil
		})
	}

	var effects atomic.Int64
	scopeErr = pool.Scope(func(s *Scope) {
		for i := 0; i < 10; i++ {
			i := i
			s.Go(func(ctx context.Context) error {
				effects.Add(1)
				if i == 3 {
					return errors.New("third child fails")
				}
				return nil
			})
		}
	})
	sideEffects = effects.Load()

	values = make([]int, len(tasks))
	for i, task := range tasks {
		v, err := task.BlockUntilDone()
		testutil.AssertNoError(t, err)
		values[i] = v
	}
	return values, scopeErr, sideEffects
}

func TestSingleAndMultiThreadParity(t *testing.T) {
	multi, err := New(Config{Threads: 4, Backend: MultiThread})
	testutil.AssertNoError(t, err)
	defer multi.Shutdown()

	single, err := New(Config{Backend: SingleThread})
	testutil.AssertNoError(t, err)

	mv, merr, meffects := runParityWorkload(t, multi)
	sv, serr, seffects := runParityWorkload(t, single)

	// Identical observable results; only wall-clock parallelism differs.
	testutil.AssertEqual(t, len(mv), len(sv))
	for i := range mv {
		testutil.AssertEqual(t, mv[i], sv[i])
	}
	testutil.AssertError(t, merr)
	testutil.AssertError(t, serr)
	testutil.AssertEqual(t, merr.Error(), serr.Error())
	testutil.AssertEqual(t, meffects, seffects)
}

// fakeLoop is a stand-in for an external single-threaded scheduling
// primitive: one goroutine consuming a run queue.
type fakeLoop struct {
	runnables chan func()
	stopped   chan struct{}
}

func newFakeLoop() *fakeLoop {
	l := &fakeLoop{
		runnables: make(chan func(), 1024),
		stopped:   make(chan struct{}),
	}
	go func() {
		defer close(l.stopped)
		for fn := range l.runnables {
			fn()
		}
	}()
	return l
}

func (l *fakeLoop) schedule(fn func()) { l.runnables <- fn }

func (l *fakeLoop) stop() {
	close(l.runnables)
	<-l.stopped
}

func TestEventLoopBackend(t *testing.T) {
	loop := newFakeLoop()
	defer loop.stop()

	pool, err := New(Config{Backend: EventLoop, Schedule: loop.schedule})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, pool.Backend(), EventLoop)
	testutil.AssertEqual(t, pool.Size(), 1)

	task := Spawn(pool, func(ctx context.Context) (int, error) {
		return 13, nil
	})

	// The caller is not the loop goroutine, so a blocking wait is safe.
	v, err := task.BlockUntilDone()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, 13)
}

func TestEventLoopScopeJoin(t *testing.T) {
	loop := newFakeLoop()
	defer loop.stop()

	pool, err := New(Config{Backend: EventLoop, Schedule: loop.schedule})
	testutil.AssertNoError(t, err)

	var completed atomic.Int64
	err = pool.Scope(func(s *Scope) {
		for i := 0; i < 20; i++ {
			s.Go(func(ctx context.Context) error {
				completed.Add(1)
				return nil
			})
		}
	})

	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, completed.Load(), int64(20))
}

func TestEventLoopTasksRunInSubmissionOrder(t *testing.T) {
	loop := newFakeLoop()
	defer loop.stop()

	pool, err := New(Config{Backend: EventLoop, Schedule: loop.schedule})
	testutil.AssertNoError(t, err)

	var order []int
	tasks := make([]*Task[struct{}], 5)
	for i := range tasks {
		i := i
		tasks[i] = pool.Go(func(ctx context.Context) error {
			order = append(order, i) // loop goroutine only; no race
			return nil
		})
	}
	for _, task := range tasks {
		_, err := task.BlockUntilDone()
		testutil.AssertNoError(t, err)
	}

	for i, got := range order {
		testutil.AssertEqual(t, got, i)
	}
}

func TestSingleThreadRunsOneBodyAtATime(t *testing.T) {
	pool, err := New(Config{Backend: SingleThread})
	testutil.AssertNoError(t, err)

	aStarted := make(chan struct{})
	release := make(chan struct{})
	var bRan atomic.Bool

	a := Spawn(pool, func(ctx context.Context) (int, error) {
		close(aStarted)
		<-release
		return 1, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.BlockUntilDone() //nolint:errcheck
	}()
	<-aStarted

	// a's body is mid-flight on the first waiter's goroutine. A second
	// waiter must not start another body until it finishes.
	b := Spawn(pool, func(ctx context.Context) (int, error) {
		bRan.Store(true)
		return 2, nil
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.BlockUntilDone() //nolint:errcheck
	}()

	time.Sleep(20 * time.Millisecond)
	testutil.AssertEqual(t, bRan.Load(), false)

	close(release)
	wg.Wait()
	testutil.AssertEqual(t, bRan.Load(), true)
}

func TestFailureVisibleAcrossConcurrentDrivers(t *testing.T) {
	// A waiter must never observe a terminal task before its error is
	// published, regardless of which goroutine drove the body.
	wantErr := errors.New("failed work")

	for i := 0; i < 200; i++ {
		pool, err := New(Config{Backend: SingleThread})
		testutil.AssertNoError(t, err)

		task := Spawn(pool, func(ctx context.Context) (int, error) {
			return 0, wantErr
		})

		ticked := make(chan struct{})
		go func() {
			defer close(ticked)
			for {
				select {
				case <-task.Done():
					return
				default:
					pool.TryTick()
				}
			}
		}()

		_, gotErr := task.BlockUntilDone()
		testutil.AssertEqual(t, errors.Is(gotErr, wantErr), true)
		<-ticked
	}
}

func TestInjectorFIFOWithoutStealing(t *testing.T) {
	// Single-thread backend is one logical queue: strict submission order.
	pool, err := New(Config{Backend: SingleThread})
	testutil.AssertNoError(t, err)

	var order []int
	tasks := make([]*Task[struct{}], 8)
	for i := range tasks {
		i := i
		tasks[i] = pool.Go(func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	for pool.TryTick() {
	}

	testutil.AssertEqual(t, len(order), len(tasks))
	for i, got := range order {
		testutil.AssertEqual(t, got, i)
	}
}
