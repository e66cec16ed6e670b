// Package taskpool is a portable task-execution core: it runs units of
// asynchronous work across a pool of workers, on a single cooperative
// driver, or inside an external event loop, behind one API.
//
// A Pool is constructed once and fixed to one of three backends. Spawn
// enqueues self-contained work and returns a cancellable Task handle;
// Pool.Scope opens a structured-concurrency boundary whose children may
// borrow the enclosing frame's data, because the scope never returns
// control before all of them are terminal.
//
// Failures never cross task boundaries: a panicking body is recovered at
// the run boundary, recorded as a *TaskFailure on its own handle, and
// surfaced only when that handle is awaited or its scope joins.
//
// Basic usage:
//
//	pool, err := taskpool.New(taskpool.Config{Threads: 4})
//	if err != nil {
//		return err
//	}
//	defer pool.Shutdown()
//
//	err = pool.Scope(func(s *taskpool.Scope) {
//		for _, part := range parts {
//			part := part
//			s.Go(func(ctx context.Context) error {
//				process(ctx, part)
//				return nil
//			})
//		}
//	})
package taskpool
