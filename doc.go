/*
Package taskflow provides a portable task-execution core for concurrent
applications: spawn asynchronous work onto a pool of workers, a single
cooperative loop, or an external event loop, behind one API.

Task Execution (pkg/taskpool):
  - Pool: worker pool with a global injector queue and per-worker
    work-stealing deques
  - Task: cancellable handle for one unit of work
  - Scope: structured concurrency; all work spawned inside a scope
    finishes before the scope returns

Timed Spawning (pkg/schedule):
  - Scheduler: cron and interval-based spawning on top of a Pool

Metrics (pkg/metrics):
  - Prometheus instrumentation for pools and tasks

Example usage:

	import (
		"context"

		"github.com/vnykmshr/taskflow/pkg/taskpool"
	)

	pool, _ := taskpool.New(taskpool.Config{Threads: 4})
	task := taskpool.Spawn(pool, func(ctx context.Context) (int, error) {
		return 42, nil
	})

	v, err := task.BlockUntilDone()
*/
package taskflow
