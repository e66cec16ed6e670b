// Package schedule spawns jobs into a task pool at scheduled times.
//
// It composes timers on top of pkg/taskpool rather than adding deadlines to
// the pool itself: a ticker loop checks for due jobs and hands them to the
// pool as detached tasks. One-time, delayed, fixed-interval, and cron
// schedules (seconds granularity) are supported.
package schedule
