package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vnykmshr/taskflow/pkg/metrics"
	"github.com/vnykmshr/taskflow/pkg/taskpool"
)

// Job is the unit of timed work. Due jobs are spawned detached into the
// scheduler's pool; the pool's usual cancellation and failure isolation
// apply.
type Job func(ctx context.Context) error

// Entry describes one scheduled job.
type Entry struct {
	ID       string
	RunAt    time.Time
	Interval time.Duration // Zero for one-time jobs
	Created  time.Time
}

// Scheduler spawns jobs into a taskpool.Pool at scheduled times, with cron
// support. It is a layer above the pool: the pool itself stays FIFO and
// knows nothing about deadlines.
type Scheduler interface {
	// Basic scheduling
	Schedule(id string, job Job, runAt time.Time) error
	ScheduleAfter(id string, job Job, delay time.Duration) error
	ScheduleRepeating(id string, job Job, interval time.Duration) error

	// Cron scheduling
	ScheduleCron(id string, cronExpr string, job Job) error

	// Job management
	Cancel(id string) bool
	CancelAll()
	List() []Entry

	// Lifecycle
	Start() error
	Stop() <-chan struct{}
}

// Config holds scheduler configuration.
type Config struct {
	Pool         *taskpool.Pool // Pool to spawn due jobs into; created if nil
	Name         string         // Metrics label (default "default")
	Location     *time.Location // For cron scheduling
	TickInterval time.Duration  // How often to check for due jobs (default: 50ms)
	MaxJobs      int            // Maximum number of scheduled jobs (default: 10000)
	Metrics      metrics.Config
}

type scheduledJob struct {
	id           string
	job          Job
	runAt        time.Time
	interval     time.Duration
	cronSchedule cron.Schedule
	created      time.Time
}

type scheduler struct {
	pool         *taskpool.Pool
	ownPool      bool
	name         string
	location     *time.Location
	tickInterval time.Duration
	maxJobs      int
	cronParser   cron.Parser
	reg          *metrics.Registry

	mu      sync.RWMutex
	jobs    map[string]*scheduledJob
	ticker  *time.Ticker
	done    chan struct{}
	running bool
}

// New creates a scheduler with default configuration.
func New() Scheduler {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) Scheduler {
	pool := cfg.Pool
	ownPool := false
	if pool == nil {
		p, err := taskpool.New(taskpool.Config{Threads: 4, Name: "scheduler"})
		if err != nil {
			// The literal config above is valid; this is a guard against
			// future default changes leaving the scheduler with no pool.
			p = taskpool.Default()
		} else {
			ownPool = true
		}
		pool = p
	}

	name := cfg.Name
	if name == "" {
		name = "default"
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = 50 * time.Millisecond
	}

	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = 10000
	}

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.DefaultRegistry
		if cfg.Metrics.Registry != nil {
			reg = metrics.NewRegistry(cfg.Metrics.Registry)
		}
	}

	return &scheduler{
		pool:         pool,
		ownPool:      ownPool,
		name:         name,
		location:     location,
		tickInterval: tickInterval,
		maxJobs:      maxJobs,
		cronParser:   cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		reg:          reg,
		jobs:         make(map[string]*scheduledJob),
		done:         make(chan struct{}),
	}
}

func validateJob(id string, job Job) error {
	if id == "" {
		return fmt.Errorf("job ID cannot be empty")
	}
	if len(id) > 255 {
		return fmt.Errorf("job ID too long (max 255 characters)")
	}
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}
	return nil
}

func (s *scheduler) insert(j *scheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.id]; exists {
		return fmt.Errorf("job with ID %q already exists, use a different ID or cancel the existing job first", j.id)
	}
	if len(s.jobs) >= s.maxJobs {
		return fmt.Errorf("cannot schedule job: maximum number of jobs (%d) reached", s.maxJobs)
	}

	s.jobs[j.id] = j
	return nil
}

func (s *scheduler) Schedule(id string, job Job, runAt time.Time) error {
	if err := validateJob(id, job); err != nil {
		return err
	}
	if runAt.IsZero() {
		return fmt.Errorf("job run time cannot be zero")
	}

	return s.insert(&scheduledJob{
		id:      id,
		job:     job,
		runAt:   runAt,
		created: time.Now(),
	})
}

func (s *scheduler) ScheduleAfter(id string, job Job, delay time.Duration) error {
	return s.Schedule(id, job, time.Now().Add(delay))
}

func (s *scheduler) ScheduleRepeating(id string, job Job, interval time.Duration) error {
	if err := validateJob(id, job); err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}

	return s.insert(&scheduledJob{
		id:       id,
		job:      job,
		runAt:    time.Now(),
		interval: interval,
		created:  time.Now(),
	})
}

func (s *scheduler) ScheduleCron(id string, cronExpr string, job Job) error {
	if err := validateJob(id, job); err != nil {
		return err
	}
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}

	sched, err := s.cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	now := time.Now().In(s.location)
	return s.insert(&scheduledJob{
		id:           id,
		job:          job,
		runAt:        sched.Next(now),
		cronSchedule: sched,
		created:      time.Now(),
	})
}

func (s *scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; exists {
		delete(s.jobs, id)
		return true
	}
	return false
}

func (s *scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = make(map[string]*scheduledJob)
}

func (s *scheduler) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		entries = append(entries, Entry{
			ID:       j.id,
			RunAt:    j.runAt,
			Interval: j.interval,
			Created:  j.created,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RunAt.Before(entries[j].RunAt)
	})

	return entries
}

func (s *scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running, call Stop() first")
	}

	s.running = true
	s.ticker = time.NewTicker(s.tickInterval)

	go s.run()
	return nil
}

func (s *scheduler) Stop() <-chan struct{} {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.done)
		if s.ticker != nil {
			s.ticker.Stop()
		}
	}
	s.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if s.ownPool {
			<-s.pool.Shutdown()
		}
	}()

	return stopped
}

func (s *scheduler) run() {
	defer func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			s.processDueJobs()
		}
	}
}

func (s *scheduler) processDueJobs() {
	now := time.Now()

	s.mu.Lock()
	if len(s.jobs) == 0 {
		s.mu.Unlock()
		return
	}

	due := make([]*scheduledJob, 0, len(s.jobs))

	for id, j := range s.jobs {
		if now.After(j.runAt) || now.Equal(j.runAt) {
			due = append(due, j)

			switch {
			case j.interval > 0:
				j.runAt = now.Add(j.interval)
			case j.cronSchedule != nil:
				j.runAt = j.cronSchedule.Next(now.In(s.location))
			default:
				delete(s.jobs, id)
			}
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.pool.Go(j.job).Detach()
		if s.reg != nil {
			s.reg.TasksScheduled.WithLabelValues(s.name).Inc()
		}
	}
}
