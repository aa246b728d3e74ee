// Package scheduler runs background jobs on fixed schedules. The
// progression engine uses it for the periodic rarity scan; the design is
// generic so future maintenance jobs slot in without new machinery.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Common scheduler errors.
var (
	ErrNilJob           = errors.New("job cannot be nil")
	ErrNilSchedule      = errors.New("schedule cannot be nil")
	ErrDuplicateJob     = errors.New("job with this name already registered")
	ErrJobNotFound      = errors.New("job not found")
	ErrAlreadyRunning   = errors.New("scheduler already running")
	ErrSchedulerStopped = errors.New("scheduler is stopped")
)

// Job is a unit of background work.
type Job interface {
	// Name returns a unique job identifier.
	Name() string

	// Run executes the job. The scheduler cancels ctx on shutdown.
	Run(ctx context.Context) error
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the next run time strictly after t.
	Next(t time.Time) time.Time

	// String describes the schedule for logs.
	String() string
}

// JobInfo is a point-in-time snapshot of a registered job's state.
type JobInfo struct {
	Name     string
	Schedule string
	LastRun  time.Time
	NextRun  time.Time
	RunCount int64
	FailedAt time.Time
	LastErr  string
	Running  bool
}

// scheduledJob carries per-job bookkeeping. Guarded by Scheduler.mu.
type scheduledJob struct {
	job      Job
	schedule Schedule
	lastRun  time.Time
	nextRun  time.Time
	runCount int64
	failedAt time.Time
	lastErr  error
	running  bool
}

// Scheduler runs registered jobs when their schedules fire.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*scheduledJob
	logger  *slog.Logger
	tick    time.Duration
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTick sets the poll interval. Schedules fire with at most one tick
// of lateness, so the tick bounds scheduling precision.
func WithTick(tick time.Duration) Option {
	return func(s *Scheduler) {
		if tick > 0 {
			s.tick = tick
		}
	}
}

// New creates a scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:   make(map[string]*scheduledJob),
		logger: slog.Default(),
		tick:   time.Second,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job. The first run happens at schedule.Next(now).
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	s.jobs[name] = &scheduledJob{
		job:      job,
		schedule: schedule,
		nextRun:  schedule.Next(time.Now().UTC()),
	}

	s.logger.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"next_run", s.jobs[name].nextRun.Format(time.RFC3339))
	return nil
}

// Start launches the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler started", "tick", s.tick.String())

	s.wg.Add(1)
	go s.runLoop(ctx)
	return nil
}

// Stop halts scheduling and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunNow triggers a job immediately, outside its schedule. The scheduled
// next run is unaffected.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	sj, exists := s.jobs[name]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	if sj.running {
		s.mu.Unlock()
		return nil
	}
	sj.running = true
	s.mu.Unlock()

	s.executeJob(ctx, sj)
	return nil
}

// ListJobs returns snapshots of all registered jobs, soonest first.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		info := JobInfo{
			Name:     name,
			Schedule: sj.schedule.String(),
			LastRun:  sj.lastRun,
			NextRun:  sj.nextRun,
			RunCount: sj.runCount,
			FailedAt: sj.failedAt,
			Running:  sj.running,
		}
		if sj.lastErr != nil {
			info.LastErr = sj.lastErr.Error()
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].NextRun.Before(infos[j].NextRun)
	})
	return infos
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue launches every due job that is not already running.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := time.Now().UTC()

	s.mu.Lock()
	var due []*scheduledJob
	for _, sj := range s.jobs {
		if sj.running || sj.nextRun.After(now) {
			continue
		}
		sj.running = true
		sj.nextRun = sj.schedule.Next(now)
		due = append(due, sj)
	}
	s.mu.Unlock()

	for _, sj := range due {
		sj := sj
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.executeJob(ctx, sj)
		}()
	}
}

func (s *Scheduler) executeJob(ctx context.Context, sj *scheduledJob) {
	name := sj.job.Name()
	// Run id correlates the start/finish log lines of one execution.
	runID := uuid.NewString()
	start := time.Now()

	s.logger.Info("job started", "job", name, "run_id", runID)
	err := s.runSafely(ctx, sj.job)
	duration := time.Since(start)

	s.mu.Lock()
	sj.running = false
	sj.lastRun = start.UTC()
	sj.runCount++
	sj.lastErr = err
	if err != nil {
		sj.failedAt = start.UTC()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed",
			"job", name, "run_id", runID, "duration", duration.String(), "error", err)
		return
	}
	s.logger.Info("job completed", "job", name, "run_id", runID, "duration", duration.String())
}

// runSafely converts a job panic into an error so one bad job cannot take
// down the scheduler.
func (s *Scheduler) runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}
