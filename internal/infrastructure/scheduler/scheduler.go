// Package scheduler runs periodic background jobs such as the payment
// reconciliation sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobStatus represents the outcome of the last run of a job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job is one unit of periodic work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

// Name returns the job name
func (f JobFunc) Name() string { return f.JobName }

// Run calls Fn
func (f JobFunc) Run(ctx context.Context) error { return f.Fn(ctx) }

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	// Interval between the end of one run and the start of the next
	Interval time.Duration
	// JobTimeout bounds a single run
	JobTimeout time.Duration
	// RunOnStart runs the job immediately instead of waiting one interval
	RunOnStart bool
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   5 * time.Minute,
		JobTimeout: 4 * time.Minute,
		RunOnStart: true,
	}
}

// Validate validates the configuration
func (c SchedulerConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.JobTimeout < 0 {
		return fmt.Errorf("%w: job timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// RunStats describes the most recent run
type RunStats struct {
	Status      JobStatus
	Runs        int
	Failures    int
	LastError   string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Scheduler runs a single job on a fixed interval. Runs never overlap:
// a run that outlasts the interval delays the next one.
type Scheduler struct {
	config SchedulerConfig
	job    Job
	logger *zap.Logger

	trigger   chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	stats     RunStats
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, job Job, logger *zap.Logger) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:  config,
		job:     job,
		logger:  logger.With(zap.String("job", job.Name())),
		trigger: make(chan struct{}, 1),
		stats:   RunStats{Status: JobStatusPending},
	}, nil
}

// Start starts the scheduler loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to return
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

// TriggerNow requests an immediate run. A request made while one is already
// pending is coalesced.
func (s *Scheduler) TriggerNow() error {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return ErrSchedulerNotRunning
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Stats returns a snapshot of the run statistics
func (s *Scheduler) Stats() RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	if s.config.RunOnStart {
		s.runJob(ctx)
	}

	timer := time.NewTimer(s.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		s.runJob(ctx)
		timer.Reset(s.config.Interval)
	}
}

// runJob executes one run, isolating panics so the loop survives
func (s *Scheduler) runJob(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.stats.Status = JobStatusRunning
	s.stats.StartedAt = time.Now()
	s.mu.Unlock()

	runCtx := ctx
	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
		defer cancel()
	}

	err := s.safeRun(runCtx)

	s.mu.Lock()
	s.stats.Runs++
	s.stats.CompletedAt = time.Now()
	if err != nil {
		s.stats.Status = JobStatusFailed
		s.stats.Failures++
		s.stats.LastError = err.Error()
	} else {
		s.stats.Status = JobStatusSuccess
		s.stats.LastError = ""
	}
	elapsed := s.stats.CompletedAt.Sub(s.stats.StartedAt)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Job failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	s.logger.Debug("Job completed", zap.Duration("elapsed", elapsed))
}

func (s *Scheduler) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return s.job.Run(ctx)
}
