// Package scheduler runs the periodic background jobs. Each job runs
// without overlapping itself, survives panics and errors, and reports
// liveness metrics.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/RezaTaheri01/telegram-store-bot/internal/metrics"
)

// JobFunc is one iteration of a job.
type JobFunc func(ctx context.Context) error

type entry struct {
	job   gocron.Job
	fn    JobFunc
	every time.Duration
}

// Supervisor owns a gocron scheduler and the jobs registered on it.
type Supervisor struct {
	sched            gocron.Scheduler
	ctx              context.Context
	cancel           context.CancelFunc
	startImmediately bool
	log              *slog.Logger

	mu   sync.Mutex
	jobs map[string]*entry
}

func New(log *slog.Logger, startImmediately bool) (*Supervisor, error) {
	if log == nil {
		log = slog.Default()
	}
	sched, err := gocron.NewScheduler(gocron.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		sched:            sched,
		ctx:              ctx,
		cancel:           cancel,
		startImmediately: startImmediately,
		log:              log,
		jobs:             make(map[string]*entry),
	}, nil
}

// Register adds a job that runs fn every interval. A run that is still
// going when the next one is due pushes that one back.
func (s *Supervisor) Register(name string, every time.Duration, fn JobFunc) error {
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %s already registered", name)
	}
	job, err := s.sched.NewJob(gocron.DurationJob(every), s.task(name, fn), s.options(name)...)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	s.jobs[name] = &entry{job: job, fn: fn, every: every}
	s.log.Info("job registered", "job", name, "every", every.String())
	return nil
}

// Reschedule changes a job's interval. An unchanged interval is a no-op.
func (s *Supervisor) Reschedule(name string, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	if e.every == every {
		return nil
	}
	job, err := s.sched.Update(e.job.ID(), gocron.DurationJob(every), s.task(name, e.fn), s.options(name)...)
	if err != nil {
		return fmt.Errorf("reschedule job %s: %w", name, err)
	}
	e.job, e.every = job, every
	s.log.Info("job rescheduled", "job", name, "every", every.String())
	return nil
}

// RunNow triggers an out-of-band run of the job. Singleton mode still
// applies, so it never overlaps a running iteration.
func (s *Supervisor) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	return e.job.RunNow()
}

func (s *Supervisor) Start() { s.sched.Start() }

// Shutdown cancels running iterations and waits for them to return.
func (s *Supervisor) Shutdown() error {
	s.cancel()
	return s.sched.Shutdown()
}

func (s *Supervisor) task(name string, fn JobFunc) gocron.Task {
	return gocron.NewTask(func() { s.run(name, fn) })
}

func (s *Supervisor) options(name string) []gocron.JobOption {
	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if s.startImmediately {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	return opts
}

// run executes one iteration. Errors and panics end the iteration only.
func (s *Supervisor) run(name string, fn JobFunc) {
	start := time.Now()
	metrics.JobRunning.WithLabelValues(name).Set(1)
	defer func() {
		metrics.JobRunning.WithLabelValues(name).Set(0)
		metrics.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			metrics.JobRuns.WithLabelValues(name, "panic").Inc()
			s.log.Error("job panicked", "job", name, "panic", fmt.Sprint(r))
		}
	}()

	if err := fn(s.ctx); err != nil {
		metrics.JobRuns.WithLabelValues(name, "error").Inc()
		s.log.Warn("job iteration failed", "job", name, "error", err)
		return
	}
	metrics.JobRuns.WithLabelValues(name, "ok").Inc()
	metrics.JobLastSuccess.WithLabelValues(name).SetToCurrentTime()
}
