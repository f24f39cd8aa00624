// Package scheduler runs periodic background jobs, chiefly the source
// flush.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/peterlharding/dserver/pkg/config"
	"github.com/peterlharding/dserver/pkg/logging"
)

// FlushJobName is the name of the periodic flush job.
const FlushJobName = "flush-sources"

// JobInfo describes a registered job.
type JobInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	LastRun  time.Time `json:"lastRun,omitzero"`
	NextRun  time.Time `json:"nextRun,omitzero"`
}

// Flusher is flushed by the flush job.
type Flusher interface {
	FlushAll(ctx context.Context) error
}

// Scheduler wraps a gocron scheduler. Jobs run in singleton mode: a run
// that is still going when the next one is due causes that one to be
// skipped.
type Scheduler struct {
	mu        sync.Mutex
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job
	schedules map[string]string
	logger    *slog.Logger
}

// New creates a stopped scheduler.
func New(logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: s,
		jobs:      make(map[string]gocron.Job),
		schedules: make(map[string]string),
		logger:    logger.With("component", "scheduler"),
	}, nil
}

// AddInterval registers a job that runs every interval.
func (s *Scheduler) AddInterval(name string, every time.Duration, task func()) error {
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	return s.add(name, every.String(), gocron.DurationJob(every), task)
}

// AddCron registers a job on a standard five field cron schedule.
func (s *Scheduler) AddCron(name, expr string, task func()) error {
	return s.add(name, expr, gocron.CronJob(expr, false), task)
}

func (s *Scheduler) add(name, schedule string, def gocron.JobDefinition, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduled job already exists: %s", name)
	}

	j, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("create scheduled job %s: %w", name, err)
	}

	s.jobs[name] = j
	s.schedules[name] = schedule
	s.logger.Info("scheduled job added", "name", name, "schedule", schedule)
	return nil
}

// ScheduleFlush registers the periodic flush of f described by cfg. It
// does nothing when no schedule is configured.
func (s *Scheduler) ScheduleFlush(cfg config.FlushConfig, f Flusher) error {
	task := func() {
		start := time.Now()
		if err := f.FlushAll(context.Background()); err != nil {
			s.logger.Error("periodic flush failed", "error", err)
			return
		}
		s.logger.Debug("periodic flush complete", "duration", time.Since(start))
	}

	switch {
	case cfg.Interval > 0:
		return s.AddInterval(FlushJobName, cfg.Interval, task)
	case cfg.Cron != "":
		return s.AddCron(FlushJobName, cfg.Cron, task)
	}
	return nil
}

// HasJob reports whether a job with the given name exists.
func (s *Scheduler) HasJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// ListJobs returns the registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, j := range s.jobs {
		info := JobInfo{
			ID:       j.ID().String(),
			Name:     name,
			Schedule: s.schedules[name],
		}
		if lr, err := j.LastRun(); err == nil {
			info.LastRun = lr
		}
		if nr, err := j.NextRun(); err == nil {
			info.NextRun = nr
		}
		infos = append(infos, info)
	}
	slices.SortFunc(infos, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos
}

// Start begins executing the registered jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Debug("scheduler started", "jobs", len(s.jobs))
}

// Stop shuts the scheduler down and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
