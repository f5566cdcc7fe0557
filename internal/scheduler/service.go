// Package scheduler runs periodic maintenance jobs next to the bridge
// service: audit chain verification and payout backlog reporting.
package scheduler

import (
	"context"
	"sync"
	"time"

	"zkbridge/internal/metrics"
	"zkbridge/pkg/logger"
)

// Job is a named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	nextRun time.Time
}

type Scheduler struct {
	jobs    map[string]*Job
	mu      sync.Mutex
	logger  logger.Logger
	metrics *metrics.Metrics
	tick    time.Duration
	now     func() time.Time
}

func NewScheduler(log logger.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		jobs:    make(map[string]*Job),
		logger:  log,
		metrics: m,
		tick:    time.Second,
		now:     time.Now,
	}
}

// Schedule registers job. A job with the same name is replaced. The first
// run happens on the next tick.
func (s *Scheduler) Schedule(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.nextRun = s.now()
	s.jobs[job.Name] = job
	s.logger.Info("Scheduled job", map[string]interface{}{
		"job":      job.Name,
		"interval": job.Interval.String(),
	})
}

// Run executes due jobs until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("Scheduler started", nil)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped", nil)
			return nil
		case <-ticker.C:
			s.processJobs(ctx)
		}
	}
}

func (s *Scheduler) processJobs(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*Job
	for _, job := range s.jobs {
		if !now.Before(job.nextRun) {
			due = append(due, job)
			job.nextRun = now.Add(job.Interval)
		}
	}
	s.mu.Unlock()

	// Jobs run sequentially on the scheduler goroutine so one job never
	// overlaps itself.
	for _, job := range due {
		s.execute(ctx, job)
	}
}

func (s *Scheduler) execute(ctx context.Context, job *Job) {
	start := s.now()
	err := job.Run(ctx)
	s.metrics.ObserveJob(job.Name, err)
	if err != nil {
		s.logger.Error("Scheduled job failed", map[string]interface{}{
			"job":   job.Name,
			"error": err.Error(),
		})
		return
	}
	s.logger.Debug("Scheduled job finished", map[string]interface{}{
		"job":         job.Name,
		"duration_ms": s.now().Sub(start).Milliseconds(),
	})
}
