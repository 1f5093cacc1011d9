package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-inventory-holds/internal/logger"
	"github.com/ariefcatur/go-inventory-holds/internal/metrics"
)

const DefaultInterval = 60 * time.Second

// Job is one pass of work executed on every sweep cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// ServiceParams configure the sweeper. Jobs run in the given order.
type ServiceParams struct {
	Logger   *logger.Logger
	Jobs     []Job
	Lock     Lock
	Metrics  *metrics.SweepMetrics
	Interval time.Duration
}

// JobResult is the outcome of one job within a cycle.
type JobResult struct {
	Job      string
	Duration time.Duration
	Err      error
}

// CycleReport summarizes a cycle. Skipped is set when another instance
// held the lock and no job ran.
type CycleReport struct {
	Skipped bool
	Results []JobResult
}

// Failed counts the jobs that returned an error.
func (r CycleReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Service drives the expiry jobs on a fixed cadence, one cycle at a time
// across every instance sharing the lock.
type Service struct {
	logg     *logger.Logger
	jobs     []Job
	lock     Lock
	metrics  *metrics.SweepMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	seen := make(map[string]bool, len(params.Jobs))
	jobs := make([]Job, 0, len(params.Jobs))
	for _, job := range params.Jobs {
		if job == nil {
			continue
		}
		if seen[job.Name()] {
			return nil, fmt.Errorf("duplicate sweep job %q", job.Name())
		}
		seen[job.Name()] = true
		jobs = append(jobs, job)
	}
	lock := params.Lock
	if lock == nil {
		lock = &LocalLock{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		logg:     params.Logger,
		jobs:     jobs,
		lock:     lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run sweeps immediately, then once per interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		report, err := s.RunCycle(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "sweep cycle failed", err)
		case report.Failed() > 0:
			s.logg.Warn(s.logg.WithField(ctx, "failed_jobs", report.Failed()), "sweep cycle finished with failures")
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle runs every job once under the sweep lock. A failing job never
// stops the ones after it; the error is only returned for lock failures.
func (s *Service) RunCycle(ctx context.Context) (CycleReport, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return CycleReport{}, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !locked {
		s.logg.Debug(ctx, "sweep lock held elsewhere; skipping cycle")
		return CycleReport{Skipped: true}, nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "failed to release sweep lock", err)
		}
	}()

	report := CycleReport{Results: make([]JobResult, 0, len(s.jobs))}
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			break
		}
		report.Results = append(report.Results, s.runJob(ctx, job))
	}
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) JobResult {
	name := job.Name()
	jobCtx := s.logg.WithField(ctx, "job", name)
	start := time.Now()
	err := job.Run(jobCtx)
	res := JobResult{Job: name, Duration: time.Since(start), Err: err}

	s.metrics.ObserveDuration(name, res.Duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", res.Duration.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(jobCtx, "sweep job failed", err)
		return res
	}
	s.metrics.IncSuccess(name)
	s.logg.Debug(jobCtx, "sweep job done")
	return res
}
