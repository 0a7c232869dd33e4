package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/bioshop-backend/pkg/logger"
)

const defaultInterval = 24 * time.Hour

type runRecorder interface {
	ObserveRun(job string, elapsed time.Duration, err error)
}

type RunnerParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  runRecorder
	Interval time.Duration
}

// Runner executes every registered job once per interval while holding the lock.
type Runner struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  runRecorder
	interval time.Duration
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Runner{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run runs a cycle immediately, then on every tick until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.cycle(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logg.Info(ctx, "maintenance runner stopping")
			return ctx.Err()
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

func (r *Runner) cycle(ctx context.Context) {
	if err := r.runCycle(ctx); err != nil {
		r.logg.Error(ctx, "maintenance cycle failed", err)
	}
}

// runCycle is a no-op when another worker holds the lock.
func (r *Runner) runCycle(ctx context.Context) error {
	held, err := r.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !held {
		r.logg.Info(ctx, "maintenance lock held elsewhere; skipping cycle")
		return nil
	}
	defer func() {
		if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
			r.logg.Error(ctx, "failed to release maintenance lock", err)
		}
	}()

	for _, job := range r.registry.Jobs() {
		r.runJob(ctx, job)
	}
	return nil
}

func (r *Runner) runJob(ctx context.Context, job Job) {
	jobCtx := r.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "maintenance.job",
	})
	start := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(start)
	if r.metrics != nil {
		r.metrics.ObserveRun(job.Name(), elapsed, err)
	}
	jobCtx = r.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		r.logg.Error(jobCtx, "job failed", err)
		return
	}
	r.logg.Info(jobCtx, "job completed")
}
