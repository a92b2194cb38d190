// Package pipeline runs the background jobs of a scanning deployment: the
// scan loop, discovery refresh, reference price feed, and cold-storage
// archival, composed under one errgroup.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Job is a long-running pipeline goroutine. Run blocks until the context is
// cancelled or the job fails.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type jobFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (j jobFunc) Name() string                  { return j.name }
func (j jobFunc) Run(ctx context.Context) error { return j.fn(ctx) }

// JobFunc wraps fn as a named Job.
func JobFunc(name string, fn func(ctx context.Context) error) Job {
	return jobFunc{name: name, fn: fn}
}

// Orchestrator manages all pipeline goroutines. If any job returns a
// non-context error, the errgroup cancels the shared context and Run returns
// that error.
type Orchestrator struct {
	jobs   []Job
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator coordinating the given jobs.
func NewOrchestrator(logger *slog.Logger, jobs ...Job) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		jobs:   jobs,
		logger: logger.With(slog.String("component", "pipeline")),
	}
}

// Run starts all jobs as concurrent goroutines using an errgroup. Each
// goroutine respects ctx cancellation.
func (o *Orchestrator) Run(ctx context.Context) error {
	names := make([]string, len(o.jobs))
	for i, job := range o.jobs {
		names[i] = job.Name()
	}
	o.logger.Info("pipeline starting", slog.Any("jobs", names))

	g, ctx := errgroup.WithContext(ctx)

	for _, job := range o.jobs {
		g.Go(func() error {
			o.logger.Info("starting pipeline job", slog.String("job", job.Name()))
			err := job.Run(ctx)
			if ctx.Err() != nil || err == nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("%s: %w", job.Name(), err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline stopped cleanly")
	return nil
}
