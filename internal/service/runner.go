package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/readmill/pagepress/config"
	"github.com/readmill/pagepress/internal/data"
	"github.com/readmill/pagepress/internal/domain/model"
)

// RunnerJobStore is the job store surface the batch runner needs.
type RunnerJobStore interface {
	ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.RenderJob, error)
	GetByID(ctx context.Context, id string) (*model.RenderJob, error)
}

// JobProcessor runs a single job to a terminal state.
type JobProcessor interface {
	Process(ctx context.Context, job *model.RenderJob) error
}

// RunnerOptions groups dependencies for Runner.
type RunnerOptions struct {
	Jobs      RunnerJobStore     // Required: job store
	Processor JobProcessor       // Required: job processor
	Config    config.WorkerConfig
	Logger    *slog.Logger // Optional: structured logger
}

// Runner dequeues pending render jobs oldest-first and processes them strictly
// sequentially. Per-job failures are recorded on their job rows and logged;
// they never abort the batch.
type Runner struct {
	jobs      RunnerJobStore
	processor JobProcessor
	cfg       config.WorkerConfig
	logger    *slog.Logger
}

// NewRunner constructs a new Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("processor is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "runner")
	}

	return &Runner{
		jobs:      opts.Jobs,
		processor: opts.Processor,
		cfg:       opts.Config,
		logger:    logger,
	}, nil
}

// RunBatch processes up to limit pending jobs, oldest first, and returns the
// number of jobs that reached completed.
func (r *Runner) RunBatch(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 1
	}

	jobs, err := r.jobs.ListByStatus(ctx, model.JobStatusPending, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}

	completed := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}

		if procErr := r.processor.Process(ctx, job); procErr != nil {
			// Lost claim races and recorded job failures both land here; the
			// job row carries the detail, the batch moves on.
			if r.logger != nil && !errors.Is(procErr, data.ErrJobNotClaimable) {
				r.logger.ErrorContext(ctx, "render job failed",
					"job_id", job.ID,
					"book_id", job.BookID,
					"error", procErr,
				)
			}
			continue
		}
		completed++
	}
	return completed, nil
}

// RunBook processes the single job for one book: claims it if pending, reports
// if it is already being processed elsewhere.
func (r *Runner) RunBook(ctx context.Context, jobID string) error {
	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	switch job.Status {
	case model.JobStatusPending:
		return r.processor.Process(ctx, job)
	case model.JobStatusProcessing:
		return fmt.Errorf("job %s is already being processed", jobID)
	default:
		return fmt.Errorf("job %s is %s and cannot be processed again", jobID, job.Status)
	}
}

// Watch polls for pending jobs at the configured interval until the context
// is cancelled, processing up to limit jobs per poll.
func (r *Runner) Watch(ctx context.Context, limit int) error {
	if r.logger != nil {
		r.logger.InfoContext(ctx, "runner watching for jobs", "poll_interval", r.cfg.PollInterval)
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RunBatch(ctx, limit); err != nil && !errors.Is(err, context.Canceled) {
			if r.logger != nil {
				r.logger.ErrorContext(ctx, "batch run failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
