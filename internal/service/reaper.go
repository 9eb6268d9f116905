package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/readmill/pagepress/config"
	"github.com/readmill/pagepress/internal/observability/statsd"
)

// ReaperRepository is the job store surface the reaper needs.
type ReaperRepository interface {
	FailStaleProcessingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    ReaperRepository    // Required: reaper repository
	Config  config.ReaperConfig // Required: reaper configuration
	Logger  *slog.Logger        // Optional: structured logger
	Metrics statsd.Sink         // Optional: metrics sink
}

// ReaperService fails render jobs abandoned in processing. A worker killed
// mid-run has no way back to pending, so without the reaper the job wedges its
// book's active slot and the producer refuses to enqueue a fresh render.
type ReaperService struct {
	repo    ReaperRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("reaper repository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
	}

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Sweep performs one cleanup pass, draining in batches until a pass touches
// nothing. Returns the total number of jobs failed.
func (s *ReaperService) Sweep(ctx context.Context) (int64, error) {
	var total int64
	for {
		count, err := s.repo.FailStaleProcessingJobs(ctx, s.config.ProcessingMaxAge, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			break
		}
	}

	if total > 0 {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "reaped stale processing jobs",
				"count", total,
				"max_age", s.config.ProcessingMaxAge,
			)
		}
		if s.metrics != nil {
			s.metrics.Count("jobs.reaped", total, nil)
		}
	}
	return total, nil
}

// Run sweeps at the configured interval until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.Sweep(ctx); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "reaper sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "reaper sweep failed", "error", err)
			}
		}
	}
}
