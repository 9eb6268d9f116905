package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/readmill/pagepress/internal/domain/model"
	"github.com/readmill/pagepress/internal/observability/statsd"
)

// JobStatsSource is the job store surface the stats reporter needs.
type JobStatsSource interface {
	Stats(ctx context.Context) (*model.JobStats, error)
}

// StatsReporterOptions groups dependencies for StatsReporter.
type StatsReporterOptions struct {
	Source   JobStatsSource // Required: job stats source
	Metrics  statsd.Sink    // Required: metrics sink
	Interval time.Duration  // Required: reporting interval
	Logger   *slog.Logger   // Optional: structured logger
}

// StatsReporter periodically publishes queue-depth gauges so dashboards can
// watch the pipeline without querying the database.
type StatsReporter struct {
	source   JobStatsSource
	metrics  statsd.Sink
	interval time.Duration
	logger   *slog.Logger
}

// NewStatsReporter constructs a new StatsReporter.
func NewStatsReporter(opts StatsReporterOptions) (*StatsReporter, error) {
	switch {
	case opts.Source == nil:
		return nil, errors.New("job stats source is required")
	case opts.Metrics == nil:
		return nil, errors.New("metrics sink is required")
	case opts.Interval <= 0:
		return nil, errors.New("interval must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "stats_reporter")
	}

	return &StatsReporter{
		source:   opts.Source,
		metrics:  opts.Metrics,
		interval: opts.Interval,
		logger:   logger,
	}, nil
}

// Report publishes one gauge per job state.
func (s *StatsReporter) Report(ctx context.Context) error {
	stats, err := s.source.Stats(ctx)
	if err != nil {
		return err
	}

	s.metrics.Gauge("jobs.pending", float64(stats.Pending), nil)
	s.metrics.Gauge("jobs.processing", float64(stats.Processing), nil)
	s.metrics.Gauge("jobs.completed", float64(stats.Completed), nil)
	s.metrics.Gauge("jobs.failed", float64(stats.Failed), nil)
	return nil
}

// Run reports at the configured interval until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *StatsReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.Report(ctx); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "stats report failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.Report(ctx); err != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "stats report failed", "error", err)
			}
		}
	}
}
