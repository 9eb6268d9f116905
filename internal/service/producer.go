// Package service orchestrates the page-rendering pipeline: producing jobs,
// processing them, and reaping the ones a crashed worker left behind.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/readmill/pagepress/internal/data"
	"github.com/readmill/pagepress/internal/domain/model"
)

// ProducerJobStore is the job store surface the producer needs.
type ProducerJobStore interface {
	LatestForBook(ctx context.Context, bookID int64) (*model.RenderJob, error)
	Create(ctx context.Context, bookID int64) (*model.RenderJob, error)
}

// ProducerServiceOptions groups dependencies for ProducerService.
type ProducerServiceOptions struct {
	Jobs   ProducerJobStore // Required: job store
	Logger *slog.Logger     // Optional: structured logger
}

// ProducerService guarantees at most one active render job per book: asking
// for a render while one is pending or processing hands back the existing job
// instead of creating a duplicate.
type ProducerService struct {
	jobs   ProducerJobStore
	logger *slog.Logger
}

// NewProducerService constructs a new ProducerService.
func NewProducerService(opts ProducerServiceOptions) (*ProducerService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("job store is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "producer_service")
	}

	return &ProducerService{jobs: opts.Jobs, logger: logger}, nil
}

// EnsureJob returns the id of the book's active render job, creating a new
// pending one when the latest job is terminal or none exists. The database's
// partial unique index backs this up, so the read-then-create race between two
// concurrent callers resolves to a single job id for both.
func (s *ProducerService) EnsureJob(ctx context.Context, bookID int64) (string, error) {
	latest, err := s.jobs.LatestForBook(ctx, bookID)
	if err != nil && !errors.Is(err, data.ErrJobNotFound) {
		return "", fmt.Errorf("look up latest job for book %d: %w", bookID, err)
	}
	if latest != nil && latest.Active() {
		return latest.ID, nil
	}

	created, err := s.jobs.Create(ctx, bookID)
	if errors.Is(err, data.ErrActiveJobExists) {
		// Lost the race to another producer; the winner's job is the active one.
		active, lookupErr := s.jobs.LatestForBook(ctx, bookID)
		if lookupErr != nil {
			return "", fmt.Errorf("look up winning job for book %d: %w", bookID, lookupErr)
		}
		if !active.Active() {
			return "", fmt.Errorf("book %d: %w", bookID, err)
		}
		return active.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("create job for book %d: %w", bookID, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "render job created", "job_id", created.ID, "book_id", bookID)
	}
	return created.ID, nil
}
