// Package data implements Postgres persistence for render jobs and the
// pipeline's slice of the book catalog.
package data

import (
	"database/sql"
	"errors"
	"log/slog"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrBookNotFound is returned when a book is not found.
	ErrBookNotFound = errors.New("book not found")
	// ErrActiveJobExists is returned by Create when the book already has a
	// pending or processing job. Enforced by a partial unique index, so it
	// holds even when two producers race.
	ErrActiveJobExists = errors.New("an active render job already exists for this book")
	// ErrJobNotClaimable is returned by Claim when the job is not pending.
	ErrJobNotClaimable = errors.New("job is not in a claimable state")
)

// RepoConfig holds configuration options shared by the repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for render job management.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  book_id,
  status,
  processed_pages,
  total_pages,
  started_at,
  finished_at,
  error_message,
  created_at
`
