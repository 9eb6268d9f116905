package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/readmill/pagepress/internal/domain/model"
)

// Create inserts a new pending job for the book. The partial unique index on
// (book_id) over non-terminal statuses makes "at most one active job per book"
// a hard guarantee; a violation surfaces as ErrActiveJobExists.
func (r *JobRepo) Create(ctx context.Context, bookID int64) (*model.RenderJob, error) {
	if bookID <= 0 {
		return nil, errors.New("book id is required")
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO render_jobs (book_id, status, processed_pages, created_at)
		VALUES ($1, 'pending', 0, $2)
		RETURNING `+jobColumns, bookID, r.timeProvider.Now().UTC())

	job, err := scanJobFromRow(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrActiveJobExists
		}
		return nil, fmt.Errorf("insert render job: %w", err)
	}
	return job, nil
}

// LatestForBook returns the most recently created job for the book, or
// ErrJobNotFound when the book has never been enqueued.
func (r *JobRepo) LatestForBook(ctx context.Context, bookID int64) (*model.RenderJob, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM render_jobs
		WHERE book_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, bookID)

	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest job for book %d: %w", bookID, err)
	}
	return job, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.RenderJob, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM render_jobs
		WHERE id = $1
	`, id)

	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// ListByStatus returns jobs in the given status, oldest first.
func (r *JobRepo) ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.RenderJob, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid job status: %s", status)
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM render_jobs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status %s: %w", status, err)
	}
	defer rows.Close()

	var jobs []*model.RenderJob
	for rows.Next() {
		job, scanErr := scanJobFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job row: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return jobs, nil
}

// Claim transitions a pending job to processing, resetting its progress
// counter and stamping started_at. The conditional UPDATE makes the claim
// atomic: when two pipeline invocations race for the same job, exactly one
// wins and the other gets ErrJobNotClaimable.
func (r *JobRepo) Claim(ctx context.Context, id string) (*model.RenderJob, error) {
	row := r.DB.QueryRowContext(ctx, `
		UPDATE render_jobs
		SET status = 'processing',
		    processed_pages = 0,
		    started_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING `+jobColumns, id, r.timeProvider.Now().UTC())

	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrJobNotClaimable
	}
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", id, err)
	}
	return job, nil
}

// UpdateProgress records the page counters for a processing job. GREATEST
// keeps the visible counter non-decreasing within a run: the render phase
// reports "about to render page N" while the upload phase reports "N pages
// uploaded", and the second must never appear to roll the first back.
func (r *JobRepo) UpdateProgress(ctx context.Context, id string, processedPages, totalPages int) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE render_jobs
		SET processed_pages = GREATEST(processed_pages, $2),
		    total_pages = $3
		WHERE id = $1 AND status = 'processing'
	`, id, processedPages, totalPages)
	if err != nil {
		return fmt.Errorf("update progress for job %s: %w", id, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update progress rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Complete marks a processing job as completed.
func (r *JobRepo) Complete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE render_jobs
		SET status = 'completed',
		    finished_at = $2,
		    error_message = NULL
		WHERE id = $1 AND status = 'processing'
	`, id, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Fail marks a processing job as failed with the given error message.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE render_jobs
		SET status = 'failed',
		    finished_at = $2,
		    error_message = $3
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, id, r.timeProvider.Now().UTC(), errMsg)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Stats returns counts of jobs in each state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')    AS pending,
    count(*) FILTER (WHERE status = 'processing') AS processing,
    count(*) FILTER (WHERE status = 'completed')  AS completed,
    count(*) FILTER (WHERE status = 'failed')     AS failed
  FROM render_jobs
  `).Scan(
		&s.Pending,
		&s.Processing,
		&s.Completed,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &s, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

func scanJobFromRow(scanner jobRowScanner) (*model.RenderJob, error) {
	job := &model.RenderJob{}
	var (
		totalPages          sql.NullInt64
		startedAt, finished sql.NullTime
		errorMessage        sql.NullString
	)

	if err := scanner.Scan(
		&job.ID,
		&job.BookID,
		&job.Status,
		&job.ProcessedPages,
		&totalPages,
		&startedAt,
		&finished,
		&errorMessage,
		&job.CreatedAt,
	); err != nil {
		return nil, err
	}

	if totalPages.Valid {
		n := int(totalPages.Int64)
		job.TotalPages = &n
	}
	job.StartedAt = cloneNullableTime(startedAt)
	job.FinishedAt = cloneNullableTime(finished)
	job.ErrorMessage = cloneNullableString(errorMessage)
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
