package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/readmill/pagepress/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
const (
	advisoryLockReaperMajor          = 2100
	advisoryLockReaperFailProcessing = 1 // minor key for FailStaleProcessingJobs
)

// StaleProcessingMessage is recorded on jobs the reaper fails. Kept stable so
// operators can distinguish reaped jobs from genuine pipeline failures.
const StaleProcessingMessage = "job abandoned in processing status (worker crashed or was killed)"

// FailStaleProcessingJobs fails processing jobs whose run started more than
// maxAge ago. A crashed worker has no processing → pending transition, so
// without this sweep such jobs wedge their book's active-job slot forever.
// Processes up to batchSize jobs per call and uses an advisory lock so
// concurrent reaper instances do not conflict. Returns the number of jobs failed.
func (r *JobRepo) FailStaleProcessingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)",
				advisoryLockReaperMajor, advisoryLockReaperFailProcessing).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			cutoffTime := currentTime.Add(-maxAge)

			res, err := tx.ExecContext(ctx, `
				UPDATE render_jobs
				SET status = 'failed',
					error_message = $1,
					finished_at = $2
				WHERE id IN (
					SELECT id FROM render_jobs
					WHERE status = 'processing'
					  AND started_at < $3
					ORDER BY started_at
					LIMIT $4
				)
			`, StaleProcessingMessage, currentTime.UTC(), cutoffTime.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("fail stale processing jobs: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
