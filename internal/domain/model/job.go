// Package model defines the core data types shared across the page-rendering pipeline.
package model

import "time"

// JobStatus represents the current status of a render job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be picked up by a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a worker has claimed the job and is rendering pages.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates every page was rendered, validated, and uploaded.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job stopped with an error recorded in ErrorMessage.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing ||
		s == JobStatusCompleted || s == JobStatusFailed
}

// Terminal returns true if the status will never transition again. Retries are
// expressed as new job rows, never by resurrecting a terminal one.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// RenderJob represents one attempt to render all pages of one book's source document.
//
// ProcessedPages is monotonic non-decreasing within a run. While pages are being
// rasterised it reads "about to render page N+1"; once uploads start it reads
// "N pages uploaded". TotalPages is nil until discovered from the document.
type RenderJob struct {
	ID             string     `json:"id"                      db:"id"`
	BookID         int64      `json:"book_id"                 db:"book_id"`
	Status         JobStatus  `json:"status"                  db:"status"`
	ProcessedPages int        `json:"processed_pages"         db:"processed_pages"`
	TotalPages     *int       `json:"total_pages,omitempty"   db:"total_pages"`
	StartedAt      *time.Time `json:"started_at,omitempty"    db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"   db:"finished_at"`
	ErrorMessage   *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time  `json:"created_at"              db:"created_at"`
}

// Active returns true while the job still owns the "one active job per book" slot.
func (j *RenderJob) Active() bool {
	return !j.Status.Terminal()
}

// JobStats represents counts of jobs in each state.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
