// Package devseed populates a development database with sample books and
// render jobs so the pipeline can be exercised without the catalog subsystem.
package devseed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/readmill/pagepress/config"
	"github.com/readmill/pagepress/internal/data"
	"github.com/readmill/pagepress/internal/service"
)

// Seeder creates sample catalog data for local development.
type Seeder struct {
	books    *data.BookRepo
	producer *service.ProducerService
	cfg      config.ObjectStoreConfig
	logger   *slog.Logger
}

// sampleBooks are seeded with source documents the operator is expected to
// upload to the dev bucket under uploads/<slug>.pdf before rendering.
var sampleBooks = []struct {
	title string
	slug  string
}{
	{"A Study in Scarlet", "a-study-in-scarlet"},
	{"The Time Machine", "the-time-machine"},
	{"Flatland", "flatland"},
}

// New constructs a Seeder over the given database connection.
func New(db *sql.DB, cfg config.ObjectStoreConfig, logger *slog.Logger) (*Seeder, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}

	repoCfg := data.RepoConfig{Logger: logger}
	producer, err := service.NewProducerService(service.ProducerServiceOptions{
		Jobs:   data.NewJobRepo(db, repoCfg),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	return &Seeder{
		books:    data.NewBookRepo(db, repoCfg),
		producer: producer,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Run inserts the sample books and enqueues a render job for the first one.
// Seeding is additive; it never touches existing rows.
func (s *Seeder) Run(ctx context.Context) error {
	var firstBookID int64
	for _, sample := range sampleBooks {
		book, err := s.books.Create(ctx, sample.title, s.sourceURL(sample.slug))
		if err != nil {
			return fmt.Errorf("seed book %q: %w", sample.title, err)
		}
		if firstBookID == 0 {
			firstBookID = book.ID
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "seeded book", "book_id", book.ID, "title", book.Title)
		}
	}

	jobID, err := s.producer.EnsureJob(ctx, firstBookID)
	if err != nil {
		return fmt.Errorf("enqueue seed job: %w", err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "seeded render job", "job_id", jobID, "book_id", firstBookID)
	}
	return nil
}

// sourceURL builds the public URL the upload side would publish for a
// document stored at uploads/<slug>.pdf in the configured bucket.
func (s *Seeder) sourceURL(slug string) string {
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	return base + "/" + s.cfg.Bucket + "/uploads/" + url.PathEscape(slug) + ".pdf"
}
