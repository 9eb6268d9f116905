package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/readmill/pagepress/internal/domain/model"
)

// BookRepo provides database operations for the pipeline's view of the book catalog.
type BookRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewBookRepo creates a new BookRepo instance.
func NewBookRepo(db *sql.DB, cfg RepoConfig) *BookRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &BookRepo{DB: db, timeProvider: tp}
}

const bookColumns = `
  id,
  title,
  source_document_url,
  page_images_prefix,
  page_images_count,
  page_images_rendered_at,
  created_at,
  updated_at
`

// GetByID retrieves a book by its ID.
func (r *BookRepo) GetByID(ctx context.Context, id int64) (*model.Book, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+bookColumns+`
		FROM books
		WHERE id = $1
	`, id)

	book, err := scanBookFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	return book, nil
}

// SetPageImages records a completed render on the book. The three fields are
// written in one statement so readers never observe a partial update.
func (r *BookRepo) SetPageImages(ctx context.Context, id int64, prefix string, count int, renderedAt time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE books
		SET page_images_prefix = $2,
		    page_images_count = $3,
		    page_images_rendered_at = $4,
		    updated_at = $5
		WHERE id = $1
	`, id, prefix, count, renderedAt.UTC(), r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("set page images for book %d: %w", id, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set page images rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// Create inserts a book. The catalog subsystem owns books in production; this
// exists for the admin seed command and tests.
func (r *BookRepo) Create(ctx context.Context, title, sourceDocumentURL string) (*model.Book, error) {
	if title == "" {
		return nil, errors.New("title is required")
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO books (title, source_document_url, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING `+bookColumns, title, sourceDocumentURL, now)

	book, err := scanBookFromRow(row)
	if err != nil {
		return nil, fmt.Errorf("insert book: %w", err)
	}
	return book, nil
}

func scanBookFromRow(scanner jobRowScanner) (*model.Book, error) {
	book := &model.Book{}
	var (
		prefix     sql.NullString
		count      sql.NullInt64
		renderedAt sql.NullTime
	)

	if err := scanner.Scan(
		&book.ID,
		&book.Title,
		&book.SourceDocumentURL,
		&prefix,
		&count,
		&renderedAt,
		&book.CreatedAt,
		&book.UpdatedAt,
	); err != nil {
		return nil, err
	}

	book.PageImagesPrefix = cloneNullableString(prefix)
	if count.Valid {
		n := int(count.Int64)
		book.PageImagesCount = &n
	}
	book.PageImagesRenderedAt = cloneNullableTime(renderedAt)
	return book, nil
}
