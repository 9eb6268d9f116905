package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/readmill/pagepress/config"
	"github.com/readmill/pagepress/internal/data"
	"github.com/readmill/pagepress/internal/domain/model"
	"github.com/readmill/pagepress/internal/objectstore"
	"github.com/readmill/pagepress/internal/observability/statsd"
	"github.com/readmill/pagepress/internal/render"
)

// ProcessorJobStore is the job store surface the processor needs.
type ProcessorJobStore interface {
	Claim(ctx context.Context, id string) (*model.RenderJob, error)
	UpdateProgress(ctx context.Context, id string, processedPages, totalPages int) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, errMsg string) error
}

// ProcessorBookStore is the book store surface the processor needs.
type ProcessorBookStore interface {
	GetByID(ctx context.Context, id int64) (*model.Book, error)
	SetPageImages(ctx context.Context, id int64, prefix string, count int, renderedAt time.Time) error
}

// ProgressSink receives live progress updates as a job advances. Publishing is
// best-effort; implementations must not fail the job.
type ProgressSink interface {
	Publish(ctx context.Context, job *model.RenderJob, processedPages, totalPages int)
}

// ProcessorOptions groups dependencies for Processor.
type ProcessorOptions struct {
	Jobs      ProcessorJobStore       // Required: job store
	Books     ProcessorBookStore      // Required: book store
	Store     objectstore.Store       // Required: object store
	Converter render.Converter        // Required: document converter
	Keys      *objectstore.KeyBuilder // Required: key builder
	Config    config.RendererConfig   // Renderer settings (temp dir retention)
	Logger    *slog.Logger            // Optional: structured logger
	Metrics   statsd.Sink             // Optional: metrics sink
	Progress  ProgressSink            // Optional: live progress mirror
	Now       func() time.Time        // Optional: clock override for tests
}

// Processor runs a single render job end to end: download the source
// document, rasterise every page, validate completeness, upload, and finalise
// the job and book records.
type Processor struct {
	jobs      ProcessorJobStore
	books     ProcessorBookStore
	store     objectstore.Store
	converter render.Converter
	keys      *objectstore.KeyBuilder
	cfg       config.RendererConfig
	logger    *slog.Logger
	metrics   statsd.Sink
	progress  ProgressSink
	now       func() time.Time
}

// NewProcessor constructs a new Processor.
func NewProcessor(opts ProcessorOptions) (*Processor, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("job store is required")
	case opts.Books == nil:
		return nil, errors.New("book store is required")
	case opts.Store == nil:
		return nil, errors.New("object store is required")
	case opts.Converter == nil:
		return nil, errors.New("converter is required")
	case opts.Keys == nil:
		return nil, errors.New("key builder is required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "processor")
	}

	return &Processor{
		jobs:      opts.Jobs,
		books:     opts.Books,
		store:     opts.Store,
		converter: opts.Converter,
		keys:      opts.Keys,
		cfg:       opts.Config,
		logger:    logger,
		metrics:   opts.Metrics,
		progress:  opts.Progress,
		now:       now,
	}, nil
}

// Process runs one pending render job to a terminal state. Every failure mode
// is recorded on the job row before the error is returned, so callers in a
// batch loop can log it and move on. The only exception is a lost claim race
// (data.ErrJobNotClaimable), which leaves the job untouched for its winner.
func (p *Processor) Process(ctx context.Context, job *model.RenderJob) error {
	start := p.now()

	book, err := p.books.GetByID(ctx, job.BookID)
	if err != nil {
		return p.fail(ctx, job, fmt.Errorf("load book %d: %w", job.BookID, err))
	}
	if strings.TrimSpace(book.SourceDocumentURL) == "" {
		return p.fail(ctx, job, fmt.Errorf("book %d has no source document URL", book.ID))
	}

	claimed, err := p.jobs.Claim(ctx, job.ID)
	if err != nil {
		if errors.Is(err, data.ErrJobNotClaimable) {
			if p.logger != nil {
				p.logger.InfoContext(ctx, "job claimed elsewhere, skipping", "job_id", job.ID)
			}
			return err
		}
		return p.fail(ctx, job, fmt.Errorf("claim job: %w", err))
	}
	job = claimed

	srcKey, err := p.keys.ResolveKey(book.SourceDocumentURL)
	if err != nil {
		return p.fail(ctx, job, fmt.Errorf("resolve source document key: %w", err))
	}

	tmpDir, err := os.MkdirTemp("", "pagepress-"+job.ID+"-")
	if err != nil {
		return p.fail(ctx, job, fmt.Errorf("create temp dir: %w", err))
	}
	defer p.releaseTempDir(tmpDir)

	srcPath, err := p.download(ctx, srcKey, tmpDir)
	if err != nil {
		return p.fail(ctx, job, fmt.Errorf("download source document: %w", err))
	}

	totalPages, err := p.converter.PageCount(ctx, srcPath)
	if err != nil {
		return p.fail(ctx, job, fmt.Errorf("discover page count: %w", err))
	}
	if totalPages <= 0 {
		return p.fail(ctx, job, fmt.Errorf("document reports no pages"))
	}

	if renderErr := p.renderPages(ctx, job, srcPath, tmpDir, totalPages); renderErr != nil {
		return p.fail(ctx, job, renderErr)
	}

	rendered, err := render.ScanRenderedPages(tmpDir)
	if err != nil {
		return p.fail(ctx, job, err)
	}
	if validateErr := validateCompleteness(rendered, totalPages); validateErr != nil {
		return p.fail(ctx, job, validateErr)
	}

	if uploadErr := p.uploadPages(ctx, job, book.ID, rendered, totalPages); uploadErr != nil {
		return p.fail(ctx, job, uploadErr)
	}

	renderedAt := p.now()
	if err := p.books.SetPageImages(ctx, book.ID, p.keys.AssetsPrefix(book.ID), totalPages, renderedAt); err != nil {
		return p.fail(ctx, job, fmt.Errorf("update book page images: %w", err))
	}
	if err := p.jobs.Complete(ctx, job.ID); err != nil {
		return p.fail(ctx, job, fmt.Errorf("mark job completed: %w", err))
	}

	p.count("jobs.completed", 1)
	p.timing("job.duration", p.now().Sub(start))
	if p.logger != nil {
		p.logger.InfoContext(ctx, "render job completed",
			"job_id", job.ID,
			"book_id", book.ID,
			"total_pages", totalPages,
			"duration", p.now().Sub(start),
		)
	}
	return nil
}

// renderPages rasterises pages strictly in order, reporting progress before
// each page so observers read the counter as "about to render page N".
func (p *Processor) renderPages(ctx context.Context, job *model.RenderJob, srcPath, tmpDir string, totalPages int) error {
	for page := 1; page <= totalPages; page++ {
		if err := p.reportProgress(ctx, job, page-1, totalPages); err != nil {
			return fmt.Errorf("update progress before page %d: %w", page, err)
		}

		if _, err := p.converter.RenderPage(ctx, srcPath, page, tmpDir); err != nil {
			return fmt.Errorf("render page %d: %w", page, err)
		}
	}
	return nil
}

// reportProgress advances the job's visible counter. The counter's meaning
// shifts from "about to render page N" to "N pages uploaded" between phases;
// clamping to the high-water mark keeps it non-decreasing across the shift.
func (p *Processor) reportProgress(ctx context.Context, job *model.RenderJob, processedPages, totalPages int) error {
	if processedPages > job.ProcessedPages {
		job.ProcessedPages = processedPages
	} else {
		processedPages = job.ProcessedPages
	}

	if err := p.jobs.UpdateProgress(ctx, job.ID, processedPages, totalPages); err != nil {
		return err
	}
	p.publishProgress(ctx, job, processedPages, totalPages)
	return nil
}

// validateCompleteness is the pipeline's core correctness gate: a job may only
// complete when the re-scanned output covers pages 1..totalPages exactly.
func validateCompleteness(rendered map[int]string, totalPages int) error {
	if missing := render.MissingPages(rendered, totalPages); len(missing) > 0 {
		return fmt.Errorf("rendered output incomplete: missing pages %s", joinInts(missing))
	}
	if len(rendered) != totalPages {
		return fmt.Errorf("rendered output has %d files, expected %d", len(rendered), totalPages)
	}
	return nil
}

// uploadPages pushes every rendered page to the object store in order. After
// each upload the progress counter means "pages uploaded" and the local file
// is removed to bound disk usage.
func (p *Processor) uploadPages(ctx context.Context, job *model.RenderJob, bookID int64, rendered map[int]string, totalPages int) error {
	for page := 1; page <= totalPages; page++ {
		path := rendered[page]
		if err := p.uploadPage(ctx, bookID, page, path); err != nil {
			return fmt.Errorf("upload page %d: %w", page, err)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove uploaded page %d: %w", page, err)
		}

		if err := p.reportProgress(ctx, job, page, totalPages); err != nil {
			return fmt.Errorf("update progress after page %d: %w", page, err)
		}
		p.count("pages.uploaded", 1)
	}
	return nil
}

func (p *Processor) uploadPage(ctx context.Context, bookID int64, page int, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	key := p.keys.PageKey(bookID, page)
	return p.store.Put(ctx, key, f, info.Size(), objectstore.PageImageContentType)
}

func (p *Processor) download(ctx context.Context, key, tmpDir string) (string, error) {
	src, err := p.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	path := filepath.Join(tmpDir, "source.pdf")
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// releaseTempDir removes the job's working directory unless configured to
// retain it for operator inspection.
func (p *Processor) releaseTempDir(tmpDir string) {
	if p.cfg.KeepTempDir {
		if p.logger != nil {
			p.logger.Info("temp dir retained", "path", tmpDir)
		}
		return
	}
	if err := os.RemoveAll(tmpDir); err != nil && p.logger != nil {
		p.logger.Warn("remove temp dir failed", "path", tmpDir, "error", err)
	}
}

// fail records the cause on the job row and returns it wrapped. A failed
// status update is logged but does not mask the original cause.
func (p *Processor) fail(ctx context.Context, job *model.RenderJob, cause error) error {
	if failErr := p.jobs.Fail(ctx, job.ID, cause.Error()); failErr != nil && p.logger != nil {
		p.logger.ErrorContext(ctx, "record job failure failed",
			"job_id", job.ID,
			"cause", cause,
			"error", failErr,
		)
	}
	p.count("jobs.failed", 1)
	return fmt.Errorf("job %s: %w", job.ID, cause)
}

func (p *Processor) publishProgress(ctx context.Context, job *model.RenderJob, processedPages, totalPages int) {
	if p.progress == nil {
		return
	}
	p.progress.Publish(ctx, job, processedPages, totalPages)
}

func (p *Processor) count(name string, value int64) {
	if p.metrics != nil {
		p.metrics.Count(name, value, nil)
	}
}

func (p *Processor) timing(name string, value time.Duration) {
	if p.metrics != nil {
		p.metrics.Timing(name, value, nil)
	}
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
