// Command pagepress renders book source documents into per-page JPEG images.
//
// One-shot mode processes a single book (-bookId) or a batch of pending jobs
// (-limit), then exits. Watch mode (-watch) polls for pending jobs until
// interrupted, with the stale-job reaper running alongside.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/readmill/pagepress/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	var (
		bookID = flag.Int64("bookId", 0, "render this book's pages and exit")
		limit  = flag.Int("limit", 1, "maximum pending jobs to process per batch")
		watch  = flag.Bool("watch", false, "poll for pending jobs until interrupted")
	)
	flag.Parse()

	if *bookID != 0 && *watch {
		return fmt.Errorf("-bookId and -watch are mutually exclusive")
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "starting pagepress",
		"db_host", cfg.Postgres.Host,
		"db_name", cfg.Postgres.Name,
		"bucket", cfg.ObjectStore.Bucket,
		"watch", *watch,
	)

	pipeline, err := bootstrap.BuildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	if *watch {
		return watchLoop(ctx, pipeline, cfg.Reaper.Enabled, *limit)
	}

	// A one-shot invocation still clears abandoned jobs first so a book
	// wedged by a crashed run can be re-enqueued immediately.
	if cfg.Reaper.Enabled {
		if _, sweepErr := pipeline.Reaper.Sweep(ctx); sweepErr != nil {
			logger.WarnContext(ctx, "reaper sweep failed", "error", sweepErr)
		}
	}

	if *bookID != 0 {
		return renderBook(ctx, pipeline, logger, *bookID)
	}

	completed, err := pipeline.Runner.RunBatch(ctx, *limit)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "batch finished", "completed", completed)
	return nil
}

func renderBook(ctx context.Context, pipeline *bootstrap.Pipeline, logger *slog.Logger, bookID int64) error {
	jobID, err := pipeline.Producer.EnsureJob(ctx, bookID)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "rendering book", "book_id", bookID, "job_id", jobID)
	return pipeline.Runner.RunBook(ctx, jobID)
}

func watchLoop(ctx context.Context, pipeline *bootstrap.Pipeline, reaperEnabled bool, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pipeline.Runner.Watch(ctx, limit)
	})
	if reaperEnabled {
		g.Go(func() error {
			return pipeline.Reaper.Run(ctx)
		})
	}
	if pipeline.Stats != nil {
		g.Go(func() error {
			return pipeline.Stats.Run(ctx)
		})
	}
	return g.Wait()
}
