// Command pagepress-admin provides operational tooling for the rendering
// pipeline: migrations, queue inspection, stale-job cleanup, and development
// seeding.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/readmill/pagepress/config"
	"github.com/readmill/pagepress/internal/bootstrap"
	"github.com/readmill/pagepress/internal/data"
	"github.com/readmill/pagepress/internal/devseed"
	"github.com/readmill/pagepress/internal/domain/model"
	"github.com/readmill/pagepress/internal/service"
	"github.com/readmill/pagepress/internal/util"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultMigrationTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"job-stats": {
			name:        "job-stats",
			description: "Show render job counts per state",
			run:         runJobStats,
		},
		"job-show": {
			name:        "job-show",
			description: "Show the full record of one render job",
			run:         runJobShow,
		},
		"reap-stale": {
			name:        "reap-stale",
			description: "Fail processing jobs abandoned by a crashed worker",
			run:         runReapStale,
		},
		"ensure-job": {
			name:        "ensure-job",
			description: "Enqueue a render job for a book (idempotent)",
			run:         runEnsureJob,
		},
		"seed-book": {
			name:        "seed-book",
			description: "Insert a book record for local development",
			run:         runSeedBook,
		},
		"db-seed": {
			name:        "db-seed",
			description: "Run migrations and seed sample development data",
			run:         runDBSeed,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: pagepress-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	for _, c := range commands() {
		if err := writef(os.Stdout, "  %-12s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultMigrationTimeout, "abort migrations after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	cmdCtx.Logger.Info("running database migrations")

	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func runJobStats(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("job-stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	jobs := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	stats, err := jobs.Stats(cmdCtx.Ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writef(w, "STATE\tCOUNT\n"); err != nil {
		return err
	}
	rows := []struct {
		state string
		count int
	}{
		{"pending", stats.Pending},
		{"processing", stats.Processing},
		{"completed", stats.Completed},
		{"failed", stats.Failed},
	}
	for _, row := range rows {
		if err := writef(w, "%s\t%d\n", row.state, row.count); err != nil {
			return err
		}
	}
	return w.Flush()
}

func runJobShow(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("job-show", flag.ContinueOnError)
	id := fs.String("id", "", "render job id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := uuid.Parse(*id); err != nil {
		return fmt.Errorf("-id must be a job UUID: %w", err)
	}

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	jobs := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	job, err := jobs.GetByID(cmdCtx.Ctx, *id)
	if err != nil {
		return err
	}
	return displayJob(job)
}

func displayJob(job *model.RenderJob) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fields := []struct {
		name  string
		value string
	}{
		{"id", job.ID},
		{"book_id", fmt.Sprintf("%d", job.BookID)},
		{"status", string(job.Status)},
		{"processed_pages", fmt.Sprintf("%d", job.ProcessedPages)},
		{"total_pages", formatNullableInt(job.TotalPages)},
		{"started_at", formatNullableTime(job.StartedAt)},
		{"finished_at", formatNullableTime(job.FinishedAt)},
		{"error_message", formatNullableString(job.ErrorMessage)},
		{"duration", formatJobDuration(job)},
		{"created_at", job.CreatedAt.Format(time.RFC3339)},
	}
	for _, f := range fields {
		if err := writef(w, "%s\t%s\n", f.name, f.value); err != nil {
			return err
		}
	}
	return w.Flush()
}

func runReapStale(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("reap-stale", flag.ContinueOnError)
	maxAge := fs.Duration("max-age", cmdCtx.Config.Reaper.ProcessingMaxAge,
		"fail processing jobs older than this")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	reaperCfg := cmdCtx.Config.Reaper
	reaperCfg.ProcessingMaxAge = *maxAge

	jobs := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:   jobs,
		Config: reaperCfg,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	total, err := reaper.Sweep(cmdCtx.Ctx)
	if err != nil {
		return err
	}
	return writef(os.Stdout, "failed %d stale processing job(s)\n", total)
}

func runEnsureJob(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("ensure-job", flag.ContinueOnError)
	bookID := fs.Int64("book", 0, "book id to enqueue")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bookID <= 0 {
		return errors.New("-book is required")
	}

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	jobs := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	producer, err := service.NewProducerService(service.ProducerServiceOptions{
		Jobs:   jobs,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	jobID, err := producer.EnsureJob(cmdCtx.Ctx, *bookID)
	if err != nil {
		return err
	}
	return writef(os.Stdout, "%s\n", jobID)
}

func runSeedBook(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("seed-book", flag.ContinueOnError)
	title := fs.String("title", "", "book title")
	sourceURL := fs.String("source-url", "", "public URL of the book's source document")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !cmdCtx.Config.IsDev {
		return errors.New("seed-book is only available with DEV=true")
	}
	if *title == "" {
		return errors.New("-title is required")
	}

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	books := data.NewBookRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	book, err := books.Create(cmdCtx.Ctx, *title, *sourceURL)
	if err != nil {
		return err
	}
	return writef(os.Stdout, "created book %d %q\n", book.ID, book.Title)
}

func runDBSeed(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("db-seed", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultMigrationTimeout, "abort seeding after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !cmdCtx.Config.IsDev {
		return errors.New("db-seed is only available with DEV=true")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	db, err := connectDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx, db)

	if err := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); err != nil {
		return err
	}

	seeder, err := devseed.New(db, cmdCtx.Config.ObjectStore, cmdCtx.Logger)
	if err != nil {
		return err
	}
	return seeder.Run(ctx)
}

func connectDB(cmdCtx *commandContext) (*sql.DB, error) {
	db, err := bootstrap.ConnectDB(cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

func closeDB(cmdCtx *commandContext, db *sql.DB) {
	if err := db.Close(); err != nil {
		cmdCtx.Logger.Warn("db close failed", "error", err)
	}
}

func formatJobDuration(job *model.RenderJob) string {
	if job.StartedAt == nil || job.FinishedAt == nil {
		return "—"
	}
	return util.FormatProcessingDuration(job.FinishedAt.Sub(*job.StartedAt))
}

func formatNullableInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func formatNullableTime(v *time.Time) string {
	if v == nil {
		return "-"
	}
	return v.Format(time.RFC3339)
}

func formatNullableString(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
