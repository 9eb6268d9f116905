package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/readmill/pagepress/config"
	"github.com/readmill/pagepress/internal/data"
	"github.com/readmill/pagepress/internal/objectstore"
	"github.com/readmill/pagepress/internal/observability/statsd"
	"github.com/readmill/pagepress/internal/render"
	"github.com/readmill/pagepress/internal/service"
)

// Pipeline holds the fully wired rendering pipeline and its connections.
type Pipeline struct {
	Jobs     *data.JobRepo
	Books    *data.BookRepo
	Producer *service.ProducerService
	Runner   *service.Runner
	Reaper   *service.ReaperService
	Stats    *service.StatsReporter
	Metrics  *statsd.Client

	db    *sql.DB
	redis redis.UniversalClient
}

// BuildPipeline connects to Postgres, the object store, and (when enabled)
// Redis and StatsD, then assembles the services around them. Callers own the
// returned Pipeline and must Close it.
func BuildPipeline(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*Pipeline, error) {
	db, err := ConnectDB(cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{db: db}
	if cfg.Postgres.RunMigrationsOnStart {
		if err := RunMigrations(ctx, db, logger); err != nil {
			p.Close()
			return nil, err
		}
	}

	store, err := ConnectObjectStore(ctx, cfg.ObjectStore, logger)
	if err != nil {
		p.Close()
		return nil, err
	}

	metrics, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Metrics.IsEnabled(),
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  "pagepress",
		Logger:  logger,
	})
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Metrics = metrics

	var progress service.ProgressSink
	if cfg.Redis.Enabled {
		client, redisErr := ConnectRedis(cfg.Redis, logger)
		if redisErr != nil {
			p.Close()
			return nil, redisErr
		}
		p.redis = client
		progress = service.NewRedisProgress(client, cfg.Redis, logger)
	}

	repoCfg := data.RepoConfig{Logger: logger, TimeProvider: &data.RealTimeProvider{}}
	p.Jobs = data.NewJobRepo(db, repoCfg)
	p.Books = data.NewBookRepo(db, repoCfg)

	p.Producer, err = service.NewProducerService(service.ProducerServiceOptions{
		Jobs:   p.Jobs,
		Logger: logger,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("build producer: %w", err)
	}

	processor, err := service.NewProcessor(service.ProcessorOptions{
		Jobs:      p.Jobs,
		Books:     p.Books,
		Store:     store,
		Converter: render.NewPopplerConverter(cfg.Renderer),
		Keys:      objectstore.NewKeyBuilder(cfg.ObjectStore),
		Config:    cfg.Renderer,
		Logger:    logger,
		Metrics:   metrics,
		Progress:  progress,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("build processor: %w", err)
	}

	p.Runner, err = service.NewRunner(service.RunnerOptions{
		Jobs:      p.Jobs,
		Processor: processor,
		Config:    cfg.Worker,
		Logger:    logger,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("build runner: %w", err)
	}

	p.Reaper, err = service.NewReaperService(service.ReaperServiceOptions{
		Repo:    p.Jobs,
		Config:  cfg.Reaper,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("build reaper: %w", err)
	}

	if cfg.Metrics.IsEnabled() {
		p.Stats, err = service.NewStatsReporter(service.StatsReporterOptions{
			Source:   p.Jobs,
			Metrics:  metrics,
			Interval: cfg.Metrics.StatsInterval,
			Logger:   logger,
		})
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("build stats reporter: %w", err)
		}
	}

	return p, nil
}

// Close releases every connection the pipeline holds.
func (p *Pipeline) Close() {
	if p.Metrics != nil {
		_ = p.Metrics.Close()
	}
	if p.redis != nil {
		_ = p.redis.Close()
	}
	if p.db != nil {
		_ = p.db.Close()
	}
}
