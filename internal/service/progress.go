package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/readmill/pagepress/config"
	"github.com/readmill/pagepress/internal/domain/model"
)

const progressKeyPrefix = "pagepress:progress:"

// RedisProgress mirrors job progress into Redis so dashboards can poll a
// cheap hash instead of hitting the job table. Everything here is
// best-effort: a Redis outage is logged and ignored, never failing the job.
type RedisProgress struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

var _ ProgressSink = (*RedisProgress)(nil)

// NewRedisProgress creates a progress mirror with the configured TTL.
func NewRedisProgress(client redis.UniversalClient, cfg config.RedisConfig, logger *slog.Logger) *RedisProgress {
	return &RedisProgress{
		client: client,
		ttl:    cfg.ProgressTTL,
		logger: logger,
	}
}

// Publish writes the job's current counters under its progress key.
func (p *RedisProgress) Publish(ctx context.Context, job *model.RenderJob, processedPages, totalPages int) {
	key := ProgressKey(job.ID)
	err := p.client.HSet(ctx, key,
		"book_id", job.BookID,
		"processed_pages", processedPages,
		"total_pages", totalPages,
	).Err()
	if err == nil {
		err = p.client.Expire(ctx, key, p.ttl).Err()
	}
	if err != nil && p.logger != nil {
		p.logger.Debug("progress mirror update failed", "job_id", job.ID, "error", err)
	}
}

// ProgressKey returns the Redis key holding a job's progress hash.
func ProgressKey(jobID string) string {
	return progressKeyPrefix + jobID
}
