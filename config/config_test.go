package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.True(t, cfg.Postgres.RunMigrationsOnStart)

	assert.Equal(t, 150, cfg.Renderer.DPI)
	assert.Equal(t, 95, cfg.Renderer.Quality)
	assert.Equal(t, "pdfinfo", cfg.Renderer.PdfInfoPath)
	assert.Equal(t, "pdftoppm", cfg.Renderer.PdfToPpmPath)
	assert.False(t, cfg.Renderer.KeepTempDir)

	assert.Equal(t, "pagepress", cfg.ObjectStore.Bucket)
	assert.Equal(t, "http://localhost:9000", cfg.ObjectStore.PublicBaseURL)

	assert.True(t, cfg.Reaper.Enabled)
	assert.Equal(t, time.Hour, cfg.Reaper.ProcessingMaxAge)
}

func TestAppConfigFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("OBJECT_STORE_BUCKET", "books-prod")
	t.Setenv("OBJECT_STORE_PUBLIC_BASE_URL", "https://cdn.example.com/")
	t.Setenv("RENDERER_DPI", "300")
	t.Setenv("REAPER_PROCESSING_MAX_AGE", "30m")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, "books-prod", cfg.ObjectStore.Bucket)
	assert.Equal(t, "https://cdn.example.com", cfg.ObjectStore.PublicBaseURL,
		"trailing slash should be stripped")
	assert.Equal(t, 300, cfg.Renderer.DPI)
	assert.Equal(t, 30*time.Minute, cfg.Reaper.ProcessingMaxAge)
}

func TestSanitizeGuardrails(t *testing.T) {
	t.Run("renderer rejects nonsense values", func(t *testing.T) {
		cfg := RendererConfig{DPI: -10, Quality: 250, PdfInfoPath: "  ", PdfToPpmPath: ""}
		cfg.Sanitize()
		assert.Equal(t, 150, cfg.DPI)
		assert.Equal(t, 95, cfg.Quality)
		assert.Equal(t, "pdfinfo", cfg.PdfInfoPath)
		assert.Equal(t, "pdftoppm", cfg.PdfToPpmPath)
	})

	t.Run("reaper rejects nonpositive values", func(t *testing.T) {
		cfg := ReaperConfig{Interval: 0, ProcessingMaxAge: -time.Minute, BatchSize: 0}
		cfg.Sanitize()
		assert.Equal(t, 5*time.Minute, cfg.Interval)
		assert.Equal(t, time.Hour, cfg.ProcessingMaxAge)
		assert.Equal(t, 100, cfg.BatchSize)
	})

	t.Run("metrics disabled when address empty", func(t *testing.T) {
		cfg := MetricsConfig{Enabled: true, StatsdAddress: "   "}
		cfg.Sanitize()
		assert.False(t, cfg.IsEnabled())
		assert.Equal(t, time.Minute, cfg.StatsInterval)
	})
}
