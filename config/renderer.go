package config

import (
	"strings"
	"time"
)

// RendererConfig controls the external PDF rasterisation tools.
type RendererConfig struct {
	// DPI is the raster resolution passed to the rasteriser.
	DPI int `env:"DPI" envDefault:"150"`
	// Quality is the JPEG quality (0-100) passed to the rasteriser.
	Quality int `env:"QUALITY" envDefault:"95"`
	// PdfInfoPath and PdfToPpmPath override the tool binaries; defaults rely on PATH.
	PdfInfoPath  string `env:"PDFINFO_PATH"  envDefault:"pdfinfo"`
	PdfToPpmPath string `env:"PDFTOPPM_PATH" envDefault:"pdftoppm"`
	// KeepTempDir retains the per-job temp directory after processing for
	// operator inspection instead of removing it on exit.
	KeepTempDir bool `env:"KEEP_TEMP_DIR" envDefault:"false"`
}

// Sanitize applies guardrails to renderer configuration values.
func (c *RendererConfig) Sanitize() {
	if c.DPI <= 0 {
		c.DPI = 150
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = 95
	}
	c.PdfInfoPath = strings.TrimSpace(c.PdfInfoPath)
	if c.PdfInfoPath == "" {
		c.PdfInfoPath = "pdfinfo"
	}
	c.PdfToPpmPath = strings.TrimSpace(c.PdfToPpmPath)
	if c.PdfToPpmPath == "" {
		c.PdfToPpmPath = "pdftoppm"
	}
}

// WorkerConfig controls the batch job runner.
type WorkerConfig struct {
	// PollInterval is how often watch mode checks for new pending jobs.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
}

// Sanitize applies guardrails to worker configuration values.
func (c *WorkerConfig) Sanitize() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
}

// ReaperConfig controls cleanup of jobs stuck in processing after a crash.
type ReaperConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
	// Interval is how often the reaper sweeps in watch mode.
	Interval time.Duration `env:"INTERVAL" envDefault:"5m"`
	// ProcessingMaxAge is how long a job may sit in processing before it is
	// considered abandoned and failed.
	ProcessingMaxAge time.Duration `env:"PROCESSING_MAX_AGE" envDefault:"1h"`
	// BatchSize bounds how many jobs a single sweep touches.
	BatchSize int `env:"BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to reaper configuration values.
func (c *ReaperConfig) Sanitize() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.ProcessingMaxAge <= 0 {
		c.ProcessingMaxAge = time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

// MetricsConfig controls emission of metrics to external sinks such as StatsD.
type MetricsConfig struct {
	Enabled       bool   `env:"METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	// StatsInterval is how often watch mode publishes queue-depth gauges.
	StatsInterval time.Duration `env:"METRICS_STATS_INTERVAL" envDefault:"1m"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *MetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = time.Minute
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *MetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}
