package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres and Redis configuration
//   - storage.go: Object store configuration
//   - renderer.go: Converter, worker, and reaper configuration
type AppConfig struct {
	// IsDev controls development mode behavior (temp dir retention, seed commands).
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Object store configuration
	ObjectStore ObjectStoreConfig `envPrefix:"OBJECT_STORE_"`

	// Renderer configuration
	Renderer RendererConfig `envPrefix:"RENDERER_"`

	// Worker configuration
	Worker WorkerConfig `envPrefix:"WORKER_"`

	// Reaper configuration
	Reaper ReaperConfig `envPrefix:"REAPER_"`

	// Metrics configuration
	Metrics MetricsConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.ObjectStore.Sanitize()
	c.Renderer.Sanitize()
	c.Worker.Sanitize()
	c.Reaper.Sanitize()
	c.Metrics.Sanitize()
}
