package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"pagepress"`
	Password string `env:"PASSWORD" envDefault:"pagepress"`
	Name     string `env:"NAME"     envDefault:"pagepress"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the live job-progress mirror.
type RedisConfig struct {
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
	// Enabled toggles the progress mirror. When disabled, progress is only
	// visible through the job rows in Postgres.
	Enabled bool `env:"ENABLED" envDefault:"false"`
	// ProgressTTL is how long a job's progress hash lives after its last update.
	ProgressTTL time.Duration `env:"PROGRESS_TTL" envDefault:"24h"`
}
