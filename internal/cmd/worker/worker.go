// Package worker parses worker command flags and launches the delivery
// worker runtime.
package worker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/giftring/giftring/internal/platform/cmd"
	workerserver "github.com/giftring/giftring/internal/services/worker/app"
)

// Config holds worker command configuration.
type Config struct {
	Port          int           `env:"GIFTRING_WORKER_PORT" envDefault:"8089"`
	DBPath        string        `env:"GIFTRING_WORKER_DB_PATH" envDefault:"data/worker.db"`
	PollInterval  time.Duration `env:"GIFTRING_WORKER_POLL_INTERVAL" envDefault:"5s"`
	LeaseTTL      time.Duration `env:"GIFTRING_WORKER_LEASE_TTL" envDefault:"30s"`
	BatchSize     int           `env:"GIFTRING_WORKER_BATCH_SIZE" envDefault:"10"`
	MaxAttempts   int           `env:"GIFTRING_WORKER_MAX_ATTEMPTS" envDefault:"5"`
	RetryBackoff  time.Duration `env:"GIFTRING_WORKER_RETRY_BACKOFF" envDefault:"1m"`
	RetryMaxDelay time.Duration `env:"GIFTRING_WORKER_RETRY_MAX_DELAY" envDefault:"1h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The worker health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The worker SQLite database path")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Email queue poll interval")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Email claim lease duration")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Emails claimed per poll")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum send attempts before dead-letter")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the worker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, func(ctx context.Context) error {
		return workerserver.Run(ctx, workerserver.RuntimeConfig{
			Port:          cfg.Port,
			DBPath:        cfg.DBPath,
			PollInterval:  cfg.PollInterval,
			LeaseTTL:      cfg.LeaseTTL,
			BatchSize:     cfg.BatchSize,
			MaxAttempts:   int32(cfg.MaxAttempts),
			RetryBackoff:  cfg.RetryBackoff,
			RetryMaxDelay: cfg.RetryMaxDelay,
		})
	})
}
