// Package exchange parses exchange command flags and launches the exchange
// runtime.
package exchange

import (
	"context"
	"flag"

	entrypoint "github.com/giftring/giftring/internal/platform/cmd"
	exchangeserver "github.com/giftring/giftring/internal/services/exchange/app"
)

// Config holds exchange command configuration.
type Config struct {
	Port int `env:"GIFTRING_EXCHANGE_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The exchange gRPC server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the exchange runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceExchange, func(ctx context.Context) error {
		return exchangeserver.Run(ctx, cfg.Port)
	})
}
