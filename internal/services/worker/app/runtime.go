package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	workerdomain "github.com/giftring/giftring/internal/services/worker/domain"
	workersqlite "github.com/giftring/giftring/internal/services/worker/storage/sqlite"
)

// RuntimeConfig controls worker startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port          int
	DBPath        string
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	BatchSize     int
	MaxAttempts   int32
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	Sender        workerdomain.Sender
}

const (
	defaultWorkerPort = 8089
	defaultWorkerDB   = "data/worker.db"
)

// Run starts the worker storage, the health endpoint, and the queue loop,
// blocking until ctx is canceled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultWorkerPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultWorkerDB
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create worker storage dir: %w", err)
		}
	}

	workerStore, err := workersqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open worker sqlite store: %w", err)
	}
	defer func() {
		if closeErr := workerStore.Close(); closeErr != nil {
			log.Printf("close worker sqlite store: %v", closeErr)
		}
	}()

	sender := cfg.Sender
	if sender == nil {
		sender = logSender{}
	}

	loop := NewLoop(workerStore, sender, Config{
		PollInterval: cfg.PollInterval,
		LeaseTTL:     cfg.LeaseTTL,
		BatchSize:    cfg.BatchSize,
		Retry: workerdomain.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     cfg.RetryBackoff,
			MaxBackoff:  cfg.RetryMaxDelay,
		},
	})

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on worker port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("worker.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("worker listening at %v", listener.Addr())
	return loop.Run(ctx)
}

// logSender is the development transport: it logs instead of sending.
type logSender struct{}

func (logSender) Send(_ context.Context, email workerdomain.Email) error {
	log.Printf("would send email to %s: %s", email.Address, email.Subject)
	return nil
}
