// Package server wires the exchange runtime: storage, the draw service,
// delivery fan-out, and the gRPC lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/giftring/giftring/internal/platform/config"
	deliverydomain "github.com/giftring/giftring/internal/services/delivery/domain"
	"github.com/giftring/giftring/internal/services/exchange/domain"
	exchangesqlite "github.com/giftring/giftring/internal/services/exchange/storage/sqlite"
	notificationsapp "github.com/giftring/giftring/internal/services/notifications/app"
	notificationsdomain "github.com/giftring/giftring/internal/services/notifications/domain"
	notificationssqlite "github.com/giftring/giftring/internal/services/notifications/storage/sqlite"
	workerstorage "github.com/giftring/giftring/internal/services/worker/storage"
	workersqlite "github.com/giftring/giftring/internal/services/worker/storage/sqlite"
)

type serverEnv struct {
	DBPath              string `env:"GIFTRING_EXCHANGE_DB_PATH"`
	NotificationsDBPath string `env:"GIFTRING_NOTIFICATIONS_DB_PATH"`
	WorkerDBPath        string `env:"GIFTRING_WORKER_DB_PATH"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "exchange.db")
	}
	if strings.TrimSpace(cfg.NotificationsDBPath) == "" {
		cfg.NotificationsDBPath = filepath.Join("data", "notifications.db")
	}
	if strings.TrimSpace(cfg.WorkerDBPath) == "" {
		cfg.WorkerDBPath = filepath.Join("data", "worker.db")
	}
	return cfg
}

// Server hosts the exchange runtime and its gRPC health surface.
type Server struct {
	listener           net.Listener
	grpcServer         *grpc.Server
	health             *health.Server
	store              *exchangesqlite.Store
	notificationsStore *notificationssqlite.Store
	workerStore        *workersqlite.Store
	service            *domain.Service
	notifications      *notificationsdomain.Service
}

// New creates a configured exchange server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured exchange server on an explicit address.
func NewWithAddr(addr string) (*Server, error) {
	env := loadServerEnv()

	store, err := openExchangeStore(env.DBPath)
	if err != nil {
		return nil, err
	}
	notificationsStore, err := openNotificationsStore(env.NotificationsDBPath)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	workerStore, err := openWorkerStore(env.WorkerDBPath)
	if err != nil {
		_ = store.Close()
		_ = notificationsStore.Close()
		return nil, err
	}

	notificationsService := notificationsdomain.NewService(
		notificationsapp.NewDomainStoreAdapter(notificationsStore),
		nil,
		nil,
	)
	dispatcher := deliverydomain.NewDispatcher(
		notificationCreator{service: notificationsService},
		emailEnqueuer{store: workerStore},
	)
	service := domain.NewService(
		newDomainStoreAdapter(store),
		domain.WithDispatcher(dispatcher),
	)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		_ = store.Close()
		_ = notificationsStore.Close()
		_ = workerStore.Close()
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("exchange.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:           listener,
		grpcServer:         grpcServer,
		health:             healthServer,
		store:              store,
		notificationsStore: notificationsStore,
		workerStore:        workerStore,
		service:            service,
		notifications:      notificationsService,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Service exposes the draw use-cases backed by this server's storage.
func (s *Server) Service() *domain.Service {
	if s == nil {
		return nil
	}
	return s.service
}

// Notifications exposes the inbox use-cases backed by this server's storage.
func (s *Server) Notifications() *notificationsdomain.Service {
	if s == nil {
		return nil
	}
	return s.notifications
}

// Run creates and serves an exchange server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the gRPC server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("exchange server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.Shutdown()
		}
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// Close releases exchange server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for name, closer := range map[string]interface{ Close() error }{
		"exchange":      s.store,
		"notifications": s.notificationsStore,
		"worker":        s.workerStore,
	} {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil {
			log.Printf("close %s store: %v", name, err)
		}
	}
}

// notificationCreator feeds dispatcher intents into the inbox service.
type notificationCreator struct {
	service *notificationsdomain.Service
}

func (c notificationCreator) CreateNotification(ctx context.Context, intent deliverydomain.NotificationIntent) error {
	_, err := c.service.CreateIntent(ctx, notificationsdomain.CreateIntentInput{
		RecipientUserID: intent.RecipientUserID,
		Topic:           intent.Topic,
		PayloadJSON:     intent.PayloadJSON,
		DedupeKey:       intent.DedupeKey,
	})
	return err
}

// emailEnqueuer feeds dispatcher intents into the durable email queue.
type emailEnqueuer struct {
	store workerstorage.EmailStore
}

func (e emailEnqueuer) EnqueueEmail(ctx context.Context, intent deliverydomain.EmailIntent) error {
	return e.store.EnqueueEmail(ctx, workerstorage.EmailRecord{
		RecipientUserID: intent.RecipientUserID,
		Address:         intent.Address,
		Locale:          intent.Locale,
		Subject:         intent.Subject,
		Body:            intent.Body,
		DedupeKey:       intent.DedupeKey,
		CreatedAt:       intent.CreatedAt,
	})
}

func openExchangeStore(path string) (*exchangesqlite.Store, error) {
	if err := ensureStorageDir(path); err != nil {
		return nil, err
	}
	store, err := exchangesqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exchange sqlite store: %w", err)
	}
	return store, nil
}

func openNotificationsStore(path string) (*notificationssqlite.Store, error) {
	if err := ensureStorageDir(path); err != nil {
		return nil, err
	}
	store, err := notificationssqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open notifications sqlite store: %w", err)
	}
	return store, nil
}

func openWorkerStore(path string) (*workersqlite.Store, error) {
	if err := ensureStorageDir(path); err != nil {
		return nil, err
	}
	store, err := workersqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open worker sqlite store: %w", err)
	}
	return store, nil
}

func ensureStorageDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	return nil
}
