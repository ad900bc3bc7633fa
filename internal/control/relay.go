package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/relay/internal/core/config"
	"github.com/vietddude/relay/internal/dispatch"
	"github.com/vietddude/relay/internal/health"
	"github.com/vietddude/relay/internal/infra/redisq"
	"github.com/vietddude/relay/internal/infra/storage"
	"github.com/vietddude/relay/internal/infra/storage/memory"
	"github.com/vietddude/relay/internal/infra/storage/postgres"
	"github.com/vietddude/relay/internal/ingress/event"
	"github.com/vietddude/relay/internal/ingress/httpapi"
	"github.com/vietddude/relay/internal/ingress/queue"
	"github.com/vietddude/relay/internal/metrics"
	"github.com/vietddude/relay/internal/resilience"
	"github.com/vietddude/relay/internal/sample"

	"github.com/pressly/goose/v3"
	"google.golang.org/grpc"
)

// Relay is the main application struct that manages the ingress lifecycle.
type Relay struct {
	cfg         *config.AppConfig
	registry    *dispatch.Registry
	router      *dispatch.Router
	policies    *resilience.Registry
	adapter     *event.Adapter
	httpServer  *httpapi.Server
	grpcServer  *grpc.Server
	consumers   []*queue.Consumer
	healthMon   *health.Monitor
	adminServer *health.Server
	db          *postgres.DB
	redisClient *redisq.Client
	log         *slog.Logger

	wg      sync.WaitGroup
	stopRun context.CancelFunc
}

// NewRelay creates a new Relay instance with all dependencies initialized.
func NewRelay(cfg *config.AppConfig) (*Relay, error) {

	// 1. Initialize Storage
	var repo storage.SampleRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		// Assuming migrations are in "migrations" folder relative to CWD
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		repo = postgres.NewSampleRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		repo = memory.NewStore()
		slog.Info("Using Memory storage")
	}

	// 2. Initialize Dispatch Pipeline
	policies := resilience.NewRegistry(cfg.Dispatch.ResilienceConfig())
	registry := dispatch.NewRegistry()
	router := dispatch.NewRouter(cfg.Dispatch.RouterConfig(), registry, policies)

	svc := sample.NewService(repo)
	if err := svc.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register sample actions: %w", err)
	}

	// 3. Initialize Ingress Surfaces
	adapter, err := event.NewAdapter(cfg.Events, router)
	if err != nil {
		return nil, fmt.Errorf("failed to init event adapter: %w", err)
	}

	httpServer, err := httpapi.NewServer(cfg.HTTP, router)
	if err != nil {
		return nil, fmt.Errorf("failed to init http server: %w", err)
	}

	var grpcServer *grpc.Server
	if cfg.Runner.Enabled {
		grpcServer = event.NewGRPCServer(adapter)
	}

	// 4. Initialize Queue Consumers
	var redisClient *redisq.Client
	var consumers []*queue.Consumer
	var queues []*redisq.Queue

	if len(cfg.Queues) > 0 {
		if cfg.Redis.URL == "" {
			return nil, fmt.Errorf("queues configured without redis url")
		}
		redisClient, err = redisq.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}

		for _, qc := range cfg.Queues {
			q := redisq.NewQueue(redisClient, qc.Queue)
			consumer, err := queue.NewConsumer(qc, queue.RedisTransport{Queue: q}, router)
			if err != nil {
				return nil, fmt.Errorf("failed to init consumer for queue %s: %w", qc.Queue, err)
			}
			consumers = append(consumers, consumer)
			queues = append(queues, q)
		}
	}

	// 5. Initialize Health Monitor
	healthMon := health.NewMonitor(policies, registry.Keys)
	if db != nil {
		healthMon.AddCheck("database", db.Health)
	}
	if redisClient != nil {
		healthMon.AddCheck("redis", redisClient.Health)
	}
	for _, q := range queues {
		healthMon.AddQueue(q)
	}

	adminServer := health.NewServer(healthMon)

	return &Relay{
		cfg:         cfg,
		registry:    registry,
		router:      router,
		policies:    policies,
		adapter:     adapter,
		httpServer:  httpServer,
		grpcServer:  grpcServer,
		consumers:   consumers,
		healthMon:   healthMon,
		adminServer: adminServer,
		db:          db,
		redisClient: redisClient,
		log:         slog.Default(),
	}, nil
}

// Start starts the relay and all its components.
func (r *Relay) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.stopRun = cancel

	// Start Admin Server
	adminLis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.Admin.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on admin port: %w", err)
	}
	go func() {
		if err := r.adminServer.Serve(adminLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("Admin server failed", "error", err)
		}
	}()

	// Start HTTP Ingress
	httpLis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.HTTP.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on http port: %w", err)
	}
	go func() {
		if err := r.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("HTTP server failed", "error", err)
		}
	}()

	// Start gRPC Runner
	if r.grpcServer != nil {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.Runner.Port))
		if err != nil {
			return fmt.Errorf("failed to listen on runner port: %w", err)
		}
		r.log.Info("gRPC runner listening", "port", r.cfg.Runner.Port)
		go func() {
			if err := r.grpcServer.Serve(lis); err != nil {
				r.log.Error("gRPC runner failed", "error", err)
			}
		}()
	}

	// Start Queue Consumers
	for _, c := range r.consumers {
		r.wg.Add(1)
		go func(c *queue.Consumer) {
			defer r.wg.Done()
			c.Run(runCtx)
		}(c)
	}

	// Start DB Metrics Collector
	if r.db != nil {
		r.db.StartMetricsCollector(runCtx)
	}

	// Start Policy Metrics Updater
	go r.runMetricsUpdater(runCtx)

	return nil
}

// Stop stops the relay. Ingress surfaces shut down first so no new work
// arrives while queue consumers drain their in-flight messages.
func (r *Relay) Stop(ctx context.Context) error {
	r.log.Info("Stopping relay...")

	// Stop Ingress
	if err := r.httpServer.Stop(ctx); err != nil {
		r.log.Warn("Failed to stop HTTP server", "error", err)
	}
	if r.grpcServer != nil {
		r.grpcServer.GracefulStop()
	}

	// Drain Consumers
	if r.stopRun != nil {
		r.stopRun()
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.log.Warn("Timed out waiting for queue consumers to drain")
	}

	// Close Connections
	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			r.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.log.Warn("Failed to close database", "error", err)
		}
	}

	// Stop Admin Server
	return r.adminServer.Stop(ctx)
}

func (r *Relay) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for action, snap := range r.policies.SnapshotAll() {
				metrics.BreakerState.WithLabelValues(action).Set(metrics.BreakerStateValue(string(snap.Breaker.State)))
				metrics.BulkheadActive.WithLabelValues(action).Set(float64(snap.Bulkhead.Active))
				metrics.BulkheadWaiting.WithLabelValues(action).Set(float64(snap.Bulkhead.Waiting))
			}
		}
	}
}
