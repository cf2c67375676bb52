package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/openmerch/catalog-sync/internal/api"
	"github.com/openmerch/catalog-sync/internal/catalog"
	"github.com/openmerch/catalog-sync/internal/catalog/inmemory"
	"github.com/openmerch/catalog-sync/internal/catalog/postgres"
	"github.com/openmerch/catalog-sync/internal/config"
	"github.com/openmerch/catalog-sync/internal/db"
	"github.com/openmerch/catalog-sync/internal/pipeline"
	"github.com/openmerch/catalog-sync/internal/pipeline/coordinator"
	"github.com/openmerch/catalog-sync/internal/queue"
	queueinmemory "github.com/openmerch/catalog-sync/internal/queue/inmemory"
	"github.com/openmerch/catalog-sync/internal/source"
	"github.com/openmerch/catalog-sync/internal/telemetry"
	"github.com/openmerch/catalog-sync/internal/tracker"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// AppOption configures the application builder. It supports dependency
// injection for testing while providing sensible defaults for production.
type AppOption func(*appConfig) error

type appConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	store     catalog.Store
	inventory source.Inventory

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) AppOption {
	return func(cfg *appConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress overrides the HTTP listen address from the configuration
func WithAddress(addr string) AppOption {
	return func(cfg *appConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}
		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) AppOption {
	return func(cfg *appConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStore allows injecting a custom catalog store (for testing)
func WithStore(s catalog.Store) AppOption {
	return func(cfg *appConfig) error {
		cfg.store = s
		return nil
	}
}

// WithInventory allows injecting a custom inventory source (for testing)
func WithInventory(inv source.Inventory) AppOption {
	return func(cfg *appConfig) error {
		cfg.inventory = inv
		return nil
	}
}

// New builds the application: catalog store, inventory source, pipeline
// components, task queue and HTTP server.
func New(_ context.Context, opts ...AppOption) (*App, error) {
	cfg := &appConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.ListenAddr
	}

	// Storage: PostgreSQL when configured, in-memory otherwise.
	var conn *db.Connection
	store := cfg.store
	if store == nil {
		if cfg.config.Database != nil {
			var err error
			conn, err = db.NewConnection(cfg.config.Database)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to database: %w", err)
			}
			store = postgres.New(conn.DB)
		} else {
			slog.Info("No database configured, using in-memory catalog store")
			store = inmemory.New()
		}
	}

	inventory := cfg.inventory
	if inventory == nil {
		inventory = source.NewHTTPInventory(&cfg.config.Source)
	}

	var metrics *telemetry.Metrics
	if cfg.config.Telemetry.Enabled {
		metrics = telemetry.New()
	}

	trk := tracker.NewInMemory()
	resolver := pipeline.NewUpsertResolver(store)

	orphanOpts := []pipeline.OrphanOption{
		pipeline.WithOrphanInterval(cfg.config.Pipeline.OrphanRetryIntervalDuration()),
		pipeline.WithOrphanMaxAttempts(cfg.config.Pipeline.OrphanMaxAttempts),
	}
	if metrics != nil {
		orphanOpts = append(orphanOpts, pipeline.WithOrphanMetrics(metrics))
	}
	orphans := pipeline.NewOrphanRetryManager(store, resolver, trk, orphanOpts...)
	gate := pipeline.NewOrderingGate(store, orphans)

	q := queueinmemory.New(
		queueinmemory.WithWorkers(cfg.config.Queue.Workers),
		queueinmemory.WithDeadLetter(deadLetterFunc(trk)),
	)

	workerOpts := []pipeline.WorkerOption{
		pipeline.WithDeadline(cfg.config.Pipeline.WorkerDeadlineDuration()),
	}
	if metrics != nil {
		workerOpts = append(workerOpts, pipeline.WithWorkerMetrics(metrics))
	}
	batchWorker := pipeline.NewWorker(inventory, resolver, gate, orphans, trk, q, workerOpts...)
	q.Register(pipeline.TaskKindSyncBatch, batchWorker.HandleTask)

	coord := coordinator.New(cfg.config, inventory, q, trk)
	coordinator.Register(q, coord)

	if cfg.middlewares == nil {
		cfg.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(cfg.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(cfg.middlewares...),
		api.WithReadiness(readinessProbe(conn)),
	}
	if metrics != nil {
		metrics.ObserveQueueDepth(q.Depth)
		serverOpts = append(serverOpts,
			api.WithMetricsHandler(metrics.Handler()),
			api.WithSubmissionMetrics(metrics),
		)
	}
	router := api.NewServer(coord, trk, serverOpts...)

	httpServer := &http.Server{
		Addr:         cfg.address,
		Handler:      router,
		ReadTimeout:  cfg.readTimeout,
		WriteTimeout: cfg.writeTimeout,
		IdleTimeout:  cfg.idleTimeout,
	}
	slog.Info("HTTP server configured", "address", cfg.address)

	return &App{
		config:     cfg.config,
		httpServer: httpServer,
		queue:      q,
		orphans:    orphans,
		conn:       conn,
	}, nil
}

// deadLetterFunc settles the sync request owning a task that ran out of
// delivery attempts, so the client never polls a request that can no
// longer finish.
func deadLetterFunc(trk tracker.Tracker) queue.DeadLetterFunc {
	return func(task *queue.Task, err error) {
		slog.Error("Task dead-lettered", "kind", task.Kind, "task_id", task.ID, "error", err)

		var requestID string
		switch task.Kind {
		case coordinator.TaskKindEnumerate:
			var payload coordinator.EnumerateTaskPayload
			if decodeErr := queue.Unmarshal(task, &payload); decodeErr != nil {
				return
			}
			requestID = payload.RequestID
		case pipeline.TaskKindSyncBatch:
			var payload pipeline.BatchTaskPayload
			if decodeErr := queue.Unmarshal(task, &payload); decodeErr != nil {
				return
			}
			requestID = payload.Batch.RequestID
		default:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if trkErr := trk.RecordBatchOutcome(ctx, requestID, tracker.BatchOutcome{Aborted: true}); trkErr != nil {
			slog.Error("Failed to settle dead-lettered task",
				"request_id", requestID,
				"error", trkErr)
		}
	}
}

func readinessProbe(conn *db.Connection) func(context.Context) error {
	return func(context.Context) error {
		if conn != nil {
			return conn.Ping()
		}
		return nil
	}
}
