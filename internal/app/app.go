// Package app wires configuration, storage, the reconciliation pipeline
// and the HTTP API into a runnable server.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmerch/catalog-sync/internal/config"
	"github.com/openmerch/catalog-sync/internal/db"
	"github.com/openmerch/catalog-sync/internal/pipeline"
	queueinmemory "github.com/openmerch/catalog-sync/internal/queue/inmemory"
)

// App is the assembled catalog-sync service.
type App struct {
	config     *config.Config
	httpServer *http.Server
	queue      *queueinmemory.Queue
	orphans    *pipeline.OrphanRetryManager
	conn       *db.Connection

	cancelBackground context.CancelFunc
}

// Start launches the task queue consumers and the orphan retry sweep in
// the background, then serves HTTP. It blocks until the server stops.
func (a *App) Start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	a.cancelBackground = cancel

	go func() {
		if err := a.queue.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Task queue stopped", "error", err)
		}
	}()
	go func() {
		if err := a.orphans.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Orphan retry manager stopped", "error", err)
		}
	}()

	slog.Info("Starting catalog sync server", "address", a.httpServer.Addr)
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server and background workers,
// waiting up to timeout for in-flight requests to drain.
func (a *App) Stop(timeout time.Duration) error {
	slog.Info("Shutting down catalog sync server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := a.httpServer.Shutdown(ctx)

	if a.cancelBackground != nil {
		a.cancelBackground()
	}
	if a.conn != nil {
		if closeErr := a.conn.Close(); closeErr != nil {
			slog.Error("Failed to close database connection", "error", closeErr)
		}
	}
	return err
}
