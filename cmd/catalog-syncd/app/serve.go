package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openmerch/catalog-sync/internal/app"
	"github.com/openmerch/catalog-sync/internal/config"
)

const defaultGracefulTimeout = 30 * time.Second

var (
	serveConfigPath string
	serveAddress    string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog sync API server",
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to the configuration file (required)")
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "HTTP listen address (overrides configuration)")
	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(config.WithConfigPath(serveConfigPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	opts := []app.AppOption{app.WithConfig(cfg)}
	if serveAddress != "" {
		opts = append(opts, app.WithAddress(serveAddress))
	}

	a, err := app.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	if err := a.Stop(defaultGracefulTimeout); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
