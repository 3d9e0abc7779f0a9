package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"fleetops/internal/api"
	"fleetops/internal/buildinfo"
	"fleetops/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := cfg.Log.Logger(os.Stderr)
	slog.SetDefault(logger)

	srvDeps, err := api.NewServer(cfg, logger)
	if err != nil {
		logger.Error("failed to init server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := newHTTPServer(ctx, cfg.Server, srvDeps.Handler())

	// Start webhook worker
	var worker interface{ Stop() }
	if cfg.Webhooks.Enabled {
		w := srvDeps.NewWebhookWorker()
		w.Start(ctx)
		worker = w
	}

	go func() {
		logger.Info("API listening", "addr", cfg.Server.Addr, "version", buildinfo.Version, "store", cfg.Store.Driver, "auth", cfg.Auth.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	if worker != nil {
		worker.Stop()
	}
	if err := srvDeps.Close(); err != nil {
		logger.Error("close", "err", err)
	}
}

// newHTTPServer derives request contexts from ctx, so open event streams end
// once ctx is cancelled.
func newHTTPServer(ctx context.Context, cfg config.ServerConfig, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}
