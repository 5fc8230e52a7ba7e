package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/config"
	"github.com/pixelctl/pixelctl/internal/core/store"
	apperrors "github.com/pixelctl/pixelctl/internal/errors"
	"github.com/pixelctl/pixelctl/internal/observability"
	"github.com/pixelctl/pixelctl/internal/pixelapi"
	"github.com/pixelctl/pixelctl/internal/server"
	"github.com/pixelctl/pixelctl/internal/server/handlers"
)

// storeHealthChecker pings the journal database.
type storeHealthChecker struct {
	db *store.Store
}

func (c storeHealthChecker) CheckHealth(ctx context.Context) error {
	if c.db == nil || c.db.DB == nil {
		return apperrors.NewUnavailableError("store is not open")
	}
	return c.db.DB.PingContext(ctx)
}

// telemetryHealthChecker reports whether the Prometheus exporter is up.
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return apperrors.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// startMetrics starts the Prometheus exporter when metrics are enabled. The
// returned stop function is always safe to call.
func startMetrics(cfg config.MetricsConfig) func() {
	if !cfg.Enabled {
		return func() {}
	}
	if err := observability.InitMetrics(cfg.Port); err != nil {
		observability.CLILogger.Warn("Metrics exporter not started", zap.Error(err))
		return func() {}
	}
	observability.CLILogger.Info("Metrics exporter started", zap.Int("port", observability.GetMetricsPort()))
	return func() {
		if err := observability.StopMetrics(); err != nil {
			observability.CLILogger.Debug("Metrics exporter stop returned error", zap.Error(err))
		}
	}
}

// startStatusServer starts the status server over pool and db. The returned
// stop function shuts it down within the configured timeout.
func startStatusServer(cfg *config.Config, pool *pixelapi.Pool, db *store.Store) (func(), error) {
	observability.InitServerLogger(config.AppName, cfg.Logging.Level)

	opts := server.Options{
		Host:         cfg.Status.Host,
		Port:         cfg.Status.Port,
		ReadTimeout:  cfg.Status.ReadTimeout,
		WriteTimeout: cfg.Status.WriteTimeout,
		Version:      versionInfo.Version,
		Checks:       map[string]handlers.HealthChecker{},
	}
	if pool != nil {
		opts.Limits = pool.Limits
	}
	if db != nil {
		opts.Placements = db
		opts.Snapshots = db
		opts.Checks["store"] = storeHealthChecker{db: db}
	}
	if cfg.Metrics.Enabled {
		opts.Checks["telemetry"] = telemetryHealthChecker{}
	}

	srv := server.New(opts)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	observability.CLILogger.Info("Status server listening", zap.String("addr", srv.Addr()))

	timeout := cfg.Status.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			observability.CLILogger.Warn("Status server shutdown failed", zap.Error(err))
		}
	}, nil
}

// runUntilSignal runs fn with a context that SIGINT/SIGTERM cancel. The
// shutdown handler waits up to grace for fn to return so the journal is
// flushed before the process exits. Cancellation is not reported as an
// error.
func runUntilSignal(parent context.Context, grace time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	done := make(chan struct{})
	signals.OnShutdown(func(context.Context) error {
		observability.CLILogger.Info("Stopping, waiting for in-flight work")
		cancel()
		select {
		case <-done:
		case <-time.After(grace):
			observability.CLILogger.Warn("Timed out waiting for in-flight work", zap.Duration("grace", grace))
		}
		return nil
	})
	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		observability.CLILogger.Debug("Double-tap force quit unavailable", zap.Error(err))
	}

	go func() {
		if err := signals.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			observability.CLILogger.Debug("Signal listener stopped", zap.Error(err))
		}
	}()

	err := fn(ctx)
	close(done)
	if err != nil && errors.Is(err, context.Canceled) && parent.Err() == nil {
		return nil
	}
	return err
}
