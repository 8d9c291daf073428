package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/observability/metrics"
	"github.com/hackgods/clinic-scheduling/internal/reconcile"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

// lookbackDays bounds the scan to recent appointments.
const lookbackDays = 30

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err.Error())
		os.Exit(1)
	}

	logger := logging.New(&logging.Config{Level: cfg.LogLevel, Console: cfg.IsDev()}).
		With("service", "reconcile-worker", "env", cfg.Env)
	logger.Info("reconcile worker starting up", "interval", cfg.WorkerInterval.String())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err.Error())
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	repo := appointment.NewPgRepository(pgPool)
	m := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener error", "error", err.Error())
		}
	}()

	reconcile.NewScanner(repo, m, logger, lookbackDays).Run(rootCtx, cfg.WorkerInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
