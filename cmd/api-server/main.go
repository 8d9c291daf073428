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
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/booking"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/editor"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/timegrid"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err.Error())
		os.Exit(1)
	}

	logger := logging.New(&logging.Config{Level: cfg.LogLevel, Console: cfg.IsDev()}).
		With("service", "api-server", "env", cfg.Env)
	logger.Info("api-server starting up", "http_port", cfg.HTTPPort, "version", version)

	if err := run(cfg, logger); err != nil {
		logger.Error("api-server stopped with error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("api-server shut down")
}

func run(cfg config.Config, logger *logging.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: int32(cfg.DBMaxConns)})
	cancelPg()
	if err != nil {
		return err
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Redis is optional; without it practitioner-day writes are serialised within this process only.
	var (
		rdb    *redis.Client
		locker redisclient.Locker = redisclient.NewLocalDayLocker()
	)
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", "error", err.Error())
			}
		}()
		locker = redisclient.NewRedisDayLocker(rdb, cfg.LockTTL)
		logger.Info("connected to Redis", "lock_ttl", cfg.LockTTL.String())
	} else {
		logger.Warn("REDIS_ADDR not set, practitioner-day lock is process-local")
	}

	grid, err := timegrid.New(cfg.Grid())
	if err != nil {
		return err
	}
	policy, err := appointment.PolicyByName(cfg.StatusPolicy)
	if err != nil {
		return err
	}

	store := appointment.NewCachedStore(appointment.NewPgRepository(pgPool), cfg.LookupCacheTTL)
	checker := availability.NewChecker(store, grid, cfg.DefaultDuration)
	notifier := events.NewNotifier()
	m := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)

	unsubscribe := notifier.Subscribe("audit-log", func(e events.Event) {
		logger.Debug("calendar event",
			"kind", string(e.Kind),
			"appointment_id", e.AppointmentID.String(),
			"practitioner_id", e.PractitionerID.String(),
			"date", e.Date.String(),
		)
	})
	defer unsubscribe()

	bookings := booking.NewService(store, checker, locker, notifier, m, logger, booking.Config{
		SlotGranularity: cfg.SlotGranularity(),
		DefaultDuration: cfg.DefaultDuration,
	})
	editors := editor.NewService(store, checker, locker, policy, notifier, m, logger)

	router := api.NewRouter(api.RouterConfig{
		Store:           store,
		Checker:         checker,
		Bookings:        bookings,
		Editors:         editors,
		Locker:          locker,
		Notifier:        notifier,
		Metrics:         m,
		Logger:          logger,
		SlotGranularity: cfg.SlotGranularity(),
		Postgres:        pgPool,
		Redis:           rdb,
		Gatherer:        prometheus.DefaultGatherer,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
		SessionIdleTTL:  cfg.SessionIdleTTL,
		Env:             cfg.Env,
		Version:         version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-rootCtx.Done():
	}

	logger.Info("shutting down api-server", "timeout", cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
