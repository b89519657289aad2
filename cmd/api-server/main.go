package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/api"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logger"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
	"github.com/hackgods/clinic-appointment-scheduling/internal/weather"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api-server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	log.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store", cfg.StoreDriver),
		zap.String("locks", cfg.LockDriver),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewCollector("clinic")

	var (
		repo   appointment.Repository
		pgPool *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
		if err == nil {
			err = db.Migrate(pgCtx, pool)
			if err != nil {
				pool.Close()
			}
		}
		cancelPg()
		if err != nil {
			return err
		}
		defer pool.Close()
		log.Info("connected to Postgres")

		pgPool = pool
		repo = appointment.NewPgRepository(pool)
	default:
		log.Warn("using in-memory store; data is lost on restart")
		repo = appointment.NewMemoryRepository()
	}

	var (
		rdb    *redis.Client
		locker redisclient.Locker
		cache  weather.Cache
	)
	switch cfg.LockDriver {
	case config.LockerRedis:
		client, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				log.Warn("error closing redis", zap.Error(err))
			}
		}()
		log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

		rdb = client
		locker = redisclient.NewRedisSubjectLocker(client, cfg.LockTTL, cfg.LockWait)
		cache = weather.NewRedisCache(client)
	default:
		log.Warn("using in-process subject locks; run a single replica")
		locker = redisclient.NewLocalSubjectLocker(cfg.LockTTL, cfg.LockWait)
	}

	forecasts := weather.NewClient(weather.Options{
		BaseURL:  cfg.WeatherBaseURL,
		Timeout:  cfg.WeatherTimeout,
		CacheTTL: cfg.WeatherCacheTTL,
	}, cache, m, log.Named("weather"))

	svc := appointment.NewService(repo, locker, cfg, log.Named("appointment"),
		appointment.WithMetrics(m),
		appointment.WithWeather(forecasts),
	)

	router := api.NewRouter(api.RouterConfig{
		Service:     svc,
		PgPool:      pgPool,
		Redis:       rdb,
		Metrics:     m,
		Logger:      log.Named("http"),
		JWTSecret:   cfg.JWTSecret,
		HorizonDays: cfg.HorizonDays(),
		Env:         cfg.Env,
		Version:     version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-rootCtx.Done():
	}

	log.Info("shutting down api-server", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("api-server stopped")
	return nil
}
