package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"payment-limiter/internal/config"
	"payment-limiter/internal/handler"
	"payment-limiter/internal/logging"
	"payment-limiter/internal/metrics"
	"payment-limiter/internal/ratelimit"
	"payment-limiter/internal/repository"
	"payment-limiter/internal/service"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, loaded, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config")
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		boot.Fatal().Err(err).Msg("logger")
	}
	if !loaded {
		log.Debug().Msg("no .env file loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server gracefully stopped")
}

// run binds cfg.HTTPAddr and serves until ctx is done.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}
	return serve(ctx, cfg, log, ln)
}

// serve wires storage, limiter, metrics and handlers, then serves on ln until
// ctx is done. ln is closed on return.
func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger, ln net.Listener) error {
	defer ln.Close()

	// Postgres optional
	var store repository.Store = repository.NewMemoryRepo()
	if cfg.DatabaseDSN != "" {
		db, err := sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("db ping: %w", err)
		}
		repo := repository.NewRepo(db)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		store = repo
		log.Info().Msg("postgres connected")
	}

	// Redis optional
	var cache service.PaymentCache = service.NewMemoryCache()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed, using in-memory payment cache")
			_ = rdb.Close()
		} else {
			defer rdb.Close()
			cache = service.NewRedisCache(rdb, cfg.PaymentCacheTTL)
			log.Info().Msg("redis connected")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var limiter *ratelimit.Limiter
	rec := metrics.New(reg, func() int { return limiter.Len() })
	limiter = ratelimit.New(cfg.RateCapacity, cfg.RateRefill, ratelimit.WithObserver(rec))

	svc := service.NewService(store, cache, service.NewLocalGateway(), log)
	svc.MaxRetries = cfg.PaymentMaxRetries
	svc.RetryBackoff = cfg.PaymentRetryBackoff

	h := handler.NewHandler(svc, limiter, log)
	h.Recorder = rec
	h.Gatherer = reg

	// CORS
	allowed := handlers.AllowedOrigins([]string{"*"})
	allowedHeaders := handlers.AllowedHeaders([]string{"Content-Type"})
	allowedMethods := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{log}), handlers.PrintRecoveryStack(true))

	srv := &http.Server{
		Handler:      recovery(handlers.CORS(allowed, allowedHeaders, allowedMethods)(h.Routes())),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ln.Addr().String()
		log.Info().Str("addr", addr).Msg("server listening on http://" + addr + "/pay")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.RateIdleTTL > 0 {
		g.Go(func() error {
			log.Info().Dur("idle_ttl", cfg.RateIdleTTL).Dur("interval", cfg.SweepInterval).Msg("idle bucket eviction enabled")
			err := limiter.Run(gctx, cfg.SweepInterval, cfg.RateIdleTTL)
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}
	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type recoveryLogger struct {
	log zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error().Interface("panic", v).Msg("recovered from panic")
}
