package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-vloer/internal/config"
	"github.com/noah-isme/backend-vloer/internal/lock"
	"github.com/noah-isme/backend-vloer/internal/obs"
	"github.com/noah-isme/backend-vloer/internal/repo"
	"github.com/noah-isme/backend-vloer/internal/resilience"
	"github.com/noah-isme/backend-vloer/internal/vat"
)

// The worker owns periodic VAT revalidation. It re-checks saved company VAT
// numbers against the registry and flags the ones that stopped being valid,
// so a stale registration cannot keep earning reverse-charge treatment.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().
		Str("env", cfg.AppEnv).
		Str("component", "worker").
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	viesBreaker := resilience.NewBreaker("vat-registry",
		envInt("CIRCUIT_VIES_MIN_REQUESTS", 5),
		envFloat("CIRCUIT_VIES_FAILURE_RATIO", 0.5),
		time.Duration(envInt("CIRCUIT_VIES_OPEN_FOR_MS", 30000))*time.Millisecond,
	).WithLogger(logger)
	revalidator := &vat.Revalidator{
		Store: &repo.VatNumberStore{Pool: pool},
		Service: &vat.Service{
			Registry: vat.ViesClient{
				BaseURL: cfg.ViesBaseURL,
				HTTP: &resilience.HTTPClient{
					Client:      &http.Client{},
					Breaker:     viesBreaker,
					MaxAttempts: 1,
					Timeout:     cfg.ViesTimeout,
				},
				Timeout: cfg.ViesTimeout,
			},
			HomeCountry: cfg.HomeCountry,
			RateBps:     cfg.VatRateBps,
			Logger:      &logger,
		},
		Interval:  cfg.VatRecheckInterval,
		BatchSize: envInt("VAT_RECHECK_BATCH_SIZE", 100),
		Logger:    &logger,
	}

	locker := lock.Locker{R: redisClient}
	tickEvery := time.Duration(envInt("VAT_RECHECK_TICK_MS", 3600000)) * time.Millisecond

	logger.Info().
		Dur("tick", tickEvery).
		Dur("recheck_interval", cfg.VatRecheckInterval).
		Msg("worker starting")

	runRevalidation := func() {
		err := locker.WithLock(ctx, "locks:vat-revalidate", tickEvery, func(ctx context.Context) error {
			checked, err := revalidator.RunOnce(ctx)
			if err != nil {
				return err
			}
			if checked > 0 {
				logger.Info().Int("checked", checked).Msg("vat revalidation pass complete")
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("vat revalidation pass failed")
		}
	}

	runRevalidation()

	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker shutting down")
			return
		case <-ticker.C:
			runRevalidation()
		}
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "vloer-worker"

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(pingCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}
