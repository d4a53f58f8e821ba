package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-vloer/internal/common"
	"github.com/noah-isme/backend-vloer/internal/config"
	"github.com/noah-isme/backend-vloer/internal/formula"
	"github.com/noah-isme/backend-vloer/internal/health"
	"github.com/noah-isme/backend-vloer/internal/obs"
	"github.com/noah-isme/backend-vloer/internal/pricecache"
	"github.com/noah-isme/backend-vloer/internal/pricing"
	"github.com/noah-isme/backend-vloer/internal/ratelimit"
	"github.com/noah-isme/backend-vloer/internal/repo"
	"github.com/noah-isme/backend-vloer/internal/resilience"
	"github.com/noah-isme/backend-vloer/internal/security"
	"github.com/noah-isme/backend-vloer/internal/tier"
	"github.com/noah-isme/backend-vloer/internal/vat"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "vloer")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "vloer-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "vloer-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	priceListStore := &repo.PriceListStore{Pool: pool}
	formulaStore := &repo.FormulaStore{Pool: pool}

	viesLogger := logger.With().Str("component", "vies").Logger()
	viesBreaker := resilience.NewBreaker("vat-registry",
		envInt("CIRCUIT_VIES_MIN_REQUESTS", 5),
		envFloat("CIRCUIT_VIES_FAILURE_RATIO", 0.5),
		envDurationMillis("CIRCUIT_VIES_OPEN_FOR_MS", 30000),
	).WithLogger(viesLogger)
	viesClient := vat.ViesClient{
		BaseURL: cfg.ViesBaseURL,
		HTTP: &resilience.HTTPClient{
			Client:      &http.Client{},
			Breaker:     viesBreaker,
			MaxAttempts: 1,
			Timeout:     cfg.ViesTimeout,
		},
		Timeout: cfg.ViesTimeout,
	}
	vatService := &vat.Service{
		Registry:    viesClient,
		HomeCountry: cfg.HomeCountry,
		RateBps:     cfg.VatRateBps,
		Logger:      &logger,
	}
	vatHandler := vat.NewHandler(vat.HandlerConfig{Service: vatService})

	tierService := &tier.Service{Q: priceListStore}
	formulaService := &formula.Service{Q: formulaStore}
	pricingService := &pricing.Service{
		Tiers:          tierService,
		Formulas:       formulaService,
		Variants:       priceListStore,
		QuoteCache:     pricecache.New(cfg.QuoteCacheTTL, cfg.CacheSweepEntries),
		StartingCache:  pricecache.New(cfg.StartingCacheTTL, cfg.CacheSweepEntries),
		Redis:          pricing.NewRedisCache(redisClient, cfg.StartingCacheTTL),
		FallbackPerSqm: pricing.Money(cfg.FallbackPerSqm),
		Logger:         &logger,
	}
	pricingHandler := &pricing.Handler{Svc: pricingService}

	tierHandler := &tier.Handler{Svc: tierService}
	tierAdmin := &tier.AdminHandler{Svc: &tier.AdminService{
		Store:      priceListStore,
		Validate:   validator.New(),
		Invalidate: pricingService.InvalidateCaches,
	}}
	formulaAdmin := &formula.AdminHandler{Svc: &formula.AdminService{
		Store:      formulaStore,
		Invalidate: pricingService.InvalidateCaches,
	}}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{
		Enable:                envBool("SECURE_HEADERS_ENABLED", true),
		EnableHSTS:            envBool("SECURE_HSTS_ENABLED", false),
		HSTSMaxAge:            envInt("SECURE_HSTS_MAX_AGE", 31536000),
		HSTSIncludeSubdomains: envBool("SECURE_HSTS_INCLUDE_SUBDOMAINS", true),
	}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("SECURE_MAX_BODY_BYTES", 1<<20))}.Middleware)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", true)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	adminToken := envOrDefault("ADMIN_API_TOKEN", "")

	quoteLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:quote:"},
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: envDurationMillis("RATE_LIMIT_QUOTE_WINDOW_MS", 60000),
			Max:    envInt("RATE_LIMIT_QUOTE_MAX", 120),
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
		},
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Group(func(limited chi.Router) {
			limited.Use(quoteLimiter.Middleware)
			limited.Post("/quote", pricingHandler.Quote)
			limited.Post("/quote/tax", vatHandler.QuoteTax)
			limited.Post("/vat/validate", vatHandler.Validate)
		})
		v.Get("/products/{id}/starting-from", pricingHandler.StartingFrom)
		v.Get("/variants/{id}/tiers", tierHandler.TiersForVariant)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(requireAdminToken(adminToken))
			admin.Use(common.Idem{R: redisClient, TTL: envDurationMillis("IDEMPOTENCY_TTL_MS", 60000)}.Middleware)
			admin.Get("/price-lists", tierAdmin.List)
			admin.Post("/price-lists", tierAdmin.Create)
			admin.Get("/price-lists/{id}", tierAdmin.Get)
			admin.Put("/price-lists/{id}", tierAdmin.Update)
			admin.Delete("/price-lists/{id}", tierAdmin.Delete)
			admin.Post("/price-lists/{id}/tiers", tierAdmin.CreateTier)
			admin.Post("/price-lists/{id}/variants", tierAdmin.LinkVariant)
			admin.Delete("/price-lists/{id}/variants/{variantId}", tierAdmin.UnlinkVariant)
			admin.Put("/tiers/{id}", tierAdmin.UpdateTier)
			admin.Delete("/tiers/{id}", tierAdmin.DeleteTier)

			admin.Get("/formulas", formulaAdmin.List)
			admin.Post("/formulas", formulaAdmin.Create)
			admin.Post("/formulas/validate", formulaAdmin.ValidateExpression)
			admin.Get("/formulas/{id}", formulaAdmin.Get)
			admin.Put("/formulas/{id}", formulaAdmin.Update)
			admin.Delete("/formulas/{id}", formulaAdmin.Delete)

			admin.Post("/cache/clear", func(w http.ResponseWriter, r *http.Request) {
				pricingService.InvalidateCaches(r.Context())
				w.WriteHeader(http.StatusNoContent)
			})
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-shutdownCtx.Done():
		health.SetReady(false)
		drainCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_GRACE_MS", 10000))
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown incomplete")
		}
		logger.Info().Msg("server stopped")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func requireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin API disabled", nil)
				return
			}
			header := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(header), []byte(token)) != 1 {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "forbidden", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
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

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
