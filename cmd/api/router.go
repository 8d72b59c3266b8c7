package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/audit"
	"github.com/noah-isme/backend-pos/internal/auth"
	"github.com/noah-isme/backend-pos/internal/billing"
	"github.com/noah-isme/backend-pos/internal/cache"
	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/health"
	"github.com/noah-isme/backend-pos/internal/lock"
	"github.com/noah-isme/backend-pos/internal/mailer"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/product"
	"github.com/noah-isme/backend-pos/internal/ratelimit"
	"github.com/noah-isme/backend-pos/internal/security"
	"github.com/noah-isme/backend-pos/internal/user"
)

type routerDeps struct {
	cfg            *config.Config
	logger         zerolog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	tasks          *asynq.Client
	metricsNS      string
	metricsEnabled bool
	tracingEnabled bool
}

func newRouter(d routerDeps) (http.Handler, error) {
	cfg := d.cfg

	productService, err := product.NewService(product.ServiceConfig{
		Store:        product.NewPGStore(d.pool),
		NamesCache:   cache.NewJSON(d.redis, cfg.ProductNamesCacheTTL),
		DefaultLimit: cfg.PaginationDefaultLimit,
		MaxLimit:     cfg.PaginationMaxLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise product service: %w", err)
	}
	productHandler := product.NewHandler(product.HandlerConfig{Service: productService})

	billingService, err := billing.NewService(billing.ServiceConfig{
		Store:           billing.NewPGStore(d.pool),
		EarningsCache:   cache.NewJSON(d.redis, cfg.EarningsCacheTTL),
		RetryMaxElapsed: cfg.BillingRetryMaxElapsed,
		DefaultLimit:    cfg.PaginationDefaultLimit,
		MaxLimit:        cfg.PaginationMaxLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise billing service: %w", err)
	}
	billingHandler := billing.NewHandler(billing.HandlerConfig{Service: billingService})

	tokens, err := auth.NewService(auth.Config{
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
		Issuer:         "pos-api",
		Audience:       "pos-clients",
	})
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}
	authMiddleware := auth.Middleware{Tokens: tokens}

	mailQueue, err := mailer.NewQueue(mailer.QueueConfig{
		Client:   d.tasks,
		Queue:    cfg.MailQueue,
		MaxRetry: cfg.MailMaxRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise mail queue: %w", err)
	}

	userService, err := user.NewService(user.ServiceConfig{
		Store:   user.NewPGStore(d.pool),
		Secrets: user.SecretStore{R: d.redis},
		Tokens:  tokens,
		Mail:    mailQueue,
		Locker: lock.Locker{
			R:            d.redis,
			Prefix:       "lock:",
			RetryBackoff: cfg.LockRetryBackoff,
		},
		OTPTTL:   cfg.OTPTTL,
		ResetTTL: cfg.ResetTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}
	userHandler := user.NewHandler(user.HandlerConfig{Service: userService})

	auditStore := audit.PGStore{DB: d.pool}
	recorder := audit.HTTPRecorder{
		Service: audit.Service{Store: auditStore, Enabled: cfg.AuditEnabled},
		OnError: func(err error) {
			d.logger.Error().Err(err).Msg("record audit entry")
		},
	}
	auditHandler := audit.Handler{Store: auditStore}

	authLimit := ratelimit.Handler{
		Limiter: ratelimit.SlidingWindow{
			Client: d.redis,
			Prefix: "rl:auth:",
			Window: cfg.RateLimitAuthWindow,
			Max:    cfg.RateLimitAuthMax,
		},
		Key: ratelimit.KeyByIP("auth"),
		OnError: func(err error) {
			d.logger.Warn().Err(err).Msg("auth rate limiter unavailable")
		},
	}

	limiterStore, err := ratelimit.NewRedisStore(d.redis, "rl:global")
	if err != nil {
		return nil, fmt.Errorf("initialise rate limit store: %w", err)
	}
	globalLimiter, err := ratelimit.NewFixed(limiterStore, cfg.RateLimitGlobal)
	if err != nil {
		return nil, err
	}
	globalLimit := ratelimit.Handler{
		Limiter: globalLimiter,
		Key:     ratelimit.KeyByIP("global"),
		OnError: func(err error) {
			d.logger.Warn().Err(err).Msg("global rate limiter unavailable")
		},
	}

	idem := common.Idem{R: d.redis, TTL: cfg.IdempotencyTTL, Prefix: "idem:billing:"}

	requireAdmin := authMiddleware.RequireRole(string(user.RoleAdmin))
	adminMutations := func(next http.Handler) http.Handler {
		return chi.Chain(requireAdmin, recorder.Mutations).Handler(next)
	}
	adminOnly := func(next http.Handler) http.Handler {
		return chi.Chain(authMiddleware.RequireAuth, requireAdmin, recorder.Mutations).Handler(next)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if d.metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(d.metricsNS, buckets, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: len(cfg.CORSAllowedOrigins) > 0,
		MaxAge:           300,
	}))
	r.Use(security.Headers{
		Enable:     cfg.SecurityHeadersEnabled,
		EnableHSTS: cfg.AppEnv == "production",
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.HTTPBodyLimitBytes}.Middleware)

	if d.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		pprofUser := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pprofPass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), pprofUser, pprofPass))
	}

	healthHandler := health.Handler{
		Checker:      health.Deps{DB: d.pool, Redis: d.redis},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(globalLimit.Middleware)

		v.Route("/users", func(u chi.Router) {
			userHandler.Routes(u, authLimit.Middleware, adminOnly)
		})

		v.Route("/products", func(p chi.Router) {
			p.Use(authMiddleware.RequireAuth)
			productHandler.Routes(p, adminMutations)
		})

		v.Route("/billing", func(b chi.Router) {
			b.Use(authMiddleware.RequireAuth)
			billingHandler.Routes(b, idem.Middleware)
		})

		v.With(authMiddleware.RequireAuth, requireAdmin).Get("/audit-logs", auditHandler.List)
	})

	return r, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
