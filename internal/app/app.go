package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/utafrali/authcore/internal/auth"
	"github.com/utafrali/authcore/internal/config"
	"github.com/utafrali/authcore/internal/credential"
	"github.com/utafrali/authcore/internal/event"
	handler "github.com/utafrali/authcore/internal/handler/http"
	"github.com/utafrali/authcore/internal/rbac"
	"github.com/utafrali/authcore/internal/repository"
	"github.com/utafrali/authcore/internal/repository/postgres"
	redisstore "github.com/utafrali/authcore/internal/repository/redis"
	"github.com/utafrali/authcore/internal/service"
	"github.com/utafrali/authcore/migrations"
	"github.com/utafrali/authcore/pkg/database"
	"github.com/utafrali/authcore/pkg/health"
	"github.com/utafrali/authcore/pkg/httpclient"
	pkgkafka "github.com/utafrali/authcore/pkg/kafka"
	"github.com/utafrali/authcore/pkg/middleware"
	"github.com/utafrali/authcore/pkg/tracing"
)

const serviceName = "authcore"

// App wires together all dependencies and runs authcore.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	sessions       *service.SessionService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	slowQuery := time.Duration(cfg.SlowQueryThresholdMs) * time.Millisecond
	pgTracer := database.NewQueryTracer("postgresql", slowQuery, logger)

	// Session store.
	var (
		sessionStore repository.SessionStore
		redisClient  *goredis.Client
	)
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		redisClient, err = database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		sessionStore = redisstore.NewSessionStore(redisClient, database.NewQueryTracer("redis", slowQuery, logger))
	default:
		sessionStore = postgres.NewSessionStore(pool, pgTracer)
	}
	logger.Info("session store selected", slog.String("store", cfg.SessionStore))

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	identityRepo := postgres.NewIdentityRepository(pool, pgTracer)
	roleRepo := postgres.NewRoleRepository(pool)
	permissionRepo := postgres.NewPermissionRepository(pool, pgTracer)
	events := event.NewProducer(producer, logger)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.RefreshTokenSecret, cfg.AccessTTL(), cfg.RefreshTTL())
	hasher := credential.NewHasher(credential.BcryptCost)
	evaluator := rbac.NewEvaluator(rbac.Config{Enabled: cfg.RBACEnabled}, permissionRepo, logger)

	identityService := service.NewIdentityService(identityRepo, roleRepo, sessionStore, hasher, events, logger)
	roleService := service.NewRoleService(roleRepo, permissionRepo, logger)

	sources := []credential.Source{credential.NewLocalSource(identityRepo, hasher, logger)}
	var google handler.OAuthProvider
	if cfg.UseGoogleAuth {
		breaker := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("google"),
			logger,
		)
		google = credential.NewGoogleProvider(credential.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			CallbackURL:  cfg.GoogleCallbackURL,
		}, breaker)
		sources = append(sources, credential.NewExternalSource(
			credential.SourceGoogle, identityRepo, roleRepo, logger, identityService.OnRegistered,
		))
		logger.Info("google sign-in enabled")
	}

	sessionService := service.NewSessionService(tokens, sessionStore, identityRepo, roleRepo, evaluator, events, logger, sources...)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(sessionService, identityService, roleService, healthHandler, logger, handler.RouterConfig{
		Cookies: handler.CookieConfig{
			Secure:     cfg.IsProduction(),
			AccessTTL:  cfg.AccessTTL(),
			RefreshTTL: cfg.RefreshTTL(),
		},
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowCredentials: true,
		},
		TrustProxy:  cfg.TrustProxy,
		RBACEnabled: cfg.RBACEnabled,
		Google:      google,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		sessions:       sessionService,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the session pruner and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	go a.pruneSessions(pruneCtx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// pruneSessions deletes expired Session Records every SessionPruneInterval.
func (a *App) pruneSessions(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SessionPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.sessions.PruneExpired(ctx)
			if err != nil {
				a.logger.Error("session prune failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.Info("expired sessions pruned", slog.Int64("count", n))
			}
		}
	}
}

// Shutdown gracefully stops all components in order: HTTP server, tracer,
// Kafka producer, Redis, PostgreSQL.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Flush after the HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
