package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/config"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/event"
	handler "github.com/riazm868/pharmacy-rx-manager-sub000/internal/handler/http"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/migrations"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/oauth"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/posapi"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/repository"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/repository/postgres"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/repository/sqlite"
	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/service"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/database"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/health"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/httpclient"
	pkgkafka "github.com/riazm868/pharmacy-rx-manager-sub000/pkg/kafka"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/tracing"
)

const serviceName = "pos-integration"

// App wires together all dependencies and runs the POS integration service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	sqliteDB       *sqlx.DB
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Insecure:       cfg.OTELInsecure,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	store, err := a.openStore(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	tokens, err := a.openTokenStore(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	// Kafka is optional; without brokers events are dropped.
	if cfg.EventsEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		producer := a.producer
		healthHandler.RegisterOptional("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	events := event.NewProducer(a.producer, logger)

	// Outbound platform client: rate limited, behind a circuit breaker.
	httpCfg := httpclient.DefaultConfig("pos")
	httpCfg.Timeout = cfg.RequestTimeout
	httpCfg.RequestsPerSecond = cfg.RequestsPerSecond
	httpCfg.Burst = cfg.RequestBurst
	doer := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("pos"),
		logger,
	)

	endpoints := oauth.PlatformEndpoints(cfg.PlatformDomain)
	manager := oauth.NewManager(oauth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		Endpoints:    endpoints,
	}, tokens, doer, logger)
	client := posapi.New(manager, doer, endpoints.APIBaseURL)

	// Build the dependency graph.
	syncEngine := service.NewSyncEngine(client, store.Medications, store.Patients, events, logger, cfg.SyncPageSize)
	resolver := service.NewSaleConfigResolver(client, cfg.RegisterName, cfg.UserName, logger)
	parking := service.NewSaleParkingService(client, resolver, store.ParkedSales, events, logger)
	builder := service.NewRequestBuilder(store.Medications, store.Patients)

	healthHandler.RegisterOptional("pos", client.Ping)

	posHandler := handler.NewPOSHandler(handler.POSHandlerConfig{
		Connector:       manager,
		State:           oauth.NewStateSigner(cfg.StateSecret, cfg.StateTTL),
		Pinger:          client,
		Syncer:          syncEngine,
		SaleConfigs:     resolver,
		Parker:          parking,
		Builder:         builder,
		CookieSecure:    cfg.CookieSecure,
		SuccessRedirect: cfg.SuccessRedirect,
	}, logger)

	router := handler.NewRouter(posHandler, healthHandler, logger, cfg.CORSAllowedOrigins)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore connects the configured backend and runs its migrations.
func (a *App) openStore(ctx context.Context, healthHandler *health.Handler) (repository.Store, error) {
	cfg, logger := a.cfg, a.logger

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pgCfg := database.DefaultPostgresConfig()
		pgCfg.Host = cfg.PostgresHost
		pgCfg.Port = cfg.PostgresPort
		pgCfg.User = cfg.PostgresUser
		pgCfg.Password = cfg.PostgresPass
		pgCfg.DBName = cfg.PostgresDB
		pgCfg.SSLMode = cfg.PostgresSSL
		pgCfg.MaxConns = cfg.DBMaxConns
		pgCfg.MinConns = cfg.DBMinConns

		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return repository.Store{}, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(pool, serviceName); err != nil {
			logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}

		if err := database.RunMigrations(ctx, pool, migrations.Postgres(), logger); err != nil {
			return repository.Store{}, fmt.Errorf("run migrations: %w", err)
		}
		healthHandler.Register("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
		return postgres.NewStore(pool), nil

	case config.BackendSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return repository.Store{}, err
		}
		a.sqliteDB = db
		logger.Info("opened SQLite store", slog.String("path", cfg.SQLitePath))

		if err := database.RunSQLiteMigrations(ctx, db, migrations.SQLite(), logger); err != nil {
			return repository.Store{}, fmt.Errorf("run migrations: %w", err)
		}
		healthHandler.Register("sqlite", func(ctx context.Context) error {
			return db.PingContext(ctx)
		})
		return sqlite.NewStore(db), nil

	default:
		return repository.Store{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// openTokenStore returns where the OAuth credential lives.
func (a *App) openTokenStore(ctx context.Context, healthHandler *health.Handler) (oauth.TokenStore, error) {
	if a.cfg.TokenStore != config.TokenStoreRedis {
		return oauth.NewMemoryStore(), nil
	}

	client, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	a.logger.Info("connected to Redis", slog.String("host", a.cfg.RedisHost), slog.Int("port", a.cfg.RedisPort))

	healthHandler.Register("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	return oauth.NewRedisStore(client, a.cfg.RedisKey, oauth.SessionLifetime), nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("store", a.cfg.StoreBackend),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order: HTTP server, tracer,
// Kafka producer, then the stores.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() []error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.sqliteDB != nil {
		if err := a.sqliteDB.Close(); err != nil {
			a.logger.Error("sqlite close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errs
}
