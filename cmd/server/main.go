package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	billingapp "github.com/arcade/backend/internal/application/billing"
	financeapp "github.com/arcade/backend/internal/application/finance"
	"github.com/arcade/backend/internal/domain/finance"
	domainnotification "github.com/arcade/backend/internal/domain/notification"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/infrastructure/auth"
	"github.com/arcade/backend/internal/infrastructure/cache"
	"github.com/arcade/backend/internal/infrastructure/config"
	"github.com/arcade/backend/internal/infrastructure/logger"
	"github.com/arcade/backend/internal/infrastructure/migration"
	"github.com/arcade/backend/internal/infrastructure/notification"
	"github.com/arcade/backend/internal/infrastructure/payment"
	"github.com/arcade/backend/internal/infrastructure/persistence"
	"github.com/arcade/backend/internal/infrastructure/scheduler"
	"github.com/arcade/backend/internal/infrastructure/telemetry"
	"github.com/arcade/backend/internal/interfaces/http/handler"
	"github.com/arcade/backend/internal/interfaces/http/middleware"
	"github.com/arcade/backend/internal/interfaces/http/router"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

const logTimeFormat = "2006-01-02T15:04:05.000Z07:00"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logTimeFormat,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	// Telemetry: traces, metrics, log export and continuous profiling
	tel, log := initTelemetry(ctx, cfg, log)
	defer tel.shutdown(log)

	log.Info("Starting arcade billing backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", db.Driver))

	dbInst, err := telemetry.InstrumentDB(db.DB, telemetry.DBConfig{
		System:              dbSystem(db.Driver),
		Tracing:             cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		IncludeSQLVariables: cfg.Telemetry.DBLogFullSQL,
		Metrics:             cfg.Telemetry.MetricsEnabled,
		SlowThreshold:       cfg.Telemetry.DBSlowQueryThresh,
	}, tel.Meter, log)
	if err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}
	defer func() { _ = dbInst.Close() }()

	if cfg.Database.AutoMigrate {
		if err := migrate(db, log); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// Redis backs idempotency keys, token revocations and the alert stream.
	// It is optional: every consumer has an in-process fallback.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("Redis unavailable, using in-process fallbacks", zap.Error(err))
			redisClient = nil
		} else {
			defer func() { _ = redisClient.Close() }()
		}
	}

	var universal redis.UniversalClient
	if redisClient != nil {
		universal = redisClient
	}
	idempotencyStore, err := cache.NewIdempotencyStoreFactory(universal,
		cache.WithLogger(log),
		cache.WithKeyPrefix("arcade:idem:"),
	).CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	// Alerts always reach the log; the Redis stream is added when available
	var notifier domainnotification.Notifier = notification.NewLogNotifier(log)
	if cfg.Notification.Enabled && universal != nil {
		notifier = notification.Fanout{
			notification.NewRedisStreamNotifier(universal,
				notification.WithStream(cfg.Notification.Stream),
				notification.WithMaxLen(cfg.Notification.StreamMaxLen),
				notification.WithLogger(log),
			),
			notifier,
		}
	}

	// Business metrics
	var billingMetrics *telemetry.BillingMetrics
	if tel.Meter.IsEnabled() {
		billingMetrics, err = telemetry.NewBillingMetrics(telemetry.BillingMetricsConfig{
			Meter:         tel.Meter.Meter("arcade.billing"),
			Logger:        log,
			OrderProvider: telemetry.NewGormOpenOrdersProvider(db.DB),
		})
		if err != nil {
			log.Fatal("Failed to create billing metrics", zap.Error(err))
		}
		billingMetrics.StartPeriodicCollection(ctx, time.Minute)
		defer billingMetrics.Stop()
	}

	// Repositories
	accountRepo := persistence.NewGormAccountRepository(db.DB)
	siteRepo := persistence.NewGormSiteRepository(db.DB)
	appRepo := persistence.NewGormApplicationRepository(db.DB)
	authzRepo := persistence.NewGormAuthorizationRepository(db.DB)
	sessionRepo := persistence.NewGormSessionRepository(db.DB)
	orderRepo := persistence.NewGormRechargeOrderRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// Credential verification: API key + timestamp, or operator JWT
	clock := shared.Clock(shared.SystemClock)
	var revocations auth.RevocationStore = auth.NewMemoryRevocationStore(clock)
	if redisClient != nil {
		revocations = auth.NewRedisRevocationStore(redisClient, clock)
	}
	var (
		jwtService   *auth.JWTService
		tokenHandler *handler.TokenHandler
	)
	if cfg.Auth.JWTSecret != "" {
		jwtService = auth.NewJWTService(cfg.Auth)
		tokenHandler = handler.NewTokenHandler(auth.NewTokenService(jwtService, revocations, clock, log.Named("tokens")))
	}
	verifier := auth.NewCompositeVerifier(
		auth.NewAPIKeyVerifier(accountRepo, cfg.Auth.TimestampWindow),
		jwtService,
		revocations,
		log.Named("auth"),
	)

	// Authorization and billing
	guard := billingapp.NewIdempotencyGuard(sessionRepo, cfg.Billing.SessionSkew)
	validator := billingapp.NewAuthorizationValidator(billingapp.AuthorizationValidatorConfig{
		Credentials:    verifier,
		Accounts:       accountRepo,
		Sites:          siteRepo,
		Applications:   appRepo,
		Authorizations: authzRepo,
		Guard:          guard,
		Clock:          clock,
		Logger:         log.Named("validator"),
	})
	lowBalance := billingapp.NewLowBalanceNotifier(notifier, idempotencyStore, billingapp.LowBalanceNotifierConfig{
		Threshold: cfg.Billing.LowBalanceThresholdDecimal(),
		Cooldown:  cfg.Notification.LowBalanceCooldown,
	}, log.Named("low_balance"))
	defer lowBalance.Wait()

	engine := billingapp.NewBillingEngine(txScope, sessionRepo, billingapp.EngineConfig{
		LockMode:          billingapp.LockMode(cfg.Billing.LockMode),
		OptimisticRetries: cfg.Billing.OptimisticRetries,
	},
		billingapp.WithLowBalanceNotifier(lowBalance),
		billingapp.WithBillingMetrics(billingMetrics),
		billingapp.WithEngineClock(clock),
		billingapp.WithEngineLogger(log.Named("billing")),
	)
	authService := billingapp.NewAuthorizationService(validator, engine, guard, billingapp.AuthorizationServiceConfig{
		MaxTransientRetries: cfg.Billing.MaxTransientRetries,
		InitialBackoff:      20 * time.Millisecond,
		MaxBackoff:          500 * time.Millisecond,
	}, log.Named("authorize"))

	// Payment gateways
	gatewayConfigs, err := buildGatewayConfigs(cfg.Gateway)
	if err != nil {
		log.Fatal("Invalid payment gateway configuration", zap.Error(err))
	}
	registry := payment.NewRegistry()
	for _, gc := range gatewayConfigs {
		gw, err := payment.NewHTTPGateway(gc, payment.WithGatewayLogger(log.Named("gateway")))
		if err != nil {
			log.Fatal("Failed to create payment gateway", zap.String("gateway", string(gc.Type)), zap.Error(err))
		}
		registry.Register(gw)
	}
	log.Info("Payment gateways registered", zap.Any("gateways", registry.Types()))

	// Settlement, callbacks, recharge and reconciliation
	settlement := financeapp.NewSettlementService(txScope, billingMetrics, clock, log.Named("settlement"))
	alerter := financeapp.NewAnomalyAlerter(notifier, billingMetrics, clock, log.Named("anomaly"))
	callbackService := financeapp.NewPaymentCallbackService(financeapp.PaymentCallbackServiceConfig{
		Verifier:   payment.NewHMACCallbackVerifierFromConfigs(gatewayConfigs...),
		Settlement: settlement,
		Store:      idempotencyStore,
		DedupTTL:   cfg.Notification.CallbackDedupTTL,
		Alerter:    alerter,
		Logger:     log.Named("callback"),
	})
	rechargeService := financeapp.NewRechargeService(orderRepo, registry, financeapp.RechargeServiceConfig{
		OrderTTL:      cfg.Gateway.OrderTTL,
		NotifyURLBase: cfg.Gateway.NotifyURLBase,
	}, clock, log.Named("recharge"))

	if cfg.Reconciliation.Enabled {
		reconciliation := financeapp.NewReconciliationService(financeapp.ReconciliationServiceConfig{
			Scope:      txScope,
			Orders:     orderRepo,
			Gateways:   registry,
			Settlement: settlement,
			Alerter:    alerter,
			Metrics:    billingMetrics,
			Config: financeapp.ReconciliationConfig{
				MinAge:           cfg.Reconciliation.MinAge,
				BatchSize:        cfg.Reconciliation.BatchSize,
				Workers:          cfg.Reconciliation.Workers,
				QueryTimeout:     cfg.Reconciliation.QueryTimeout,
				AnomalyThreshold: cfg.Reconciliation.AnomalyThreshold,
			},
			Clock:  clock,
			Logger: log.Named("reconciliation"),
		})
		schedulerCfg := scheduler.DefaultSchedulerConfig()
		schedulerCfg.Interval = cfg.Reconciliation.Interval
		reconcileScheduler, err := scheduler.NewScheduler(schedulerCfg,
			scheduler.NewReconciliationJob(reconciliation, log.Named("reconciliation")),
			log.Named("scheduler"),
		)
		if err != nil {
			log.Fatal("Failed to create reconciliation scheduler", zap.Error(err))
		}
		if err := reconcileScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start reconciliation scheduler", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := reconcileScheduler.Stop(stopCtx); err != nil {
				log.Error("Error stopping reconciliation scheduler", zap.Error(err))
			}
		}()
		log.Info("Reconciliation scheduler started",
			zap.Duration("interval", cfg.Reconciliation.Interval),
			zap.Int("workers", cfg.Reconciliation.Workers),
		)
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow)
		defer limiter.Stop()
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to get sql.DB", zap.Error(err))
	}

	httpEngine, err := router.NewEngine(router.EngineConfig{
		Logger:         log,
		Verifier:       verifier,
		RateLimiter:    limiter,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Swagger:        cfg.HTTP.SwaggerEnabled,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		MeterProvider: tel.Meter,
		Metrics:       cfg.Telemetry.MetricsEnabled,
		Profiling: middleware.ProfilingConfig{
			Enabled:   cfg.Telemetry.ProfilingEnabled,
			SkipPaths: middleware.DefaultProfilingConfig().SkipPaths,
		},
		Security: middleware.SecurityConfig{
			HSTSEnabled: cfg.App.Env == "production",
			HSTSMaxAge:  middleware.DefaultSecurityConfig().HSTSMaxAge,
		},
	}, router.Handlers{
		Sessions:  handler.NewSessionHandler(authService),
		Recharge:  handler.NewRechargeHandler(rechargeService),
		Callbacks: handler.NewPaymentCallbackHandler(callbackService),
		System:    handler.NewSystemHandler(sqlDB, version),
		Tokens:    tokenHandler,
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        httpEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		log.Error("Server failed", zap.Error(err))
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// telemetryProviders holds what must be flushed on shutdown
type telemetryProviders struct {
	*telemetry.Providers
	profiler *telemetry.Profiler
}

// initTelemetry starts OTLP export and Pyroscope. When log export is on the
// returned logger also ships records to the collector.
func initTelemetry(ctx context.Context, cfg *config.Config, log *zap.Logger) (*telemetryProviders, *zap.Logger) {
	tc := cfg.Telemetry
	providers, err := telemetry.Setup(ctx, telemetry.ExportConfig{
		ServiceName:     tc.ServiceName,
		ServiceVersion:  version,
		Endpoint:        tc.CollectorEndpoint,
		Insecure:        tc.Insecure,
		Traces:          tc.Enabled,
		SamplingRatio:   tc.SamplingRatio,
		Metrics:         tc.Enabled && tc.MetricsEnabled,
		MetricsInterval: tc.MetricsExportInterval,
		Logs:            tc.Enabled && tc.LogsEnabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	tel := &telemetryProviders{Providers: providers}

	if providers.Logs.IsEnabled() {
		level, err := zapcore.ParseLevel(tc.LogsExportLevel)
		if err != nil {
			level = zapcore.InfoLevel
		}
		log = providers.Logs.Bridge(log, tc.ServiceName, level)
	}

	tel.profiler, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         tc.ProfilingEnabled,
		ServerAddress:   tc.PyroscopeAddress,
		ApplicationName: tc.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	if tel.profiler.IsEnabled() {
		providers.Tracer.LinkProfiles()
	}

	return tel, log
}

func (t *telemetryProviders) shutdown(log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := t.Shutdown(ctx); err != nil {
		log.Error("Error shutting down telemetry", zap.Error(err))
	}
}

// migrate applies versioned migrations on PostgreSQL and GORM AutoMigrate on SQLite
func migrate(db *persistence.Database, log *zap.Logger) error {
	if db.Driver == config.DriverSQLite {
		return db.AutoMigrate()
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, "", log)
	if err != nil {
		return err
	}
	// Closing the migrator would close the shared pool
	return m.Up()
}

func dbSystem(driver string) string {
	if driver == config.DriverSQLite {
		return "sqlite"
	}
	return "postgresql"
}

// buildGatewayConfigs validates the enabled gateway endpoints
func buildGatewayConfigs(gc config.GatewayConfig) ([]*payment.GatewayConfig, error) {
	endpoints := []struct {
		gateway  finance.PaymentGatewayType
		endpoint config.GatewayEndpoint
	}{
		{finance.PaymentGatewayTypeWechat, gc.Wechat},
		{finance.PaymentGatewayTypeAlipay, gc.Alipay},
	}

	var configs []*payment.GatewayConfig
	for _, e := range endpoints {
		if !e.endpoint.Enabled {
			continue
		}
		c, err := payment.NewGatewayConfigBuilder().
			SetType(string(e.gateway)).
			SetBaseURL(e.endpoint.BaseURL).
			SetMerchantID(e.endpoint.MerchantID).
			SetSecret(e.endpoint.Secret).
			SetCallbackSecret(e.endpoint.CallbackSecret).
			SetTimeout(gc.Timeout).
			Build()
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, nil
}
