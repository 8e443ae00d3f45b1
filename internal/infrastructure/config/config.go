package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App            AppConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Auth           AuthConfig
	Log            LogConfig
	HTTP           HTTPConfig
	Billing        BillingConfig
	Reconciliation ReconciliationConfig
	Gateway        GatewayConfig
	Notification   NotificationConfig
	Telemetry      TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	LogLevel        string
	SlowQueryThresh time.Duration
	// AutoMigrate applies pending migrations when the server starts
	AutoMigrate bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AuthConfig holds credential verification settings
type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	TokenExpiration time.Duration
	// TimestampWindow bounds the X-Timestamp skew of API key requests
	TimestampWindow time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	MaxBodySize     int64
	TrustedProxies  []string

	// RequestTimeout bounds each request context, including row-lock waits.
	// RateLimit is the per-operator (or per-IP) budget per RateLimitWindow; 0 disables it.
	RequestTimeout  time.Duration
	RateLimit       int
	RateLimitWindow time.Duration

	// SwaggerEnabled serves the OpenAPI document under /swagger.
	SwaggerEnabled bool
}

// BillingConfig holds billing engine settings
type BillingConfig struct {
	SessionSkew         time.Duration
	LockMode            string // pessimistic, optimistic
	MaxTransientRetries int
	OptimisticRetries   int
	LowBalanceThreshold string
}

// LowBalanceThresholdDecimal parses LowBalanceThreshold. validate() guarantees it parses.
func (b BillingConfig) LowBalanceThresholdDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(b.LowBalanceThreshold)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ReconciliationConfig holds the payment reconciliation sweep settings
type ReconciliationConfig struct {
	Enabled          bool
	Interval         time.Duration
	MinAge           time.Duration
	BatchSize        int
	Workers          int
	QueryTimeout     time.Duration
	AnomalyThreshold int
}

// GatewayEndpoint holds one payment gateway's credentials
type GatewayEndpoint struct {
	Enabled        bool
	BaseURL        string
	MerchantID     string
	Secret         string
	CallbackSecret string
}

// GatewayConfig holds payment gateway settings
type GatewayConfig struct {
	Timeout       time.Duration
	OrderTTL      time.Duration
	NotifyURLBase string
	Wechat        GatewayEndpoint
	Alipay        GatewayEndpoint
}

// NotificationConfig holds alert delivery settings
type NotificationConfig struct {
	Enabled            bool
	Stream             string
	StreamMaxLen       int64
	LowBalanceCooldown time.Duration
	CallbackDedupTTL   time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only, disable in prod for security)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
	// Metrics, log export and profiling
	MetricsEnabled        bool
	MetricsExportInterval time.Duration
	LogsEnabled           bool
	LogsExportLevel       string
	ProfilingEnabled      bool
	PyroscopeAddress      string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ARCADE_ prefix (e.g., ARCADE_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/arcade")
	v.AddConfigPath("/app")

	return load(v)
}

// LoadFile loads configuration from an explicit file path plus environment overrides
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("ARCADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
			SlowQueryThresh: v.GetDuration("database.slow_query_threshold"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Auth: AuthConfig{
			JWTSecret:       v.GetString("auth.jwt_secret"),
			JWTIssuer:       v.GetString("auth.jwt_issuer"),
			TokenExpiration: v.GetDuration("auth.token_expiration"),
			TimestampWindow: v.GetDuration("auth.timestamp_window"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),
			RequestTimeout:  v.GetDuration("http.request_timeout"),
			RateLimit:       v.GetInt("http.rate_limit"),
			RateLimitWindow: v.GetDuration("http.rate_limit_window"),
			SwaggerEnabled:  v.GetBool("http.swagger_enabled"),
		},
		Billing: BillingConfig{
			SessionSkew:         v.GetDuration("billing.session_skew"),
			LockMode:            v.GetString("billing.lock_mode"),
			MaxTransientRetries: v.GetInt("billing.max_transient_retries"),
			OptimisticRetries:   v.GetInt("billing.optimistic_retries"),
			LowBalanceThreshold: v.GetString("billing.low_balance_threshold"),
		},
		Reconciliation: ReconciliationConfig{
			Enabled:          !v.IsSet("reconciliation.enabled") || v.GetBool("reconciliation.enabled"),
			Interval:         v.GetDuration("reconciliation.interval"),
			MinAge:           v.GetDuration("reconciliation.min_age"),
			BatchSize:        v.GetInt("reconciliation.batch_size"),
			Workers:          v.GetInt("reconciliation.workers"),
			QueryTimeout:     v.GetDuration("reconciliation.query_timeout"),
			AnomalyThreshold: v.GetInt("reconciliation.anomaly_threshold"),
		},
		Gateway: GatewayConfig{
			Timeout:       v.GetDuration("gateway.timeout"),
			OrderTTL:      v.GetDuration("gateway.order_ttl"),
			NotifyURLBase: v.GetString("gateway.notify_url_base"),
			Wechat:        gatewayEndpoint(v, "gateway.wechat"),
			Alipay:        gatewayEndpoint(v, "gateway.alipay"),
		},
		Notification: NotificationConfig{
			Enabled:            v.GetBool("notification.enabled"),
			Stream:             v.GetString("notification.stream"),
			StreamMaxLen:       v.GetInt64("notification.stream_max_len"),
			LowBalanceCooldown: v.GetDuration("notification.low_balance_cooldown"),
			CallbackDedupTTL:   v.GetDuration("notification.callback_dedup_ttl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:               v.GetBool("telemetry.enabled"),
			CollectorEndpoint:     v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:         v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:           v.GetString("telemetry.service_name"),
			Insecure:              v.GetBool("telemetry.insecure"),
			DBTraceEnabled:        v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:          v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh:     v.GetDuration("telemetry.db_slow_query_threshold"),
			MetricsEnabled:        v.GetBool("telemetry.metrics_enabled"),
			MetricsExportInterval: v.GetDuration("telemetry.metrics_export_interval"),
			LogsEnabled:           v.GetBool("telemetry.logs_enabled"),
			LogsExportLevel:       v.GetString("telemetry.logs_export_level"),
			ProfilingEnabled:      v.GetBool("telemetry.profiling_enabled"),
			PyroscopeAddress:      v.GetString("telemetry.pyroscope_address"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func gatewayEndpoint(v *viper.Viper, prefix string) GatewayEndpoint {
	return GatewayEndpoint{
		Enabled:        v.GetBool(prefix + ".enabled"),
		BaseURL:        v.GetString(prefix + ".base_url"),
		MerchantID:     v.GetString(prefix + ".merchant_id"),
		Secret:         v.GetString(prefix + ".secret"),
		CallbackSecret: v.GetString(prefix + ".callback_secret"),
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "arcade-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "arcade"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "arcade.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Database.SlowQueryThresh == 0 {
		cfg.Database.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Auth.JWTIssuer == "" {
		cfg.Auth.JWTIssuer = "arcade-backend"
	}
	if cfg.Auth.TokenExpiration == 0 {
		cfg.Auth.TokenExpiration = 12 * time.Hour
	}
	if cfg.Auth.TimestampWindow == 0 {
		cfg.Auth.TimestampWindow = 5 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 64 << 10 // 64KB
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 10 * time.Second
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.Billing.SessionSkew == 0 {
		cfg.Billing.SessionSkew = 5 * time.Minute
	}
	if cfg.Billing.LockMode == "" {
		cfg.Billing.LockMode = "pessimistic"
	}
	if cfg.Billing.MaxTransientRetries == 0 {
		cfg.Billing.MaxTransientRetries = 3
	}
	if cfg.Billing.OptimisticRetries == 0 {
		cfg.Billing.OptimisticRetries = 5
	}
	if cfg.Billing.LowBalanceThreshold == "" {
		cfg.Billing.LowBalanceThreshold = "100.00"
	}
	if cfg.Reconciliation.Interval == 0 {
		cfg.Reconciliation.Interval = 5 * time.Minute
	}
	if cfg.Reconciliation.MinAge == 0 {
		cfg.Reconciliation.MinAge = 5 * time.Minute
	}
	if cfg.Reconciliation.BatchSize == 0 {
		cfg.Reconciliation.BatchSize = 100
	}
	if cfg.Reconciliation.Workers == 0 {
		cfg.Reconciliation.Workers = 4
	}
	if cfg.Reconciliation.QueryTimeout == 0 {
		cfg.Reconciliation.QueryTimeout = 10 * time.Second
	}
	if cfg.Reconciliation.AnomalyThreshold == 0 {
		cfg.Reconciliation.AnomalyThreshold = 3
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = 10 * time.Second
	}
	if cfg.Gateway.OrderTTL == 0 {
		cfg.Gateway.OrderTTL = 30 * time.Minute
	}
	if cfg.Notification.Stream == "" {
		cfg.Notification.Stream = "arcade:notifications"
	}
	if cfg.Notification.StreamMaxLen == 0 {
		cfg.Notification.StreamMaxLen = 10000
	}
	if cfg.Notification.LowBalanceCooldown == 0 {
		cfg.Notification.LowBalanceCooldown = 6 * time.Hour
	}
	if cfg.Notification.CallbackDedupTTL == 0 {
		cfg.Notification.CallbackDedupTTL = 24 * time.Hour
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.LogsExportLevel == "" {
		cfg.Telemetry.LogsExportLevel = "info"
	}
	if cfg.Telemetry.PyroscopeAddress == "" {
		cfg.Telemetry.PyroscopeAddress = "http://localhost:4040"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Billing.LockMode {
	case "pessimistic", "optimistic":
	default:
		return fmt.Errorf("billing.lock_mode must be pessimistic or optimistic, got %q", c.Billing.LockMode)
	}
	if c.Billing.MaxTransientRetries < 0 {
		return fmt.Errorf("billing.max_transient_retries cannot be negative")
	}
	threshold, err := decimal.NewFromString(c.Billing.LowBalanceThreshold)
	if err != nil || threshold.IsNegative() {
		return fmt.Errorf("billing.low_balance_threshold must be a non-negative decimal, got %q", c.Billing.LowBalanceThreshold)
	}

	if c.Reconciliation.Workers <= 0 {
		return fmt.Errorf("reconciliation.workers must be positive")
	}
	if c.Reconciliation.AnomalyThreshold <= 0 {
		return fmt.Errorf("reconciliation.anomaly_threshold must be positive")
	}
	if c.Reconciliation.QueryTimeout >= c.Reconciliation.Interval {
		return fmt.Errorf("reconciliation.query_timeout (%s) must be shorter than reconciliation.interval (%s)",
			c.Reconciliation.QueryTimeout, c.Reconciliation.Interval)
	}

	for name, gw := range map[string]GatewayEndpoint{"wechat": c.Gateway.Wechat, "alipay": c.Gateway.Alipay} {
		if !gw.Enabled {
			continue
		}
		if gw.BaseURL == "" || gw.MerchantID == "" || gw.Secret == "" {
			return fmt.Errorf("gateway.%s requires base_url, merchant_id and secret when enabled", name)
		}
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required in production")
		}
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 characters in production")
		}
		if c.Database.Driver != DriverPostgres {
			return fmt.Errorf("database.driver must be postgres in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Gateway.NotifyURLBase == "" {
			return fmt.Errorf("gateway.notify_url_base is required in production")
		}
		// Database tracing: full SQL logging is a security risk in production
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return d.SQLitePath
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
