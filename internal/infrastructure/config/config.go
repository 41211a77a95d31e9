package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Queue     QueueConfig
	Sync      SyncConfig
	Backends  []BackendConfig
	Broker    BrokerConfig
	Telemetry TelemetryConfig
	Profiling ProfilingConfig
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

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	MaxWebhookBytes int64
	TrustedProxies  []string
	// Inbound webhook quota per backend and client address
	WebhookRatePerSecond float64
	WebhookBurst         int
}

// QueueConfig holds task queue and worker pool configuration
type QueueConfig struct {
	Enabled          bool
	Workers          int
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	JobTimeout       time.Duration
	StaleAfter       time.Duration // processing tasks older than this are released
	CleanupEnabled   bool
	CleanupRetention time.Duration
}

// SyncConfig holds synchronization behavior
type SyncConfig struct {
	ExportCronSchedule  string
	DefaultAvailPlanID  string
	ExportWindowDays    int
	WebhookDedupeTTL    time.Duration
	WebhookDedupeStrict bool // fail when Redis is unavailable instead of using memory
}

// BackendConfig describes one external channel backend
type BackendConfig struct {
	ID            string        `mapstructure:"id" validate:"required"`
	Name          string        `mapstructure:"name"`
	Kind          string        `mapstructure:"kind" validate:"required,oneof=http memory"`
	OTA           bool          `mapstructure:"ota"`
	BaseURL       string        `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	BatchSize     int           `mapstructure:"batch_size" validate:"gte=0"`
	RatePerSecond float64       `mapstructure:"rate_per_second" validate:"gte=0"`
	Burst         int           `mapstructure:"burst" validate:"gte=0"`
	PropertyID    string        `mapstructure:"property_id" validate:"omitempty,uuid"`
	CompanyID     string        `mapstructure:"company_id" validate:"omitempty,uuid"`
}

// BrokerConfig holds the AMQP connection used for issue notifications
type BrokerConfig struct {
	Enabled  bool
	URL      string
	Exchange string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	MetricsEnabled    bool    // Whether to export metrics
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	DBTraceEnabled    bool    // Enable database query tracing (otelgorm)
	DBSlowQueryThresh time.Duration
	LogsEnabled       bool   // Ship logs to the collector through the otelzap bridge
	LogsLevel         string // Lowest level shipped, defaults to log.level
}

// ProfilingConfig holds Pyroscope continuous profiling settings
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string   // e.g. "http://pyroscope:4040"
	ApplicationName   string   // defaults to telemetry.service_name
	BasicAuthUser     string   // Grafana Cloud only
	BasicAuthPassword string   // Grafana Cloud only
	ProfileTypes      []string // empty collects cpu and heap profiles
	SpanProfiles      bool     // link CPU samples to trace spans
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with PMS_ prefix (e.g., PMS_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.cleanup_enabled", true)

	v.SetEnvPrefix("PMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
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
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			MaxWebhookBytes: v.GetInt64("http.max_webhook_bytes"),
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),

			WebhookRatePerSecond: v.GetFloat64("http.webhook_rate_per_second"),
			WebhookBurst:         v.GetInt("http.webhook_burst"),
		},
		Queue: QueueConfig{
			Enabled:          v.GetBool("queue.enabled"),
			Workers:          v.GetInt("queue.workers"),
			PollInterval:     v.GetDuration("queue.poll_interval"),
			BatchSize:        v.GetInt("queue.batch_size"),
			MaxRetries:       v.GetInt("queue.max_retries"),
			BackoffBase:      v.GetDuration("queue.backoff_base"),
			BackoffMax:       v.GetDuration("queue.backoff_max"),
			JobTimeout:       v.GetDuration("queue.job_timeout"),
			StaleAfter:       v.GetDuration("queue.stale_after"),
			CleanupEnabled:   v.GetBool("queue.cleanup_enabled"),
			CleanupRetention: v.GetDuration("queue.cleanup_retention"),
		},
		Sync: SyncConfig{
			ExportCronSchedule:  v.GetString("sync.export_cron_schedule"),
			DefaultAvailPlanID:  v.GetString("sync.default_avail_plan_id"),
			ExportWindowDays:    v.GetInt("sync.export_window_days"),
			WebhookDedupeTTL:    v.GetDuration("sync.webhook_dedupe_ttl"),
			WebhookDedupeStrict: v.GetBool("sync.webhook_dedupe_strict"),
		},
		Broker: BrokerConfig{
			Enabled:  v.GetBool("broker.enabled"),
			URL:      v.GetString("broker.url"),
			Exchange: v.GetString("broker.exchange"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			LogsLevel:         v.GetString("telemetry.logs_level"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
			ProfileTypes:      v.GetStringSlice("profiling.profile_types"),
			SpanProfiles:      v.GetBool("profiling.span_profiles"),
		},
	}

	if err := v.UnmarshalKey("backends", &cfg.Backends); err != nil {
		return nil, fmt.Errorf("error reading backends: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "pms-channelsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
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
		cfg.Database.DBName = "pms"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
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
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
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
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxWebhookBytes == 0 {
		cfg.HTTP.MaxWebhookBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.WebhookRatePerSecond == 0 {
		cfg.HTTP.WebhookRatePerSecond = 50
	}
	if cfg.HTTP.WebhookBurst == 0 {
		cfg.HTTP.WebhookBurst = 100
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = 2 * time.Second
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 50
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 5
	}
	if cfg.Queue.BackoffBase == 0 {
		cfg.Queue.BackoffBase = 10 * time.Second
	}
	if cfg.Queue.BackoffMax == 0 {
		cfg.Queue.BackoffMax = 30 * time.Minute
	}
	if cfg.Queue.JobTimeout == 0 {
		cfg.Queue.JobTimeout = 2 * time.Minute
	}
	if cfg.Queue.StaleAfter == 0 {
		cfg.Queue.StaleAfter = 15 * time.Minute
	}
	if cfg.Queue.CleanupRetention == 0 {
		cfg.Queue.CleanupRetention = 168 * time.Hour
	}
	if cfg.Sync.ExportCronSchedule == "" {
		cfg.Sync.ExportCronSchedule = "*/5 * * * *"
	}
	if cfg.Sync.ExportWindowDays == 0 {
		cfg.Sync.ExportWindowDays = 365
	}
	if cfg.Sync.WebhookDedupeTTL == 0 {
		cfg.Sync.WebhookDedupeTTL = 24 * time.Hour
	}
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if b.Name == "" {
			b.Name = b.ID
		}
		if b.Timeout == 0 {
			b.Timeout = 30 * time.Second
		}
		if b.BatchSize == 0 {
			b.BatchSize = 100
		}
		if b.Burst == 0 {
			b.Burst = 1
		}
	}
	if cfg.Broker.Exchange == "" {
		cfg.Broker.Exchange = "pms.channel"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "pms-channelsync"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.LogsLevel == "" {
		cfg.Telemetry.LogsLevel = cfg.Log.Level
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.Telemetry.ServiceName
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
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

	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1")
	}
	if c.Queue.BackoffMax < c.Queue.BackoffBase {
		return fmt.Errorf("queue.backoff_max (%s) cannot be below queue.backoff_base (%s)",
			c.Queue.BackoffMax, c.Queue.BackoffBase)
	}

	validate := validator.New()
	seen := make(map[string]bool, len(c.Backends))
	for i := range c.Backends {
		b := c.Backends[i]
		if err := validate.Struct(b); err != nil {
			return fmt.Errorf("backends[%d]: %w", i, err)
		}
		if b.Kind == "http" && b.BaseURL == "" {
			return fmt.Errorf("backends[%d]: base_url is required for http backends", i)
		}
		if seen[b.ID] {
			return fmt.Errorf("backends[%d]: duplicate backend id %q", i, b.ID)
		}
		seen[b.ID] = true
	}

	if c.Broker.Enabled && c.Broker.URL == "" {
		return fmt.Errorf("broker.url is required when broker.enabled is true")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.server_address is required when profiling.enabled is true")
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
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

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
