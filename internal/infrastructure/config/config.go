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
	External  ExternalConfig
	Reconcile ReconcileConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Admin     AdminConfig
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

// ExternalConfig describes the physical-inventory system of record
type ExternalConfig struct {
	Database        DatabaseConfig
	Table           string
	IDColumn        string
	StatusColumn    string
	ReservationCol  string
	ChangedAtColumn string
	SentinelID      string        // external id meaning "no item"
	QueryTimeout    time.Duration // per-query bound
}

// ReconcileConfig holds reconciliation scheduling and matching settings
type ReconcileConfig struct {
	Enabled             bool          // start the scheduler at boot
	Mode                string        `validate:"oneof=observe safe full"`
	IntervalMinutes     int           `validate:"min=1,max=1440"`
	InitialLookbackDays int           `validate:"min=1,max=90"`
	StaleAfter          time.Duration `validate:"min=1m"`
	WarmUpDelay         time.Duration `validate:"min=0"`
	BatchSize           int           `validate:"min=1,max=10000"`
	ImageExtension      string        `validate:"startswith=."`
	PadWidth            int           `validate:"min=0,max=32"`
	ReportSampleSize    int           `validate:"min=0,max=1000"`
}

// Interval returns the scheduling interval
func (r ReconcileConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// InitialLookback returns the first-run lookback
func (r ReconcileConfig) InitialLookback() time.Duration {
	return time.Duration(r.InitialLookbackDays) * 24 * time.Hour
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	LockKey  string
	LockTTL  time.Duration // zero derives the TTL from the reconcile interval
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// AdminConfig guards the operator endpoints
type AdminConfig struct {
	Token string // static bearer token; empty disables the check outside production
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CATSYNC_ prefix (e.g., CATSYNC_EXTERNAL_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("CATSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: readDatabase(v, "database"),
		External: ExternalConfig{
			Database:        readDatabase(v, "external.database"),
			Table:           v.GetString("external.table"),
			IDColumn:        v.GetString("external.id_column"),
			StatusColumn:    v.GetString("external.status_column"),
			ReservationCol:  v.GetString("external.reservation_column"),
			ChangedAtColumn: v.GetString("external.changed_at_column"),
			SentinelID:      v.GetString("external.sentinel_id"),
			QueryTimeout:    v.GetDuration("external.query_timeout"),
		},
		Reconcile: ReconcileConfig{
			Enabled:             v.GetBool("reconcile.enabled"),
			Mode:                v.GetString("reconcile.mode"),
			IntervalMinutes:     v.GetInt("reconcile.interval_minutes"),
			InitialLookbackDays: v.GetInt("reconcile.initial_lookback_days"),
			StaleAfter:          v.GetDuration("reconcile.stale_after"),
			WarmUpDelay:         v.GetDuration("reconcile.warmup_delay"),
			BatchSize:           v.GetInt("reconcile.batch_size"),
			ImageExtension:      v.GetString("reconcile.image_extension"),
			PadWidth:            v.GetInt("reconcile.pad_width"),
			ReportSampleSize:    v.GetInt("reconcile.report_sample_size"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockKey:  v.GetString("redis.lock_key"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Admin: AdminConfig{
			Token: v.GetString("admin.token"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readDatabase(v *viper.Viper, prefix string) DatabaseConfig {
	return DatabaseConfig{
		Host:            v.GetString(prefix + ".host"),
		Port:            v.GetInt(prefix + ".port"),
		User:            v.GetString(prefix + ".user"),
		Password:        v.GetString(prefix + ".password"),
		DBName:          v.GetString(prefix + ".dbname"),
		SSLMode:         v.GetString(prefix + ".sslmode"),
		MaxOpenConns:    v.GetInt(prefix + ".max_open_conns"),
		MaxIdleConns:    v.GetInt(prefix + ".max_idle_conns"),
		ConnMaxLifetime: v.GetInt(prefix + ".conn_max_lifetime"),
		ConnMaxIdleTime: v.GetInt(prefix + ".conn_max_idle_time"),
	}
}

func applyDatabaseDefaults(d *DatabaseConfig, dbName string, maxOpen int) {
	if d.Host == "" {
		d.Host = "localhost"
	}
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.User == "" {
		d.User = "postgres"
	}
	if d.DBName == "" {
		d.DBName = dbName
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.MaxOpenConns == 0 {
		d.MaxOpenConns = maxOpen
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = min(5, d.MaxOpenConns)
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = 60
	}
	if d.ConnMaxIdleTime == 0 {
		d.ConnMaxIdleTime = 30
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "catalog-sync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	applyDatabaseDefaults(&cfg.Database, "catalog", 25)
	applyDatabaseDefaults(&cfg.External.Database, "inventory", 4)

	if cfg.External.Table == "" {
		cfg.External.Table = "inventory_movements"
	}
	if cfg.External.IDColumn == "" {
		cfg.External.IDColumn = "external_id"
	}
	if cfg.External.StatusColumn == "" {
		cfg.External.StatusColumn = "status"
	}
	if cfg.External.ReservationCol == "" {
		cfg.External.ReservationCol = "reservation_ref"
	}
	if cfg.External.ChangedAtColumn == "" {
		cfg.External.ChangedAtColumn = "changed_at"
	}
	if cfg.External.SentinelID == "" {
		cfg.External.SentinelID = "0"
	}
	if cfg.External.QueryTimeout == 0 {
		cfg.External.QueryTimeout = 30 * time.Second
	}

	if cfg.Reconcile.Mode == "" {
		cfg.Reconcile.Mode = "observe"
	}
	if cfg.Reconcile.IntervalMinutes == 0 {
		cfg.Reconcile.IntervalMinutes = 2
	}
	if cfg.Reconcile.InitialLookbackDays == 0 {
		cfg.Reconcile.InitialLookbackDays = 7
	}
	if cfg.Reconcile.StaleAfter == 0 {
		cfg.Reconcile.StaleAfter = 24 * time.Hour
	}
	if cfg.Reconcile.WarmUpDelay == 0 {
		cfg.Reconcile.WarmUpDelay = 30 * time.Second
	}
	if cfg.Reconcile.BatchSize == 0 {
		cfg.Reconcile.BatchSize = 500
	}
	if cfg.Reconcile.ImageExtension == "" {
		cfg.Reconcile.ImageExtension = ".webp"
	}
	if cfg.Reconcile.PadWidth == 0 {
		cfg.Reconcile.PadWidth = 5
	}
	if cfg.Reconcile.ReportSampleSize == 0 {
		cfg.Reconcile.ReportSampleSize = 10
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.LockKey == "" {
		cfg.Redis.LockKey = "inventory-sync:run"
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
		// POST /run executes synchronously and may take a while on a first-run window
		cfg.HTTP.WriteTimeout = 5 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "catalog-sync"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	for name, db := range map[string]DatabaseConfig{"database": c.Database, "external.database": c.External.Database} {
		if db.MaxOpenConns <= 0 {
			return fmt.Errorf("%s.max_open_conns must be positive", name)
		}
		if db.MaxIdleConns < 0 {
			return fmt.Errorf("%s.max_idle_conns cannot be negative", name)
		}
		if db.MaxIdleConns > db.MaxOpenConns {
			return fmt.Errorf("%s.max_idle_conns (%d) cannot exceed %s.max_open_conns (%d)",
				name, db.MaxIdleConns, name, db.MaxOpenConns)
		}
	}

	if err := validator.New().Struct(c.Reconcile); err != nil {
		return fmt.Errorf("invalid reconcile configuration: %w", err)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Admin.Token == "" {
			return fmt.Errorf("admin.token is required in production")
		}
		if len(c.Admin.Token) < 32 {
			return fmt.Errorf("admin.token must be at least 32 characters in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
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
