package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Storage    StorageConfig
	Telemetry  TelemetryConfig
	PrestaShop PrestaShopConfig
	Import     ImportConfig
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
	Driver          string // postgres or sqlite
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
	SlowQueryThresh time.Duration
}

// RedisConfig holds Redis connection settings.
// When disabled the run lock falls back to an in-process lock.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	TrustedProxies   []string
	// RequestTimeout bounds every request except import runs
	RequestTimeout    time.Duration
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// StorageConfig holds object storage settings used to mirror product images
type StorageConfig struct {
	Enabled           bool
	Endpoint          string
	Region            string
	Bucket            string
	AccessKey         string
	SecretKey         string
	UseSSL            bool
	UsePathStyle      bool
	PresignExpiration time.Duration
	KeyPrefix         string
}

// TelemetryConfig holds OpenTelemetry metrics configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ExportInterval    time.Duration
	ServiceName       string
	Insecure          bool
}

// PrestaShopConfig holds the remote catalog connection settings
type PrestaShopConfig struct {
	URL            string
	APIKey         string
	LanguageID     string
	UserAgent      string
	DetailTimeout  time.Duration
	ListTimeout    time.Duration
	ProbeTimeout   time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	RequestSpacing time.Duration
	ErrorPause     time.Duration
}

// BreakerConfig holds the error-rate circuit breaker for one entity kind
type BreakerConfig struct {
	MinSample int
	Threshold float64
}

// ImportConfig holds import pipeline settings
type ImportConfig struct {
	MaxRecordsPerRun       int
	PageSize               int
	ReservedRootIDs        []int64
	MaxDepth               int
	ProgressEvery          int
	EarlyWarningRatio      float64
	MaxErrorSamples        int
	CommitRetryAttempts    int
	CommitRetryInitial     time.Duration
	CommitRetryMultiplier  float64
	MirrorPublicCategories bool
	MirrorImages           bool
	PublicCategoryModels   []string
	FallbackCategoryName   string
	LockTTL                time.Duration
	Breakers               map[string]BreakerConfig
}

// Breaker returns the breaker settings for kind, falling back to the product defaults
func (c ImportConfig) Breaker(kind string) BreakerConfig {
	if b, ok := c.Breakers[kind]; ok {
		return b
	}
	return BreakerConfig{MinSample: 20, Threshold: 0.25}
}

var breakerKinds = []string{"categories", "products", "stock", "customers"}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ERP_ prefix (e.g., ERP_PRESTASHOP_API_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	reserved, err := parseIDs(v.GetStringSlice("import.reserved_root_ids"))
	if err != nil {
		return nil, fmt.Errorf("import.reserved_root_ids: %w", err)
	}

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
			SlowQueryThresh: v.GetDuration("database.slow_query_threshold"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
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
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			RequestTimeout:    v.GetDuration("http.request_timeout"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		Storage: StorageConfig{
			Enabled:           v.GetBool("storage.enabled"),
			Endpoint:          v.GetString("storage.endpoint"),
			Region:            v.GetString("storage.region"),
			Bucket:            v.GetString("storage.bucket"),
			AccessKey:         v.GetString("storage.access_key"),
			SecretKey:         v.GetString("storage.secret_key"),
			UseSSL:            v.GetBool("storage.use_ssl"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			PresignExpiration: v.GetDuration("storage.presign_expiration"),
			KeyPrefix:         v.GetString("storage.key_prefix"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
		PrestaShop: PrestaShopConfig{
			URL:            v.GetString("prestashop.url"),
			APIKey:         v.GetString("prestashop.api_key"),
			LanguageID:     v.GetString("prestashop.language_id"),
			UserAgent:      v.GetString("prestashop.user_agent"),
			DetailTimeout:  v.GetDuration("prestashop.detail_timeout"),
			ListTimeout:    v.GetDuration("prestashop.list_timeout"),
			ProbeTimeout:   v.GetDuration("prestashop.probe_timeout"),
			RetryAttempts:  v.GetInt("prestashop.retry_attempts"),
			RetryDelay:     v.GetDuration("prestashop.retry_delay"),
			RequestSpacing: v.GetDuration("prestashop.request_spacing"),
			ErrorPause:     v.GetDuration("prestashop.error_pause"),
		},
		Import: ImportConfig{
			MaxRecordsPerRun:       v.GetInt("import.max_records_per_run"),
			PageSize:               v.GetInt("import.page_size"),
			ReservedRootIDs:        reserved,
			MaxDepth:               v.GetInt("import.max_depth"),
			ProgressEvery:          v.GetInt("import.progress_every"),
			EarlyWarningRatio:      v.GetFloat64("import.early_warning_ratio"),
			MaxErrorSamples:        v.GetInt("import.max_error_samples"),
			CommitRetryAttempts:    v.GetInt("import.commit_retry_attempts"),
			CommitRetryInitial:     v.GetDuration("import.commit_retry_initial"),
			CommitRetryMultiplier:  v.GetFloat64("import.commit_retry_multiplier"),
			MirrorPublicCategories: v.GetBool("import.mirror_public_categories"),
			MirrorImages:           v.GetBool("import.mirror_images"),
			PublicCategoryModels:   v.GetStringSlice("import.public_category_models"),
			FallbackCategoryName:   v.GetString("import.fallback_category_name"),
			LockTTL:                v.GetDuration("import.lock_ttl"),
			Breakers:               make(map[string]BreakerConfig),
		},
	}

	for _, kind := range breakerKinds {
		prefix := "import.breaker." + kind + "."
		if v.IsSet(prefix+"min_sample") || v.IsSet(prefix+"threshold") {
			cfg.Import.Breakers[kind] = BreakerConfig{
				MinSample: v.GetInt(prefix + "min_sample"),
				Threshold: v.GetFloat64(prefix + "threshold"),
			}
		}
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
		cfg.App.Name = "catalog-importer"
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
		cfg.Database.DBName = "catalog"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "catalog.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
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

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	// Import runs are synchronous, so the write timeout has to cover a whole run
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 60
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.PresignExpiration == 0 {
		cfg.Storage.PresignExpiration = 15 * time.Minute
	}
	if cfg.Storage.KeyPrefix == "" {
		cfg.Storage.KeyPrefix = "catalog/images"
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "catalog-importer"
	}

	ps := &cfg.PrestaShop
	if ps.LanguageID == "" {
		ps.LanguageID = "1"
	}
	if ps.UserAgent == "" {
		ps.UserAgent = "ERP-Catalog-Importer/1.0"
	}
	if ps.DetailTimeout == 0 {
		ps.DetailTimeout = 15 * time.Second
	}
	if ps.ListTimeout == 0 {
		ps.ListTimeout = 30 * time.Second
	}
	if ps.ProbeTimeout == 0 {
		ps.ProbeTimeout = 10 * time.Second
	}
	if ps.RetryAttempts == 0 {
		ps.RetryAttempts = 3
	}
	if ps.RetryDelay == 0 {
		ps.RetryDelay = 2 * time.Second
	}
	if ps.RequestSpacing == 0 {
		ps.RequestSpacing = 300 * time.Millisecond
	}
	if ps.ErrorPause == 0 {
		ps.ErrorPause = time.Second
	}

	imp := &cfg.Import
	if imp.MaxRecordsPerRun == 0 {
		imp.MaxRecordsPerRun = 20
	}
	if imp.PageSize == 0 {
		imp.PageSize = 20
	}
	if len(imp.ReservedRootIDs) == 0 {
		imp.ReservedRootIDs = []int64{1, 2}
	}
	if imp.MaxDepth == 0 {
		imp.MaxDepth = 20
	}
	if imp.ProgressEvery == 0 {
		imp.ProgressEvery = 10
	}
	if imp.EarlyWarningRatio == 0 {
		imp.EarlyWarningRatio = 0.2
	}
	if imp.MaxErrorSamples == 0 {
		imp.MaxErrorSamples = 20
	}
	if imp.CommitRetryAttempts == 0 {
		imp.CommitRetryAttempts = 3
	}
	if imp.CommitRetryInitial == 0 {
		imp.CommitRetryInitial = time.Second
	}
	if imp.CommitRetryMultiplier == 0 {
		imp.CommitRetryMultiplier = 2
	}
	if len(imp.PublicCategoryModels) == 0 {
		imp.PublicCategoryModels = []string{"product_public_categories", "website_product_categories", "public_categories"}
	}
	if imp.FallbackCategoryName == "" {
		imp.FallbackCategoryName = "All"
	}
	if imp.LockTTL == 0 {
		imp.LockTTL = 30 * time.Minute
	}
	if imp.Breakers == nil {
		imp.Breakers = make(map[string]BreakerConfig)
	}
	defaults := map[string]BreakerConfig{
		"categories": {MinSample: 10, Threshold: 0.30},
		"products":   {MinSample: 20, Threshold: 0.25},
		"stock":      {MinSample: 20, Threshold: 0.25},
		"customers":  {MinSample: 10, Threshold: 0.30},
	}
	for kind, def := range defaults {
		b := imp.Breakers[kind]
		if b.MinSample == 0 {
			b.MinSample = def.MinSample
		}
		if b.Threshold == 0 {
			b.Threshold = def.Threshold
		}
		imp.Breakers[kind] = b
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be 'postgres' or 'sqlite', got %q", c.Database.Driver)
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

	if c.Import.MaxRecordsPerRun < 0 {
		return fmt.Errorf("import.max_records_per_run cannot be negative")
	}
	if c.Import.EarlyWarningRatio < 0 || c.Import.EarlyWarningRatio > 1 {
		return fmt.Errorf("import.early_warning_ratio must be between 0.0 and 1.0, got %f", c.Import.EarlyWarningRatio)
	}
	for kind, b := range c.Import.Breakers {
		if b.Threshold <= 0 || b.Threshold > 1 {
			return fmt.Errorf("import.breaker.%s.threshold must be in (0, 1], got %f", kind, b.Threshold)
		}
		if b.MinSample < 1 {
			return fmt.Errorf("import.breaker.%s.min_sample must be positive", kind)
		}
	}
	if c.Import.CommitRetryMultiplier < 1 {
		return fmt.Errorf("import.commit_retry_multiplier must be at least 1")
	}

	if c.PrestaShop.URL != "" {
		u, err := url.Parse(c.PrestaShop.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("prestashop.url must be an absolute URL, got %q", c.PrestaShop.URL)
		}
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	if c.App.Env == "production" {
		if c.PrestaShop.URL == "" || c.PrestaShop.APIKey == "" {
			return fmt.Errorf("prestashop.url and prestashop.api_key are required in production")
		}
		if c.Database.Driver == DriverPostgres {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
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

// Addr returns the Redis host:port address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// parseIDs parses a list of decimal ids; entries may themselves be comma separated
func parseIDs(raw []string) ([]int64, error) {
	var ids []int64
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			part = strings.Trim(strings.TrimSpace(part), "[]")
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
