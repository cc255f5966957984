// Package config defines the application configuration structure and its
// validation rules.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the dispatch service.
type Config struct {
	App       AppConfig       `koanf:"app"`
	HTTP      HTTPConfig      `koanf:"http"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Tracing   TracingConfig   `koanf:"tracing"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Audit     AuditConfig     `koanf:"audit"`
	Retry     RetryConfig     `koanf:"retry"`
	Report    ReportConfig    `koanf:"report"`
	Geo       GeoConfig       `koanf:"geo"`
	Solver    SolverConfig    `koanf:"solver"`
	Adaptive  AdaptiveConfig  `koanf:"adaptive"`
	WS        WSConfig        `koanf:"ws"`
}

// AppConfig holds general application metadata.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	Debug       bool   `koanf:"debug"`
}

// HTTPConfig configures the public HTTP JSON API and WebSocket server.
type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORS            CORSConfig    `koanf:"cors"`
}

// CORSConfig configures cross-origin access to the HTTP API.
type CORSConfig struct {
	Enabled          bool     `koanf:"enabled"`
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

// LogConfig configures structured logging and log rotation.
type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	Output     string `koanf:"output"`
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"`
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// DatabaseConfig configures the Postgres-backed persistence layer (C8).
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	Driver          string        `koanf:"driver"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	MigrationsPath  string        `koanf:"migrations_path"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// DSN returns the connection string, preferring an explicit URL if set.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// CacheConfig configures the distance-matrix / general-purpose cache (C2).
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"`
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"`
}

// Address returns the host:port address of the cache backend.
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig configures request throttling of the public HTTP API
// (read by pkg/server).
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Requests        int           `koanf:"requests"`
	Window          time.Duration `koanf:"window"`
	Strategy        string        `koanf:"strategy"`
	Backend         string        `koanf:"backend"`
	BurstSize       int           `koanf:"burst_size"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
}

// AuditConfig configures the audit trail distinct from the event bus.
type AuditConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Backend        string        `koanf:"backend"`
	FilePath       string        `koanf:"file_path"`
	BufferSize     int           `koanf:"buffer_size"`
	FlushPeriod    time.Duration `koanf:"flush_period"`
	ExcludeMethods []string      `koanf:"exclude_methods"`
	IncludeRequest bool          `koanf:"include_request"`
}

// RetryConfig holds exponential-backoff settings for outbound calls. No
// component in this module reads it; pkg/client retries with its own linear
// backoff.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// ReportConfig configures route manifest / daily-plan export generation.
type ReportConfig struct {
	SaveToStorage      bool          `koanf:"save_to_storage"`
	DefaultTTL         time.Duration `koanf:"default_ttl"`
	MaxReportSizeBytes int64         `koanf:"max_report_size_bytes"`
	DefaultLanguage    string        `koanf:"default_language"`
	DefaultCurrency    string        `koanf:"default_currency"`
	DefaultTheme       string        `koanf:"default_theme"`
	CleanupInterval    time.Duration `koanf:"cleanup_interval"`
	RetentionPeriod    time.Duration `koanf:"retention_period"`
	DefaultCompanyName string        `koanf:"default_company_name"`
	DefaultLogoURL     string        `koanf:"default_logo_url"`
	PDF                PDFConfig     `koanf:"pdf"`
}

// PDFConfig configures route-manifest PDF rendering.
type PDFConfig struct {
	PageSize          string  `koanf:"page_size"`
	Orientation       string  `koanf:"orientation"`
	MarginTop         float64 `koanf:"margin_top"`
	MarginBottom      float64 `koanf:"margin_bottom"`
	MarginLeft        float64 `koanf:"margin_left"`
	MarginRight       float64 `koanf:"margin_right"`
	FontFamily        string  `koanf:"font_family"`
	FontSize          float64 `koanf:"font_size"`
	HeaderFontSize    float64 `koanf:"header_font_size"`
	EnablePageNumbers bool    `koanf:"enable_page_numbers"`
	EnableWatermark   bool    `koanf:"enable_watermark"`
	WatermarkText     string  `koanf:"watermark_text"`
}

// GeoConfig configures the mapping-provider client (C1).
type GeoConfig struct {
	MapAPIKey       string  `koanf:"map_api_key"`
	MapBaseURL      string  `koanf:"map_base_url"`
	RequestsPerSec  float64 `koanf:"requests_per_second"`
	MatrixCacheTTLS int     `koanf:"matrix_cache_ttl_s"`
}

// SolverConfig configures the VRPTW solver (C4).
type SolverConfig struct {
	ObjectiveWeightAlpha float64 `koanf:"objective_weight_alpha"`
	ObjectiveWeightBeta  float64 `koanf:"objective_weight_beta"`
	ObjectiveWeightGamma float64 `koanf:"objective_weight_gamma"`
	TimeLimitS           int     `koanf:"time_limit_s"`
	BaseCostNormalizer   float64 `koanf:"base_cost_normalizer"`
}

// AdaptiveConfig configures the monitor loop and re-optimization policy (C7).
type AdaptiveConfig struct {
	MonitorIntervalS        int     `koanf:"monitor_interval_s"`
	DelayThresholdMin       int     `koanf:"delay_threshold_min"`
	TrafficThreshold        float64 `koanf:"traffic_threshold"`
	ReoptimizationCooldownM int     `koanf:"reoptimization_cooldown_min"`
}

// WSConfig configures the WebSocket push channels.
type WSConfig struct {
	HeartbeatS int `koanf:"heartbeat_s"`
}

// Validate checks the configuration for consistency, returning an error
// describing the first violation found.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", c.Log.Level)
	}

	if c.Report.DefaultTheme != "" {
		switch c.Report.DefaultTheme {
		case "light", "dark":
		default:
			return fmt.Errorf("report.default_theme must be light or dark, got %q", c.Report.DefaultTheme)
		}
	}

	if c.Report.PDF.PageSize != "" {
		switch c.Report.PDF.PageSize {
		case "A4", "Letter":
		default:
			return fmt.Errorf("report.pdf.page_size must be A4 or Letter, got %q", c.Report.PDF.PageSize)
		}
	}

	if c.Report.PDF.Orientation != "" {
		switch c.Report.PDF.Orientation {
		case "portrait", "landscape":
		default:
			return fmt.Errorf("report.pdf.orientation must be portrait or landscape, got %q", c.Report.PDF.Orientation)
		}
	}

	return nil
}

// IsDevelopment reports whether the app is running in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction reports whether the app is running in the production environment.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
