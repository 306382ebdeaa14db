package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment string
	Host        string
	Port        int
	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	SentryEnabled bool   `toml:"sentry_enabled"`
	// tracing
	HoneycombTracingEnabled bool `toml:"honeycomb_tracing_enabled"`
	// postgres
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`
	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`
	// prometheus
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`
	// login
	LoginRateLimitAllowedPerMin int `toml:"login_rate_limit_allowed_per_min"`
	// google calendar / oauth2 (client secret comes via env var)
	GoogleClientID    string `toml:"google_client_id"`
	GoogleRedirectURI string `toml:"google_redirect_uri"`
	// calendar sync
	SyncWindowPastDays   int  `toml:"sync_window_past_days"`
	SyncWindowFutureDays int  `toml:"sync_window_future_days"`
	SyncIntervalMinutes  int  `toml:"sync_interval_minutes"`
	AutoSyncEnabled      bool `toml:"auto_sync_enabled"`
	EventCacheTTLSeconds int  `toml:"event_cache_ttl_seconds"`
	InterCallDelayMillis int  `toml:"inter_call_delay_millis"`
	CacheSampleSize      int  `toml:"cache_sample_size"`
	CacheSampleTimeoutMs int  `toml:"cache_sample_timeout_ms"`
}

type Toml struct {
	Development *Config
	Production  *Config
	DockerDev   *Config `toml:"dockerdev"`
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	case "ddev", "dockerdev":
		return t.DockerDev, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var tomlCfg Toml
	if _, err := toml.DecodeFile(path, &tomlCfg); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	cfg, err := tomlCfg.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config section for env %s missing", env)
	}

	cfg.Environment = env
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SyncWindowPastDays == 0 {
		c.SyncWindowPastDays = 7
	}
	if c.SyncWindowFutureDays == 0 {
		c.SyncWindowFutureDays = 7
	}
	if c.SyncIntervalMinutes == 0 {
		c.SyncIntervalMinutes = 30
	}
	if c.EventCacheTTLSeconds == 0 {
		c.EventCacheTTLSeconds = 60
	}
	if c.InterCallDelayMillis == 0 {
		c.InterCallDelayMillis = 150
	}
	if c.CacheSampleSize == 0 {
		c.CacheSampleSize = 10
	}
	if c.CacheSampleTimeoutMs == 0 {
		c.CacheSampleTimeoutMs = 2000
	}
	if c.LoginRateLimitAllowedPerMin == 0 {
		c.LoginRateLimitAllowedPerMin = 15
	}
	if c.PrometheusMetricsHost == "" {
		c.PrometheusMetricsHost = "localhost"
	}
	if c.PrometheusMetricsPort == "" {
		c.PrometheusMetricsPort = "2112"
	}
}
