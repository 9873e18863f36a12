// Package config defines the top-level configuration for the pnl engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PNLENGINE_* environment variables.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Goldsky   GoldskyConfig   `toml:"goldsky"`
	Feed      FeedConfig      `toml:"feed"`
	Engine    EngineConfig    `toml:"engine"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Server    ServerConfig    `toml:"server"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for ledger
// snapshots and gap reports.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// GoldskyConfig holds the subgraph endpoint that serves order fills, CTF
// events, resolutions, and token registrations.
type GoldskyConfig struct {
	URL      string   `toml:"url"`
	APIKey   string   `toml:"api_key"`
	PageSize int      `toml:"page_size"`
	Timeout  duration `toml:"timeout"`
}

// FeedConfig holds the live market-price websocket parameters.
type FeedConfig struct {
	Enabled  bool     `toml:"enabled"`
	WsHost   string   `toml:"ws_host"`
	PriceTTL duration `toml:"price_ttl"`
}

// EngineConfig holds the canonicalization and classification thresholds.
type EngineConfig struct {
	// SyntheticAmountTolerance is the maximum relative token-amount
	// difference for a cross-outcome pair to be treated as synthetic.
	SyntheticAmountTolerance float64 `toml:"synthetic_amount_tolerance"`
	// SyntheticPriceSumTolerance is the maximum distance of the pair's
	// price sum from 1.0.
	SyntheticPriceSumTolerance float64 `toml:"synthetic_price_sum_tolerance"`
	// MarketMakerRatio is the CTF:CLOB cash volume ratio above which a
	// wallet is classified as a market maker.
	MarketMakerRatio float64 `toml:"market_maker_ratio"`
	// InfraFillCount is the fill count above which a high-ratio wallet is
	// classified as infrastructure.
	InfraFillCount int `toml:"infra_fill_count"`
}

// ReconcileConfig holds batch-run parameters.
type ReconcileConfig struct {
	Interval       duration `toml:"interval"`
	WalletWorkers  int      `toml:"wallet_workers"`
	ScrapeBatch    int      `toml:"scrape_batch"`
	LockTTL        duration `toml:"lock_ttl"`
	SnapshotToS3   bool     `toml:"snapshot_to_s3"`
	SnapshotPrefix string   `toml:"snapshot_prefix"`
	// SnapshotRetain is the number of archived runs to keep; 0 keeps all.
	SnapshotRetain int `toml:"snapshot_retain"`
}

// ServerConfig holds the query API and metrics/health HTTP listener
// parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"` // empty disables auth
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit requests per client IP per RateWindow; 0 disables.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "pnlengine",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "pnlengine-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Goldsky: GoldskyConfig{
			URL:      "",
			APIKey:   "",
			PageSize: 1000,
			Timeout:  duration{30 * time.Second},
		},
		Feed: FeedConfig{
			Enabled:  true,
			WsHost:   "wss://ws-subscriptions-clob.polymarket.com",
			PriceTTL: duration{10 * time.Minute},
		},
		Engine: EngineConfig{
			SyntheticAmountTolerance:   0.01,
			SyntheticPriceSumTolerance: 0.02,
			MarketMakerRatio:           2.0,
			InfraFillCount:             100_000,
		},
		Reconcile: ReconcileConfig{
			Interval:       duration{5 * time.Minute},
			WalletWorkers:  8,
			ScrapeBatch:    1000,
			LockTTL:        duration{10 * time.Minute},
			SnapshotToS3:   true,
			SnapshotPrefix: "snapshots",
			SnapshotRetain: 30,
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8000,
			RateLimit:  20,
			RateWindow: duration{time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"reconcile": true,
	"serve":     true,
	"snapshot":  true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: reconcile, serve, snapshot, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when snapshots are on.
	if c.Reconcile.SnapshotToS3 {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when reconcile.snapshot_to_s3 is set")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when reconcile.snapshot_to_s3 is set")
		}
	}

	// Goldsky — required for any mode that scrapes.
	if c.Mode == "reconcile" || c.Mode == "serve" || c.Mode == "full" {
		if c.Goldsky.URL == "" {
			errs = append(errs, "goldsky: url is required for mode "+c.Mode)
		}
	}
	if c.Goldsky.PageSize < 1 {
		errs = append(errs, "goldsky: page_size must be >= 1")
	}

	// Feed
	if c.Feed.Enabled && c.Feed.WsHost == "" {
		errs = append(errs, "feed: ws_host must not be empty when feed is enabled")
	}
	if c.Feed.PriceTTL.Duration <= 0 {
		errs = append(errs, "feed: price_ttl must be > 0")
	}

	// Engine
	if c.Engine.SyntheticAmountTolerance < 0 || c.Engine.SyntheticAmountTolerance >= 1 {
		errs = append(errs, "engine: synthetic_amount_tolerance must be in [0, 1)")
	}
	if c.Engine.SyntheticPriceSumTolerance < 0 || c.Engine.SyntheticPriceSumTolerance >= 1 {
		errs = append(errs, "engine: synthetic_price_sum_tolerance must be in [0, 1)")
	}
	if c.Engine.MarketMakerRatio <= 0 {
		errs = append(errs, "engine: market_maker_ratio must be > 0")
	}
	if c.Engine.InfraFillCount < 1 {
		errs = append(errs, "engine: infra_fill_count must be >= 1")
	}

	// Reconcile
	if c.Reconcile.Interval.Duration <= 0 {
		errs = append(errs, "reconcile: interval must be > 0")
	}
	if c.Reconcile.WalletWorkers < 1 {
		errs = append(errs, "reconcile: wallet_workers must be >= 1")
	}
	if c.Reconcile.ScrapeBatch < 1 {
		errs = append(errs, "reconcile: scrape_batch must be >= 1")
	}
	if c.Reconcile.LockTTL.Duration <= 0 {
		errs = append(errs, "reconcile: lock_ttl must be > 0")
	}
	if c.Reconcile.SnapshotRetain < 0 {
		errs = append(errs, "reconcile: snapshot_retain must be >= 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
