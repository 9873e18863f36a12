package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PNLENGINE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PNLENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "PNLENGINE_DATABASE_DSN")
	setStr(&cfg.Database.Host, "PNLENGINE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PNLENGINE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PNLENGINE_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "PNLENGINE_DATABASE_USER")
	setStr(&cfg.Database.Password, "PNLENGINE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PNLENGINE_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "PNLENGINE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PNLENGINE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PNLENGINE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PNLENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PNLENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PNLENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PNLENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PNLENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PNLENGINE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PNLENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PNLENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "PNLENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PNLENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PNLENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PNLENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PNLENGINE_S3_FORCE_PATH_STYLE")

	// ── Goldsky ──
	setStr(&cfg.Goldsky.URL, "PNLENGINE_GOLDSKY_URL")
	setStr(&cfg.Goldsky.APIKey, "PNLENGINE_GOLDSKY_API_KEY")
	setInt(&cfg.Goldsky.PageSize, "PNLENGINE_GOLDSKY_PAGE_SIZE")
	setDuration(&cfg.Goldsky.Timeout, "PNLENGINE_GOLDSKY_TIMEOUT")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "PNLENGINE_FEED_ENABLED")
	setStr(&cfg.Feed.WsHost, "PNLENGINE_FEED_WS_HOST")
	setDuration(&cfg.Feed.PriceTTL, "PNLENGINE_FEED_PRICE_TTL")

	// ── Engine ──
	setFloat64(&cfg.Engine.SyntheticAmountTolerance, "PNLENGINE_ENGINE_SYNTHETIC_AMOUNT_TOLERANCE")
	setFloat64(&cfg.Engine.SyntheticPriceSumTolerance, "PNLENGINE_ENGINE_SYNTHETIC_PRICE_SUM_TOLERANCE")
	setFloat64(&cfg.Engine.MarketMakerRatio, "PNLENGINE_ENGINE_MARKET_MAKER_RATIO")
	setInt(&cfg.Engine.InfraFillCount, "PNLENGINE_ENGINE_INFRA_FILL_COUNT")

	// ── Reconcile ──
	setDuration(&cfg.Reconcile.Interval, "PNLENGINE_RECONCILE_INTERVAL")
	setInt(&cfg.Reconcile.WalletWorkers, "PNLENGINE_RECONCILE_WALLET_WORKERS")
	setInt(&cfg.Reconcile.ScrapeBatch, "PNLENGINE_RECONCILE_SCRAPE_BATCH")
	setDuration(&cfg.Reconcile.LockTTL, "PNLENGINE_RECONCILE_LOCK_TTL")
	setBool(&cfg.Reconcile.SnapshotToS3, "PNLENGINE_RECONCILE_SNAPSHOT_TO_S3")
	setStr(&cfg.Reconcile.SnapshotPrefix, "PNLENGINE_RECONCILE_SNAPSHOT_PREFIX")
	setInt(&cfg.Reconcile.SnapshotRetain, "PNLENGINE_RECONCILE_SNAPSHOT_RETAIN")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PNLENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PNLENGINE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "PNLENGINE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PNLENGINE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PNLENGINE_SERVER_RATE_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Mode, "PNLENGINE_MODE")
	setStr(&cfg.LogLevel, "PNLENGINE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
