package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ODDSARB_* environment variable overrides, and
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

// applyEnvOverrides reads well-known ODDSARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setFloat64(&cfg.Engine.MinEdge, "ODDSARB_ENGINE_MIN_EDGE")
	setDuration(&cfg.Engine.FreshnessWindow, "ODDSARB_ENGINE_FRESHNESS_WINDOW")
	setDuration(&cfg.Engine.AuditGracePeriod, "ODDSARB_ENGINE_AUDIT_GRACE_PERIOD")
	setDuration(&cfg.Engine.StaleGracePeriod, "ODDSARB_ENGINE_STALE_GRACE_PERIOD")
	setDuration(&cfg.Engine.SweepInterval, "ODDSARB_ENGINE_SWEEP_INTERVAL")
	setBool(&cfg.Engine.AllowPartialCovers, "ODDSARB_ENGINE_ALLOW_PARTIAL_COVERS")
	setInt(&cfg.Engine.MaxOutcomes, "ODDSARB_ENGINE_MAX_OUTCOMES")
	setFloat64(&cfg.Engine.MinRiskScore, "ODDSARB_ENGINE_MIN_RISK_SCORE")
	setFloat64(&cfg.Engine.DefaultReliability, "ODDSARB_ENGINE_DEFAULT_RELIABILITY")

	// ── Bankroll ──
	setFloat64(&cfg.Bankroll.InitialCapital, "ODDSARB_BANKROLL_INITIAL_CAPITAL")
	setFloat64(&cfg.Bankroll.MaxFractionPerOpportunity, "ODDSARB_BANKROLL_MAX_FRACTION_PER_OPPORTUNITY")
	setFloat64(&cfg.Bankroll.KellyFraction, "ODDSARB_BANKROLL_KELLY_FRACTION")
	setFloat64(&cfg.Bankroll.PayoutTolerance, "ODDSARB_BANKROLL_PAYOUT_TOLERANCE")
	setFloat64(&cfg.Bankroll.MinTotalStake, "ODDSARB_BANKROLL_MIN_TOTAL_STAKE")
	setBool(&cfg.Bankroll.DryRun, "ODDSARB_BANKROLL_DRY_RUN")

	// ── Feed ──
	setStr(&cfg.Feed.QuoteChannel, "ODDSARB_FEED_QUOTE_CHANNEL")
	setStr(&cfg.Feed.EventStream, "ODDSARB_FEED_EVENT_STREAM")
	setInt64(&cfg.Feed.EventStreamMaxLen, "ODDSARB_FEED_EVENT_STREAM_MAX_LEN")
	setInt(&cfg.Feed.RateLimitPerSec, "ODDSARB_FEED_RATE_LIMIT_PER_SEC")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ODDSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ODDSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ODDSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ODDSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ODDSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ODDSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ODDSARB_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "ODDSARB_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "ODDSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ODDSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ODDSARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ODDSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ODDSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ODDSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ODDSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ODDSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ODDSARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ODDSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ODDSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "ODDSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ODDSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ODDSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ODDSARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ODDSARB_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ODDSARB_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "ODDSARB_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "ODDSARB_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ODDSARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ODDSARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ODDSARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ODDSARB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerSec, "ODDSARB_SERVER_RATE_LIMIT_PER_SEC")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ODDSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ODDSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ODDSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ODDSARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ODDSARB_MODE")
	setStr(&cfg.LogLevel, "ODDSARB_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
