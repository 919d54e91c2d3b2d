// Package config defines the top-level configuration for the odds arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ODDSARB_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Bankroll BankrollConfig `toml:"bankroll"`
	Feed     FeedConfig     `toml:"feed"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the detection and lifecycle parameters.
type EngineConfig struct {
	// MinEdge is the minimum guaranteed margin (1 - implied sum) for a cover
	// to count as an opportunity, e.g. 0.005 for 0.5%.
	MinEdge float64 `toml:"min_edge"`
	// FreshnessWindow is the maximum quote age for inclusion in a market view.
	FreshnessWindow duration `toml:"freshness_window"`
	// AuditGracePeriod is how long an expired quote is retained before
	// eviction.
	AuditGracePeriod duration `toml:"audit_grace_period"`
	// StaleGracePeriod is how long a stale opportunity waits for
	// reaffirmation before closing.
	StaleGracePeriod duration `toml:"stale_grace_period"`
	// SweepInterval is the period of the maintenance pass.
	SweepInterval duration `toml:"sweep_interval"`
	// AllowPartialCovers enables reporting of subset covers whose edge is
	// conditional on the uncovered outcomes losing.
	AllowPartialCovers bool `toml:"allow_partial_covers"`
	// MaxOutcomes bounds the outcome count per market for subset enumeration.
	MaxOutcomes int `toml:"max_outcomes"`
	// MinRiskScore filters opportunities by execution confidence.
	MinRiskScore float64 `toml:"min_risk_score"`
	// Reliability maps bookmaker ID to its settlement reliability in [0, 1].
	Reliability map[string]float64 `toml:"reliability"`
	// DefaultReliability applies to bookmakers absent from the map.
	DefaultReliability float64 `toml:"default_reliability"`
}

// BankrollConfig holds the capital and stake sizing parameters.
type BankrollConfig struct {
	InitialCapital float64 `toml:"initial_capital"`
	// MaxFractionPerOpportunity caps total exposure per opportunity as a
	// fraction of available capital.
	MaxFractionPerOpportunity float64 `toml:"max_fraction_per_opportunity"`
	// KellyFraction scales the cap further (fractional Kelly).
	KellyFraction float64 `toml:"kelly_fraction"`
	// PayoutTolerance is the maximum allowed spread between best and worst
	// leg payout after rounding, in currency units.
	PayoutTolerance float64 `toml:"payout_tolerance"`
	// MinTotalStake rejects plans too small to be worth placing.
	MinTotalStake float64 `toml:"min_total_stake"`
	// BookmakerLimits maps bookmaker ID to its committed-exposure cap.
	BookmakerLimits map[string]float64 `toml:"bookmaker_limits"`
	// DryRun computes stake plans without committing capital (monitor mode).
	DryRun bool `toml:"dry_run"`
}

// FeedConfig holds the quote feed parameters.
type FeedConfig struct {
	// QuoteChannel is the Redis pub/sub channel quotes arrive on.
	QuoteChannel string `toml:"quote_channel"`
	// EventStream is the Redis stream opportunity events are appended to.
	EventStream string `toml:"event_stream"`
	// EventStreamMaxLen caps the event stream length (approximate trim).
	EventStreamMaxLen int64 `toml:"event_stream_max_len"`
	// RateLimitPerSec throttles quote ingestion per bookmaker; 0 disables.
	RateLimitPerSec int `toml:"rate_limit_per_sec"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds the cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled bool `toml:"enabled"`
	// RetentionDays is how long quote history stays in Postgres before it is
	// archived to object storage and deleted.
	RetentionDays int `toml:"retention_days"`
	// Interval is the period of the archival pass.
	Interval duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects the API when set; empty disables authentication.
	APIKey string `toml:"api_key"`
	// RateLimitPerSec throttles API requests per client IP; 0 disables.
	RateLimitPerSec int `toml:"rate_limit_per_sec"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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
		Engine: EngineConfig{
			MinEdge:            0.005,
			FreshnessWindow:    duration{10 * time.Second},
			AuditGracePeriod:   duration{time.Minute},
			StaleGracePeriod:   duration{30 * time.Second},
			SweepInterval:      duration{time.Second},
			AllowPartialCovers: false,
			MaxOutcomes:        12,
			MinRiskScore:       0,
			Reliability:        map[string]float64{},
			DefaultReliability: 0.8,
		},
		Bankroll: BankrollConfig{
			InitialCapital:            10000,
			MaxFractionPerOpportunity: 0.1,
			KellyFraction:             0.5,
			PayoutTolerance:           0.05,
			MinTotalStake:             1.0,
			BookmakerLimits:           map[string]float64{},
		},
		Feed: FeedConfig{
			QuoteChannel:      "quotes",
			EventStream:       "opportunity_events",
			EventStreamMaxLen: 10_000,
			RateLimitPerSec:   0,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "oddsarb",
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
			Bucket:         "oddsarb-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_detected", "opportunity_closed", "allocation_rejected"},
		},
		Mode:     "engine",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine":  true,
	"monitor": true,
	"server":  true,
	"full":    true,
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

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, monitor, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.MinEdge <= 0 || c.Engine.MinEdge >= 1 {
		errs = append(errs, fmt.Sprintf("engine: min_edge must be in (0, 1), got %g", c.Engine.MinEdge))
	}
	if c.Engine.FreshnessWindow.Duration <= 0 {
		errs = append(errs, "engine: freshness_window must be positive")
	}
	if c.Engine.AuditGracePeriod.Duration < 0 {
		errs = append(errs, "engine: audit_grace_period must not be negative")
	}
	if c.Engine.StaleGracePeriod.Duration < 0 {
		errs = append(errs, "engine: stale_grace_period must not be negative")
	}
	if c.Engine.SweepInterval.Duration <= 0 {
		errs = append(errs, "engine: sweep_interval must be positive")
	}
	if c.Engine.MaxOutcomes < 2 {
		errs = append(errs, fmt.Sprintf("engine: max_outcomes must be >= 2, got %d", c.Engine.MaxOutcomes))
	}
	if c.Engine.DefaultReliability < 0 || c.Engine.DefaultReliability > 1 {
		errs = append(errs, fmt.Sprintf("engine: default_reliability must be in [0, 1], got %g", c.Engine.DefaultReliability))
	}
	for book, r := range c.Engine.Reliability {
		if r < 0 || r > 1 {
			errs = append(errs, fmt.Sprintf("engine: reliability for %q must be in [0, 1], got %g", book, r))
		}
	}

	// Bankroll
	if c.Bankroll.InitialCapital <= 0 {
		errs = append(errs, "bankroll: initial_capital must be > 0")
	}
	if c.Bankroll.MaxFractionPerOpportunity <= 0 || c.Bankroll.MaxFractionPerOpportunity > 1 {
		errs = append(errs, fmt.Sprintf("bankroll: max_fraction_per_opportunity must be in (0, 1], got %g", c.Bankroll.MaxFractionPerOpportunity))
	}
	if c.Bankroll.KellyFraction <= 0 || c.Bankroll.KellyFraction > 1 {
		errs = append(errs, fmt.Sprintf("bankroll: kelly_fraction must be in (0, 1], got %g", c.Bankroll.KellyFraction))
	}
	if c.Bankroll.PayoutTolerance < 0 {
		errs = append(errs, "bankroll: payout_tolerance must not be negative")
	}
	if c.Bankroll.MinTotalStake < 0 {
		errs = append(errs, "bankroll: min_total_stake must not be negative")
	}
	for book, limit := range c.Bankroll.BookmakerLimits {
		if limit <= 0 {
			errs = append(errs, fmt.Sprintf("bankroll: limit for %q must be > 0, got %g", book, limit))
		}
	}

	// Feed
	if c.Feed.QuoteChannel == "" {
		errs = append(errs, "feed: quote_channel must not be empty")
	}
	if c.Feed.EventStream == "" {
		errs = append(errs, "feed: event_stream must not be empty")
	}
	if c.Feed.RateLimitPerSec < 0 {
		errs = append(errs, "feed: rate_limit_per_sec must not be negative")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, fmt.Sprintf("archive: retention_days must be >= 1, got %d", c.Archive.RetentionDays))
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify — both Telegram fields set together, or neither.
	tk := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tk != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
