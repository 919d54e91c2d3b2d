package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Engine.MinEdge != 0.005 {
		t.Errorf("default min_edge = %g, want 0.005", cfg.Engine.MinEdge)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Engine.MinEdge = 1.5
	cfg.Bankroll.KellyFraction = 0
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid config passed validation")
	}
	for _, want := range []string{"unknown mode", "min_edge", "kelly_fraction", "redis: addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %q:\n%v", want, err)
		}
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "monitor"

[engine]
min_edge = 0.02
freshness_window = "30s"

[bankroll]
initial_capital = 50000.0

[engine.reliability]
pinnacle = 0.98
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "monitor" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Engine.MinEdge != 0.02 {
		t.Errorf("min_edge = %g", cfg.Engine.MinEdge)
	}
	if cfg.Engine.FreshnessWindow.Duration != 30*time.Second {
		t.Errorf("freshness_window = %v", cfg.Engine.FreshnessWindow.Duration)
	}
	if cfg.Bankroll.InitialCapital != 50000 {
		t.Errorf("initial_capital = %g", cfg.Bankroll.InitialCapital)
	}
	if cfg.Engine.Reliability["pinnacle"] != 0.98 {
		t.Errorf("reliability = %v", cfg.Engine.Reliability)
	}
	// Untouched sections keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr default lost: %q", cfg.Redis.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("merged config does not validate: %v", err)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`log_level = "debug"`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ODDSARB_LOG_LEVEL", "warn")
	t.Setenv("ODDSARB_BANKROLL_INITIAL_CAPITAL", "2500")
	t.Setenv("ODDSARB_ENGINE_SWEEP_INTERVAL", "250ms")
	t.Setenv("ODDSARB_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log_level = %q, want env override", cfg.LogLevel)
	}
	if cfg.Bankroll.InitialCapital != 2500 {
		t.Errorf("initial_capital = %g", cfg.Bankroll.InitialCapital)
	}
	if cfg.Engine.SweepInterval.Duration != 250*time.Millisecond {
		t.Errorf("sweep_interval = %v", cfg.Engine.SweepInterval.Duration)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != "https://a.example" {
		t.Errorf("cors_origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Notify.TelegramToken = "123:abc"

	red := RedactedConfig(&cfg)
	for name, got := range map[string]string{
		"postgres password": red.Postgres.Password,
		"redis password":    red.Redis.Password,
		"s3 secret key":     red.S3.SecretKey,
		"telegram token":    red.Notify.TelegramToken,
	} {
		if got != "***" {
			t.Errorf("%s not redacted: %q", name, got)
		}
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Error("redaction mutated the original")
	}
}
