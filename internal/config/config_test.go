package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"bibo/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "bibo-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
		"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL", "BIBO_WEBHOOK_URL", "BIBO_CONFIG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFull(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/bibo/data"
  sqlite_path: "/tmp/bibo/bibo.db"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  feed: "sip"
logging:
  level: "debug"
  format: "json"
data:
  source: "parquet"
  max_workers: 2
  retry_base_delay: 250ms
strategy:
  sma_windows: [5, 10, 20]
  atr_window: 7
  stop_multiple: 0.5
  target_multiple: 1.0
  risk_fraction: 0.02
  market_filter: true
backtest:
  start: "2024-01-01"
  end: "2024-06-30"
  initial_capital: 25000
  symbols: [AAPL, MSFT]
sweep:
  stop_multiples: [0.2, 0.4]
notify:
  timeout: 3s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/bibo/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/bibo/data")
	}
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.Feed != "sip" {
		t.Errorf("Alpaca.Feed = %q, want %q", cfg.Alpaca.Feed, "sip")
	}
	if cfg.Data.Source != "parquet" {
		t.Errorf("Data.Source = %q, want %q", cfg.Data.Source, "parquet")
	}
	if cfg.Data.RetryBaseDelay != 250*time.Millisecond {
		t.Errorf("Data.RetryBaseDelay = %v, want 250ms", cfg.Data.RetryBaseDelay)
	}
	if got := cfg.Strategy.SMAWindows; len(got) != 3 || got[2] != 20 {
		t.Errorf("Strategy.SMAWindows = %v, want [5 10 20]", got)
	}
	if cfg.Strategy.RiskFraction != 0.02 {
		t.Errorf("Strategy.RiskFraction = %v, want 0.02", cfg.Strategy.RiskFraction)
	}
	if cfg.Backtest.InitialCapital != 25000 {
		t.Errorf("Backtest.InitialCapital = %v, want 25000", cfg.Backtest.InitialCapital)
	}
	if len(cfg.Live.Symbols) != 2 {
		t.Errorf("Live.Symbols = %v, want backtest symbols", cfg.Live.Symbols)
	}
	if cfg.Notify.Timeout != 3*time.Second {
		t.Errorf("Notify.Timeout = %v, want 3s", cfg.Notify.Timeout)
	}
	if err := cfg.ValidateBacktest(); err != nil {
		t.Errorf("ValidateBacktest() = %v, want nil", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	s := cfg.Strategy
	if s.Name != "bibo" {
		t.Errorf("Strategy.Name = %q, want bibo", s.Name)
	}
	if len(s.SMAWindows) != 3 || s.SMAWindows[0] != 50 || s.SMAWindows[1] != 100 || s.SMAWindows[2] != 150 {
		t.Errorf("Strategy.SMAWindows = %v, want [50 100 150]", s.SMAWindows)
	}
	if s.ATRWindow != 14 {
		t.Errorf("Strategy.ATRWindow = %d, want 14", s.ATRWindow)
	}
	if s.StopMultiple != 0.4 || s.TargetMultiple != 1.2 {
		t.Errorf("multiples = %v/%v, want 0.4/1.2", s.StopMultiple, s.TargetMultiple)
	}
	if s.RiskFraction != 0.01 {
		t.Errorf("Strategy.RiskFraction = %v, want 0.01", s.RiskFraction)
	}
	if s.Quantity != "whole" || s.MinQuantity != 1 {
		t.Errorf("quantity = %q/%v, want whole/1", s.Quantity, s.MinQuantity)
	}
	if s.MarketSymbol != "SPY" || cfg.Backtest.Benchmark != "SPY" {
		t.Errorf("market/benchmark = %q/%q, want SPY/SPY", s.MarketSymbol, cfg.Backtest.Benchmark)
	}
	if cfg.Live.WindowStart != "15:50" || cfg.Live.WindowEnd != "16:00" {
		t.Errorf("live window = %s-%s, want 15:50-16:00", cfg.Live.WindowStart, cfg.Live.WindowEnd)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v, want nil", err)
	}
	if err := cfg.ValidateBacktest(); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("ValidateBacktest() = %v, want ErrInvalidConfig", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "file-key"
`)
	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("APCA_API_KEY_ID", "canonical-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("BIBO_WEBHOOK_URL", "https://hooks.example/abc")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "canonical-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "canonical-key")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Notify.WebhookURL != "https://hooks.example/abc" {
		t.Errorf("Notify.WebhookURL = %q", cfg.Notify.WebhookURL)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"two windows", func(c *Config) { c.Strategy.SMAWindows = []int{10, 20} }},
		{"unordered windows", func(c *Config) { c.Strategy.SMAWindows = []int{100, 50, 150} }},
		{"zero atr", func(c *Config) { c.Strategy.ATRWindow = -1 }},
		{"negative stop", func(c *Config) { c.Strategy.StopMultiple = -0.4 }},
		{"risk above one", func(c *Config) { c.Strategy.RiskFraction = 1.5 }},
		{"bad quantity", func(c *Config) { c.Strategy.Quantity = "lots" }},
		{"bad first tr", func(c *Config) { c.Strategy.FirstTrueRange = "zero" }},
		{"end before start", func(c *Config) {
			c.Backtest.Start = "2024-06-01"
			c.Backtest.End = "2024-01-01"
		}},
		{"bad source", func(c *Config) { c.Data.Source = "csv" }},
		{"bad sweep risk", func(c *Config) { c.Sweep.RiskFractions = []float64{0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("BIBO_CONFIG", "")
	if got := ResolvePath(""); got != DefaultPath {
		t.Errorf("ResolvePath(\"\") = %q, want %q", got, DefaultPath)
	}
	t.Setenv("BIBO_CONFIG", "/etc/bibo.yaml")
	if got := ResolvePath(""); got != "/etc/bibo.yaml" {
		t.Errorf("ResolvePath(\"\") = %q, want /etc/bibo.yaml", got)
	}
	if got := ResolvePath("x.yaml"); got != "x.yaml" {
		t.Errorf("ResolvePath(x.yaml) = %q, want x.yaml", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/bibo.yaml"); err == nil {
		t.Error("Load() on missing file should fail")
	}
}
