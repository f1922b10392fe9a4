package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"bibo/internal/domain"
)

// DefaultPath is used when neither --config nor BIBO_CONFIG is set.
const DefaultPath = "config/bibo.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the bibo engine.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Data     DataConfig     `yaml:"data"`
	Strategy StrategyConfig `yaml:"strategy"`
	Backtest BacktestConfig `yaml:"backtest"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Live     LiveConfig     `yaml:"live"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	ResultsDir string `yaml:"results_dir"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Addr returns host:port for the gRPC listener.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort)
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// DataConfig controls how daily bars are fetched.
type DataConfig struct {
	Source          string        `yaml:"source"` // alpaca | parquet
	MaxWorkers      int           `yaml:"max_workers"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	LookbackDays    int           `yaml:"lookback_days"`
	Cache           bool          `yaml:"cache"`
}

// StrategyConfig holds indicator windows, bracket multiples and sizing.
type StrategyConfig struct {
	Name           string  `yaml:"name"`
	SMAWindows     []int   `yaml:"sma_windows"`
	ATRWindow      int     `yaml:"atr_window"`
	FirstTrueRange string  `yaml:"first_true_range"` // high_low | undefined
	StopMultiple   float64 `yaml:"stop_multiple"`
	TargetMultiple float64 `yaml:"target_multiple"`
	RiskFraction   float64 `yaml:"risk_fraction"`
	Quantity       string  `yaml:"quantity"` // whole | fractional
	MinQuantity    float64 `yaml:"min_quantity"`
	MarketFilter   bool    `yaml:"market_filter"`
	MarketSymbol   string  `yaml:"market_symbol"`
}

// BacktestConfig defines a historical simulation.
type BacktestConfig struct {
	Start          string   `yaml:"start"`
	End            string   `yaml:"end"`
	InitialCapital float64  `yaml:"initial_capital"`
	Symbols        []string `yaml:"symbols"`
	SymbolsFile    string   `yaml:"symbols_file"` // CSV, first column
	Benchmark      string   `yaml:"benchmark"`
	Shuffle        bool     `yaml:"shuffle"`
	Seed           int64    `yaml:"seed"`
	BarsHeld       string   `yaml:"bars_held"` // calendar | bars
	CloseAtEnd     bool     `yaml:"close_at_end"`
}

// StartDate parses Start.
func (b BacktestConfig) StartDate() (time.Time, error) {
	return time.Parse(domain.DateLayout, b.Start)
}

// EndDate parses End.
func (b BacktestConfig) EndDate() (time.Time, error) {
	return time.Parse(domain.DateLayout, b.End)
}

// SweepConfig is the parameter grid for `bibo sweep`.
type SweepConfig struct {
	StopMultiples   []float64 `yaml:"stop_multiples"`
	TargetMultiples []float64 `yaml:"target_multiples"`
	RiskFractions   []float64 `yaml:"risk_fractions"`
	MaxWorkers      int       `yaml:"max_workers"`
}

// LiveConfig controls the end-of-day scan against a live broker.
type LiveConfig struct {
	ScheduleHour   int      `yaml:"schedule_hour"`
	ScheduleMinute int      `yaml:"schedule_minute"`
	WindowStart    string   `yaml:"window_start"`
	WindowEnd      string   `yaml:"window_end"`
	Timezone       string   `yaml:"timezone"`
	TimeInForce    string   `yaml:"time_in_force"`
	Symbols        []string `yaml:"symbols"`
}

// NotifyConfig configures the outbound webhook.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// ResolvePath returns flagPath if set, then $BIBO_CONFIG, then DefaultPath.
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if v := os.Getenv("BIBO_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.ApplyDefaults()

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("BIBO_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Defaults and validation
// ---------------------------------------------------------------------------

// ApplyDefaults fills zero-valued fields with the canonical BIBO parameters.
func (c *Config) ApplyDefaults() {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/bibo.db"
	}
	if c.Storage.ResultsDir == "" {
		c.Storage.ResultsDir = "results"
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = 9090
	}
	if c.Alpaca.Feed == "" {
		c.Alpaca.Feed = "iex"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	d := &c.Data
	if d.Source == "" {
		d.Source = "alpaca"
	}
	if d.MaxWorkers <= 0 {
		d.MaxWorkers = 8
	}
	if d.RetryAttempts <= 0 {
		d.RetryAttempts = 3
	}
	if d.RetryBaseDelay <= 0 {
		d.RetryBaseDelay = 500 * time.Millisecond
	}
	if d.RateLimitPerMin == 0 {
		d.RateLimitPerMin = 200
	}
	if d.LookbackDays <= 0 {
		d.LookbackDays = 250
	}

	s := &c.Strategy
	if s.Name == "" {
		s.Name = "bibo"
	}
	if len(s.SMAWindows) == 0 {
		s.SMAWindows = []int{50, 100, 150}
	}
	if s.ATRWindow == 0 {
		s.ATRWindow = 14
	}
	if s.FirstTrueRange == "" {
		s.FirstTrueRange = "high_low"
	}
	if s.StopMultiple == 0 {
		s.StopMultiple = 0.4
	}
	if s.TargetMultiple == 0 {
		s.TargetMultiple = 1.2
	}
	if s.RiskFraction == 0 {
		s.RiskFraction = 0.01
	}
	if s.Quantity == "" {
		s.Quantity = "whole"
	}
	if s.MinQuantity == 0 {
		if s.Quantity == "fractional" {
			s.MinQuantity = 0.0001
		} else {
			s.MinQuantity = 1
		}
	}
	if s.MarketSymbol == "" {
		s.MarketSymbol = "SPY"
	}

	b := &c.Backtest
	if b.InitialCapital == 0 {
		b.InitialCapital = 10000
	}
	if b.Benchmark == "" {
		b.Benchmark = s.MarketSymbol
	}
	if b.BarsHeld == "" {
		b.BarsHeld = "calendar"
	}

	if c.Sweep.MaxWorkers <= 0 {
		c.Sweep.MaxWorkers = 4
	}

	l := &c.Live
	if l.ScheduleHour == 0 && l.ScheduleMinute == 0 {
		l.ScheduleHour, l.ScheduleMinute = 15, 50
	}
	if l.WindowStart == "" {
		l.WindowStart = "15:50"
	}
	if l.WindowEnd == "" {
		l.WindowEnd = "16:00"
	}
	if l.Timezone == "" {
		l.Timezone = "America/New_York"
	}
	if l.TimeInForce == "" {
		l.TimeInForce = "gtc"
	}
	if len(l.Symbols) == 0 {
		l.Symbols = b.Symbols
	}

	if c.Notify.Timeout <= 0 {
		c.Notify.Timeout = 10 * time.Second
	}
}

// Validate checks the strategy and backtest parameters. Every failure wraps
// domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	s := c.Strategy
	if len(s.SMAWindows) != 3 {
		return invalid("strategy.sma_windows must have 3 entries, got %d", len(s.SMAWindows))
	}
	for _, w := range s.SMAWindows {
		if w <= 0 {
			return invalid("strategy.sma_windows must be positive, got %v", s.SMAWindows)
		}
	}
	if !(s.SMAWindows[0] < s.SMAWindows[1] && s.SMAWindows[1] < s.SMAWindows[2]) {
		return invalid("strategy.sma_windows must be strictly increasing, got %v", s.SMAWindows)
	}
	if s.ATRWindow <= 0 {
		return invalid("strategy.atr_window must be positive, got %d", s.ATRWindow)
	}
	if s.FirstTrueRange != "high_low" && s.FirstTrueRange != "undefined" {
		return invalid("strategy.first_true_range must be high_low or undefined, got %q", s.FirstTrueRange)
	}
	if s.StopMultiple <= 0 || s.TargetMultiple <= 0 {
		return invalid("strategy stop/target multiples must be positive, got %v/%v", s.StopMultiple, s.TargetMultiple)
	}
	if s.RiskFraction <= 0 || s.RiskFraction > 1 {
		return invalid("strategy.risk_fraction must be in (0,1], got %v", s.RiskFraction)
	}
	if s.Quantity != "whole" && s.Quantity != "fractional" {
		return invalid("strategy.quantity must be whole or fractional, got %q", s.Quantity)
	}
	if s.MinQuantity <= 0 {
		return invalid("strategy.min_quantity must be positive, got %v", s.MinQuantity)
	}

	b := c.Backtest
	if b.InitialCapital <= 0 {
		return invalid("backtest.initial_capital must be positive, got %v", b.InitialCapital)
	}
	if b.BarsHeld != "calendar" && b.BarsHeld != "bars" {
		return invalid("backtest.bars_held must be calendar or bars, got %q", b.BarsHeld)
	}
	if b.Start != "" || b.End != "" {
		start, err := b.StartDate()
		if err != nil {
			return invalid("backtest.start: %v", err)
		}
		end, err := b.EndDate()
		if err != nil {
			return invalid("backtest.end: %v", err)
		}
		if end.Before(start) {
			return invalid("backtest.end %s is before start %s", b.End, b.Start)
		}
	}

	if c.Data.Source != "alpaca" && c.Data.Source != "parquet" {
		return invalid("data.source must be alpaca or parquet, got %q", c.Data.Source)
	}
	for _, m := range c.Sweep.StopMultiples {
		if m <= 0 {
			return invalid("sweep.stop_multiples must be positive, got %v", c.Sweep.StopMultiples)
		}
	}
	for _, m := range c.Sweep.TargetMultiples {
		if m <= 0 {
			return invalid("sweep.target_multiples must be positive, got %v", c.Sweep.TargetMultiples)
		}
	}
	for _, r := range c.Sweep.RiskFractions {
		if r <= 0 || r > 1 {
			return invalid("sweep.risk_fractions must be in (0,1], got %v", c.Sweep.RiskFractions)
		}
	}
	return nil
}

// ValidateBacktest additionally requires a date range and a non-empty
// universe.
func (c *Config) ValidateBacktest() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Backtest.Start == "" || c.Backtest.End == "" {
		return invalid("backtest.start and backtest.end are required")
	}
	if len(c.Backtest.Symbols) == 0 && c.Backtest.SymbolsFile == "" {
		return invalid("backtest.symbols is empty and no symbols_file is set")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}
