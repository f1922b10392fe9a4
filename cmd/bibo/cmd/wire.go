package cmd

import (
	"fmt"
	"strings"
	"time"

	"bibo/internal/broker"
	"bibo/internal/config"
	"bibo/internal/domain"
	"bibo/internal/engine"
	"bibo/internal/gather"
	"bibo/internal/gather/us"
	"bibo/internal/indicator"
	"bibo/internal/notify"
	"bibo/internal/store"
	"bibo/internal/strategy"
	"bibo/internal/strategy/builtins"
	"bibo/internal/util"
)

func indicatorParams(c *config.Config) (indicator.Params, error) {
	first, err := indicator.ParseFirstTrueRange(c.Strategy.FirstTrueRange)
	if err != nil {
		return indicator.Params{}, err
	}
	w := c.Strategy.SMAWindows
	if len(w) != 3 {
		return indicator.Params{}, fmt.Errorf("%w: strategy.sma_windows needs 3 values", domain.ErrInvalidConfig)
	}
	p := indicator.Params{SMAShort: w[0], SMAMedium: w[1], SMALong: w[2], ATR: c.Strategy.ATRWindow, FirstTR: first}
	return p, p.Validate()
}

func newSizer(c *config.Config) (*engine.Sizer, error) {
	policy, err := engine.ParseQuantityPolicy(c.Strategy.Quantity)
	if err != nil {
		return nil, err
	}
	return engine.NewSizer(engine.SizerConfig{
		RiskFraction:   c.Strategy.RiskFraction,
		StopMultiple:   c.Strategy.StopMultiple,
		TargetMultiple: c.Strategy.TargetMultiple,
		Policy:         policy,
		MinQuantity:    c.Strategy.MinQuantity,
	})
}

func newStrategy(c *config.Config) (strategy.Strategy, error) {
	return builtins.NewRegistry(c.Strategy.MarketFilter).Lookup(c.Strategy.Name)
}

func newProvider(c *config.Config) gather.Provider {
	bars := store.NewParquetStore(c.Storage.DataDir)
	if c.Data.Source == "parquet" {
		return gather.NewStoreProvider(bars)
	}
	var p gather.Provider = us.NewAlpacaProvider(c.Alpaca.APIKey, c.Alpaca.APISecret, c.Alpaca.DataURL, c.Alpaca.Feed, c.Data.RateLimitPerMin)
	if c.Data.Cache {
		p = gather.NewWriteThrough(p, bars)
	}
	return p
}

func openDB(c *config.Config) (*store.SQLiteStore, error) {
	db, err := store.NewSQLiteStore(c.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c.Storage.SQLitePath, err)
	}
	return db, nil
}

// universe is backtest.symbols merged with backtest.symbols_file, or the
// --symbols override when given.
func universe(c *config.Config, override string) ([]string, error) {
	if override != "" {
		return us.MergeSymbols(nil, strings.Split(override, ",")...), nil
	}
	symbols := us.MergeSymbols(nil, c.Backtest.Symbols...)
	if c.Backtest.SymbolsFile != "" {
		extra, err := us.LoadSymbolsFile(c.Backtest.SymbolsFile)
		if err != nil {
			return nil, err
		}
		symbols = us.MergeSymbols(symbols, extra...)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: empty symbol universe", domain.ErrInvalidConfig)
	}
	return symbols, nil
}

func parseDate(flagValue, configValue string) (time.Time, error) {
	v := flagValue
	if v == "" {
		v = configValue
	}
	t, err := time.Parse(domain.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", domain.ErrInvalidConfig, v, err)
	}
	return t, nil
}

func newBroker(c *config.Config, simulate bool) broker.Broker {
	if simulate {
		return broker.NewSimulatorBroker(c.Backtest.InitialCapital)
	}
	return broker.NewAlpacaBroker(c.Alpaca.APIKey, c.Alpaca.APISecret, c.Alpaca.BaseURL)
}

// newEngine wires the live engine. orders may be nil.
func newEngine(c *config.Config, b broker.Broker, orders store.OrderStore) (*engine.Engine, *util.TradingCalendar, error) {
	params, err := indicatorParams(c)
	if err != nil {
		return nil, nil, err
	}
	strat, err := newStrategy(c)
	if err != nil {
		return nil, nil, err
	}
	sizer, err := newSizer(c)
	if err != nil {
		return nil, nil, err
	}
	cal, err := util.NewTradingCalendar(c.Live.Timezone)
	if err != nil {
		return nil, nil, err
	}
	from, err := util.ParseClock(c.Live.WindowStart)
	if err != nil {
		return nil, nil, err
	}
	to, err := util.ParseClock(c.Live.WindowEnd)
	if err != nil {
		return nil, nil, err
	}

	e, err := engine.NewEngine(engine.Config{
		Strategy:     strat,
		Indicators:   params,
		Sizer:        sizer,
		MarketSymbol: c.Strategy.MarketSymbol,
		LookbackDays: c.Data.LookbackDays,
		TimeInForce:  c.Live.TimeInForce,
		Calendar:     cal,
		WindowStart:  from,
		WindowEnd:    to,
	}, newProvider(c), b, orders, notify.New(c.Notify.WebhookURL, c.Notify.Timeout))
	if err != nil {
		return nil, nil, err
	}
	return e, cal, nil
}
