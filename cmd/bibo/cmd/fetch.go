package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"bibo/internal/gather"
	"bibo/internal/gather/us"
	"bibo/internal/store"
)

var (
	fetchStart   string
	fetchEnd     string
	fetchSymbols string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download daily bars into the local Parquet cache",
	Long: `Download daily bars from Alpaca for the configured universe, the market
filter symbol and the benchmark, and merge them into the Parquet cache under
storage.data_dir. The download resumes where it stopped as long as the end
date is unchanged. The end date defaults to the latest settled session.`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchStart, "start", "", "first date, YYYY-MM-DD (default one year before backtest.start)")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "last date, YYYY-MM-DD (default latest finished trading day)")
	fetchCmd.Flags().StringVar(&fetchSymbols, "symbols", "", "comma-separated symbols overriding the configured universe")
}

func runFetch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	symbols, err := universe(cfg, fetchSymbols)
	if err != nil {
		return err
	}
	symbols = us.MergeSymbols(symbols, cfg.Live.Symbols...)
	symbols = us.MergeSymbols(symbols, cfg.Strategy.MarketSymbol, cfg.Backtest.Benchmark)

	var end time.Time
	if fetchEnd != "" {
		if end, err = parseDate(fetchEnd, ""); err != nil {
			return err
		}
	} else {
		cal, err := us.NewCalendar(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
		if err != nil {
			return fmt.Errorf("loading trading calendar: %w", err)
		}
		if end, err = cal.LatestFinishedTradingDay(time.Now()); err != nil {
			return err
		}
	}

	var start time.Time
	switch {
	case fetchStart != "":
		start, err = parseDate(fetchStart, "")
	case cfg.Backtest.Start != "":
		start, err = parseDate("", cfg.Backtest.Start)
		start = start.AddDate(-1, 0, 0)
	default:
		start = end.AddDate(-2, 0, 0)
	}
	if err != nil {
		return err
	}

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	provider := us.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed, cfg.Data.RateLimitPerMin)
	g := us.NewDailyBarGatherer(provider, bars, cfg.Storage.DataDir, symbols,
		gather.DateRange{Start: start, End: end},
		cfg.Data.MaxWorkers, cfg.Data.RetryAttempts, cfg.Data.RetryBaseDelay)

	slog.Info("fetching daily bars", "symbols", len(symbols), "start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"))
	return g.Run(ctx)
}
