package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"bibo/internal/backtest"
	"bibo/internal/engine"
	"bibo/internal/store"
	"bibo/internal/strategy"
)

var (
	btStart   string
	btEnd     string
	btSymbols string
	btOut     string
	btNoSave  bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Simulate the strategy over historical daily bars",
	Long: `Load daily bars for the configured universe, replay them day by day and
write the trade log with its summary block to a CSV file. The run is also
recorded in the SQLite database unless --no-save is given.`,
	RunE: runBacktest,
}

func init() {
	rootCmd.AddCommand(backtestCmd)
	addRangeFlags(backtestCmd)
	backtestCmd.Flags().StringVarP(&btOut, "out", "o", "", "trade log path (default <results_dir>/trades_<strategy>_<start>_<end>.csv)")
	backtestCmd.Flags().BoolVar(&btNoSave, "no-save", false, "do not record the run in the database")
}

func addRangeFlags(c *cobra.Command) {
	c.Flags().StringVar(&btStart, "start", "", "first simulated date, YYYY-MM-DD (default backtest.start)")
	c.Flags().StringVar(&btEnd, "end", "", "last simulated date, YYYY-MM-DD (default backtest.end)")
	c.Flags().StringVar(&btSymbols, "symbols", "", "comma-separated symbols overriding the configured universe")
}

// prepare builds the base simulation options and loads the dataset they run
// over.
func prepare(ctx context.Context) (backtest.Options, *backtest.Dataset, error) {
	if btStart != "" {
		cfg.Backtest.Start = btStart
	}
	if btEnd != "" {
		cfg.Backtest.End = btEnd
	}
	if btSymbols != "" {
		cfg.Backtest.Symbols = strings.Split(btSymbols, ",")
	}
	if err := cfg.ValidateBacktest(); err != nil {
		return backtest.Options{}, nil, err
	}
	start, err := parseDate("", cfg.Backtest.Start)
	if err != nil {
		return backtest.Options{}, nil, err
	}
	end, err := parseDate("", cfg.Backtest.End)
	if err != nil {
		return backtest.Options{}, nil, err
	}
	symbols, err := universe(cfg, btSymbols)
	if err != nil {
		return backtest.Options{}, nil, err
	}

	params, err := indicatorParams(cfg)
	if err != nil {
		return backtest.Options{}, nil, err
	}
	strat, err := newStrategy(cfg)
	if err != nil {
		return backtest.Options{}, nil, err
	}
	sizer, err := newSizer(cfg)
	if err != nil {
		return backtest.Options{}, nil, err
	}
	held, err := engine.ParseBarsHeldMode(cfg.Backtest.BarsHeld)
	if err != nil {
		return backtest.Options{}, nil, err
	}

	opts := backtest.Options{
		Strategy:       strat,
		Sizer:          sizer,
		InitialCapital: cfg.Backtest.InitialCapital,
		Benchmark:      cfg.Backtest.Benchmark,
		BarsHeld:       held,
		Shuffle:        cfg.Backtest.Shuffle,
		Seed:           cfg.Backtest.Seed,
		CloseAtEnd:     cfg.Backtest.CloseAtEnd,
	}
	var extra []string
	if strategy.UsesMarket(strat) {
		opts.MarketSymbol = cfg.Strategy.MarketSymbol
		extra = append(extra, opts.MarketSymbol)
	}
	if opts.Benchmark != "" {
		extra = append(extra, opts.Benchmark)
	}

	loader := backtest.NewLoader(newProvider(cfg), params, backtest.LoaderOptions{
		MaxWorkers:     cfg.Data.MaxWorkers,
		RetryAttempts:  cfg.Data.RetryAttempts,
		RetryBaseDelay: cfg.Data.RetryBaseDelay,
	})
	ds, err := loader.Load(ctx, symbols, extra, start, end)
	if err != nil {
		return backtest.Options{}, nil, err
	}
	if failed := ds.FailedSymbols(); len(failed) > 0 {
		slog.Warn("symbols without data", "count", len(failed), "symbols", failed)
	}
	return opts, ds, nil
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	opts, ds, err := prepare(ctx)
	if err != nil {
		return err
	}
	bt, err := backtest.New(opts)
	if err != nil {
		return err
	}
	res, err := bt.Run(ctx, ds)
	if err != nil {
		return err
	}

	path := btOut
	if path == "" {
		path = filepath.Join(cfg.Storage.ResultsDir, fmt.Sprintf("trades_%s_%s_%s.csv",
			res.Params.Strategy, ds.Start.Format("20060102"), ds.End.Format("20060102")))
	}
	if err := writeFile(path, func(f *os.File) error {
		return store.WriteTradeLog(f, res.Trades, res.Summary)
	}); err != nil {
		return err
	}

	s := res.Summary
	slog.Info("backtest complete",
		"trades", s.NumTrades,
		"win_rate", s.WinRate,
		"pnl", s.TotalPnL,
		"pct_change", s.PctChange,
		"max_drawdown_pct", s.MaxDrawdownPct,
		"open", len(res.Open),
		"log", path,
	)

	if btNoSave {
		return nil
	}
	return saveRuns(ctx, res)
}

func writeFile(path string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func saveRuns(ctx context.Context, results ...*backtest.Result) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	for _, res := range results {
		run := backtest.NewRun(res)
		if err := db.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		slog.Info("run saved", "id", run.ID)
	}
	return nil
}
