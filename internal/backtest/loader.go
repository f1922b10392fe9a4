package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bibo/internal/domain"
	"bibo/internal/gather"
	"bibo/internal/indicator"
	"bibo/internal/util"
)

// Dataset is the indicator series of every symbol a simulation reads,
// loaded once and shared read-only by any number of runs.
type Dataset struct {
	Start time.Time
	End   time.Time

	// Symbols is the trading universe in configured order. Symbols that
	// failed to load stay listed so their days count as skipped.
	Symbols []string
	Series  map[string][]domain.IndicatorRow
	Failed  map[string]error
}

// Rows returns the series of symbol, or nil.
func (d *Dataset) Rows(symbol string) []domain.IndicatorRow {
	return d.Series[symbol]
}

// Row returns symbol's row dated day and its index.
func (d *Dataset) Row(symbol string, day time.Time) (domain.IndicatorRow, int, bool) {
	rows := d.Series[symbol]
	i := indicator.IndexOf(rows, day)
	if i < 0 {
		return domain.IndicatorRow{}, -1, false
	}
	return rows[i], i, true
}

// NewDataset computes indicators for in-memory series. It is the offline
// counterpart of Loader.Load.
func NewDataset(start, end time.Time, symbols []string, bars map[string][]domain.Bar, p indicator.Params) *Dataset {
	ds := &Dataset{
		Start:   domain.TradingDate(start),
		End:     domain.TradingDate(end),
		Symbols: append([]string(nil), symbols...),
		Series:  make(map[string][]domain.IndicatorRow, len(bars)),
		Failed:  make(map[string]error),
	}
	for sym, b := range bars {
		ds.Series[sym] = indicator.Compute(gather.Normalize(sym, b), p)
	}
	for _, sym := range symbols {
		if _, ok := ds.Series[sym]; !ok {
			ds.Failed[sym] = fmt.Errorf("%s: %w", sym, domain.ErrDataUnavailable)
		}
	}
	return ds
}

// LoaderOptions tunes fetching.
type LoaderOptions struct {
	MaxWorkers     int
	RetryAttempts  int
	RetryBaseDelay time.Duration
	// WarmupDays is how many calendar days before Start to fetch. Zero
	// derives it from the indicator windows.
	WarmupDays int
}

// Loader fetches bars for many symbols concurrently and computes their
// indicators.
type Loader struct {
	provider gather.Provider
	params   indicator.Params
	opts     LoaderOptions
	log      *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(p gather.Provider, params indicator.Params, opts LoaderOptions) *Loader {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 8
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.WarmupDays <= 0 {
		// trading bars to calendar days, plus holidays
		opts.WarmupDays = params.Warmup()*7/5 + 15
	}
	return &Loader{
		provider: p,
		params:   params,
		opts:     opts,
		log:      slog.Default().With("component", "loader"),
	}
}

// Load fetches symbols plus any extra series (market filter, benchmark)
// over [start-warmup, end]. A symbol that cannot be loaded after retries is
// recorded in Dataset.Failed and does not fail the load; only context
// cancellation does.
func (l *Loader) Load(ctx context.Context, symbols []string, extra []string, start, end time.Time) (*Dataset, error) {
	start, end = domain.TradingDate(start), domain.TradingDate(end)
	from := start.AddDate(0, 0, -l.opts.WarmupDays)

	all := append([]string(nil), symbols...)
	seen := make(map[string]bool, len(all))
	for _, s := range all {
		seen[s] = true
	}
	for _, s := range extra {
		if s != "" && !seen[s] {
			seen[s] = true
			all = append(all, s)
		}
	}

	ds := &Dataset{
		Start:   start,
		End:     end,
		Symbols: append([]string(nil), symbols...),
		Series:  make(map[string][]domain.IndicatorRow, len(all)),
		Failed:  make(map[string]error),
	}

	var mu sync.Mutex
	sem := make(chan struct{}, l.opts.MaxWorkers)
	g, gctx := errgroup.WithContext(ctx)

	for _, sym := range all {
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			var bars []domain.Bar
			err := util.Retry(gctx, l.opts.RetryAttempts, l.opts.RetryBaseDelay, func() error {
				var ferr error
				bars, ferr = l.provider.DailyBars(gctx, sym, from, end)
				if errors.Is(ferr, domain.ErrDataUnavailable) {
					return util.Permanent(ferr)
				}
				return ferr
			})
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err == nil && len(bars) == 0 {
				err = fmt.Errorf("%s: empty series: %w", sym, domain.ErrDataUnavailable)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				l.log.Warn("skipping symbol", "symbol", sym, "err", err)
				ds.Failed[sym] = err
				return nil
			}
			ds.Series[sym] = indicator.Compute(bars, l.params)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.log.Info("load complete", "symbols", len(all), "loaded", len(ds.Series), "failed", len(ds.Failed))
	return ds, nil
}

// FailedSymbols returns the symbols that failed to load, sorted.
func (d *Dataset) FailedSymbols() []string {
	out := make([]string, 0, len(d.Failed))
	for s := range d.Failed {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
