// Package backtest replays daily bars through the entry strategy, sizer,
// capital ledger and position book to produce a trade log and performance
// summary.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"bibo/internal/domain"
	"bibo/internal/engine"
	"bibo/internal/indicator"
	"bibo/internal/strategy"
	"bibo/internal/util"
)

// Options configures one simulation.
type Options struct {
	Strategy       strategy.Strategy
	Sizer          *engine.Sizer
	InitialCapital float64
	MarketSymbol   string
	Benchmark      string
	BarsHeld       engine.BarsHeldMode

	// Shuffle randomises the symbol scan order on every date. Seed makes
	// the order reproducible; zero seeds from the clock.
	Shuffle bool
	Seed    int64

	// CloseAtEnd exits positions still open after the last date at that
	// symbol's last close.
	CloseAtEnd bool
}

// Result is the output of one simulation.
type Result struct {
	Params  domain.RunParams
	Trades  []domain.TradeRecord
	Equity  []domain.EquityPoint
	Open    []domain.Position
	Summary domain.Summary
}

// Backtester runs simulations over a Dataset. It holds no per-run state and
// may run concurrently.
type Backtester struct {
	opts Options
	log  *slog.Logger
}

// New validates opts and returns a Backtester.
func New(opts Options) (*Backtester, error) {
	if opts.Strategy == nil || opts.Sizer == nil {
		return nil, fmt.Errorf("%w: backtest needs a strategy and a sizer", domain.ErrInvalidConfig)
	}
	if opts.InitialCapital <= 0 {
		return nil, fmt.Errorf("%w: initial capital must be positive", domain.ErrInvalidConfig)
	}
	return &Backtester{
		opts: opts,
		log:  slog.Default().With("component", "backtest", "strategy", opts.Strategy.Name()),
	}, nil
}

// Options returns the simulation options.
func (b *Backtester) Options() Options {
	return b.opts
}

type candidate struct {
	symbol string
	index  int
	row    domain.IndicatorRow
}

// run is the mutable state of one simulation. Only the driver loop touches
// it.
type run struct {
	ds       *Dataset
	ledger   *engine.Ledger
	book     *engine.Book
	trades   []domain.TradeRecord
	equity   []domain.EquityPoint
	peak     float64
	maxDD    float64
	signals  int
	taken    int
	rejected domain.Rejections
	skipped  int
}

// Run simulates every business day of ds in order. On each date open
// positions are resolved against that date's bar first; then every symbol
// without a position is evaluated, all signals are collected, and they are
// applied to the ledger one at a time in scan order.
func (b *Backtester) Run(ctx context.Context, ds *Dataset) (*Result, error) {
	sizer := b.opts.Sizer.Config()
	r := &run{
		ds:     ds,
		ledger: engine.NewLedger(b.opts.InitialCapital),
		book:   engine.NewBook(b.opts.BarsHeld),
		peak:   b.opts.InitialCapital,
	}

	order := append([]string(nil), ds.Symbols...)
	var rng *rand.Rand
	if b.opts.Shuffle {
		seed := b.opts.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}
	useMarket := strategy.UsesMarket(b.opts.Strategy)

	for _, day := range util.BusinessDays(ds.Start, ds.End) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.tradingDay(day) {
			continue
		}

		r.resolve(day)

		var market *domain.IndicatorRow
		if useMarket {
			if row, _, ok := ds.Row(b.opts.MarketSymbol, day); ok {
				market = &row
			}
		}
		if rng != nil {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		for _, c := range r.collect(b.opts.Strategy, order, day, market) {
			b.apply(r, c, day)
		}
		r.sample(day)
	}

	if b.opts.CloseAtEnd {
		r.expire()
	}

	res := &Result{
		Params: domain.RunParams{
			Strategy:       b.opts.Strategy.Name(),
			Start:          ds.Start,
			End:            ds.End,
			Symbols:        ds.Symbols,
			StopMultiple:   sizer.StopMultiple,
			TargetMultiple: sizer.TargetMultiple,
			RiskFraction:   sizer.RiskFraction,
		},
		Trades: r.trades,
		Equity: r.equity,
	}
	for _, sym := range r.book.Symbols() {
		p, _ := r.book.Get(sym)
		res.Open = append(res.Open, p)
	}

	res.Summary = Summarize(r.trades, b.opts.InitialCapital, r.ledger.Total())
	res.Summary.MaxDrawdownPct = r.maxDD
	res.Summary.SignalsTotal = r.signals
	res.Summary.SignalsTaken = r.taken
	if r.signals > 0 {
		res.Summary.SignalsTakenPct = float64(r.taken) / float64(r.signals) * 100
	}
	res.Summary.Rejections = r.rejected
	res.Summary.SkippedSymbolDays = r.skipped

	if b.opts.Benchmark != "" {
		if bm, err := Benchmark(b.opts.Benchmark, ds.Rows(b.opts.Benchmark), ds.Start, ds.End, b.opts.InitialCapital); err != nil {
			b.log.Warn("benchmark unavailable", "symbol", b.opts.Benchmark, "err", err)
		} else {
			res.Summary.Benchmark = bm
			res.Summary.Alpha = res.Summary.PctChange - bm.PctChange
		}
	}

	b.log.Info("backtest complete",
		"trades", res.Summary.NumTrades,
		"pnl", math.Round(res.Summary.TotalPnL*100)/100,
		"signals", r.signals,
		"taken", r.taken,
		"skipped_symbol_days", r.skipped)
	return res, nil
}

// tradingDay reports whether any loaded series has a bar on day. Dates with
// no bars at all are exchange holidays, not data errors.
func (r *run) tradingDay(day time.Time) bool {
	for _, rows := range r.ds.Series {
		if indicator.IndexOf(rows, day) >= 0 {
			return true
		}
	}
	return false
}

// resolve closes positions whose stop or target is crossed by day's bar. A
// position with no bar on day stays open.
func (r *run) resolve(day time.Time) {
	for _, sym := range r.book.Symbols() {
		row, i, ok := r.ds.Row(sym, day)
		if !ok {
			continue
		}
		p, _ := r.book.Get(sym)
		status, price, closed := engine.Resolve(p, row.Bar)
		if !closed {
			continue
		}
		r.close(sym, day, i, price, status)
	}
}

func (r *run) close(sym string, day time.Time, i int, price float64, status domain.PositionStatus) {
	p, _ := r.book.Get(sym)
	tr, err := r.book.Close(sym, day, i, price, status)
	if err != nil {
		return
	}
	r.ledger.Release(p.Cost(), tr.PnL)
	r.trades = append(r.trades, tr)
}

// collect evaluates every symbol without an open position. Symbols with no
// bar on day are counted as skipped.
func (r *run) collect(s strategy.Strategy, order []string, day time.Time, market *domain.IndicatorRow) []candidate {
	var out []candidate
	for _, sym := range order {
		if r.book.Has(sym) {
			continue
		}
		if _, failed := r.ds.Failed[sym]; failed {
			r.skipped++
			continue
		}
		rows := r.ds.Rows(sym)
		i := indicator.IndexOf(rows, day)
		if i < 0 {
			r.skipped++
			continue
		}
		if !strategy.EvaluateAt(s, rows, i, market) {
			continue
		}
		r.signals++
		out = append(out, candidate{symbol: sym, index: i, row: rows[i]})
	}
	return out
}

// apply sizes a signal against realised capital and commits it if the cost
// fits in available capital.
func (b *Backtester) apply(r *run, c candidate, day time.Time) {
	intent, err := b.opts.Sizer.Size(r.ledger.Total(), c.row)
	if err == nil {
		err = r.ledger.Reserve(intent.Quantity * intent.LimitPrice)
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientCapital):
			r.rejected.InsufficientCapital++
		case errors.Is(err, domain.ErrBelowMinimumSize):
			r.rejected.BelowMinimumSize++
		default:
			r.rejected.InvalidRiskGeometry++
		}
		b.log.Debug("signal rejected", "symbol", c.symbol, "date", day.Format(domain.DateLayout), "reason", err)
		return
	}

	p := domain.Position{
		Symbol:     c.symbol,
		EntryDate:  day,
		EntryIndex: c.index,
		EntryPrice: intent.LimitPrice,
		StopLoss:   intent.StopLoss,
		TakeProfit: intent.TakeProfit,
		Quantity:   intent.Quantity,
	}
	if err := r.book.Open(p); err != nil {
		r.ledger.Release(p.Cost(), 0)
		return
	}
	r.taken++
}

// sample appends the day's equity point and updates the running drawdown of
// realised capital.
func (r *run) sample(day time.Time) {
	total := r.ledger.Total()
	marked := r.ledger.Available()
	for _, sym := range r.book.Symbols() {
		p, _ := r.book.Get(sym)
		px := p.EntryPrice
		if rows := r.ds.Rows(sym); len(rows) > 0 {
			if i := lastOnOrBefore(rows, day); i >= 0 {
				px = rows[i].Close
			}
		}
		marked += p.Quantity * px
	}

	if total > r.peak {
		r.peak = total
	}
	dd := 0.0
	if r.peak > 0 {
		dd = (r.peak - total) / r.peak * 100
	}
	r.maxDD = math.Max(r.maxDD, dd)

	r.equity = append(r.equity, domain.EquityPoint{
		Date:             day,
		TotalCapital:     total,
		AvailableCapital: r.ledger.Available(),
		MarkedEquity:     marked,
		DrawdownPct:      dd,
	})
}

// expire closes every open position at its symbol's last close on or before
// the end date and refreshes the last equity point.
func (r *run) expire() {
	for _, sym := range r.book.Symbols() {
		rows := r.ds.Rows(sym)
		i := lastOnOrBefore(rows, r.ds.End)
		if i < 0 {
			continue
		}
		r.close(sym, rows[i].Timestamp, i, rows[i].Close, domain.StatusClosedExpired)
	}
	if n := len(r.equity); n > 0 {
		last := r.equity[n-1]
		r.equity = r.equity[:n-1]
		r.sample(last.Date)
	}
}

func lastOnOrBefore(rows []domain.IndicatorRow, day time.Time) int {
	lo, hi := 0, len(rows)
	for lo < hi {
		mid := (lo + hi) / 2
		if rows[mid].Timestamp.After(day) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo - 1
}
