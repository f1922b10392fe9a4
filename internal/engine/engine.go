// Package engine holds the trading decision core shared by the backtester
// and the live scanner: sizing, the capital ledger, the position book, and
// the live Engine that turns today's bars into bracket orders.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"bibo/internal/broker"
	"bibo/internal/domain"
	"bibo/internal/gather"
	"bibo/internal/indicator"
	"bibo/internal/notify"
	"bibo/internal/store"
	"bibo/internal/strategy"
	"bibo/internal/util"
)

// ErrOutsideWindow is returned by Scan when called outside the trading
// window without force.
var ErrOutsideWindow = errors.New("outside trading window")

// Config wires the decision parameters of a live Engine.
type Config struct {
	Strategy     strategy.Strategy
	Indicators   indicator.Params
	Sizer        *Sizer
	MarketSymbol string
	LookbackDays int
	TimeInForce  string

	Calendar    *util.TradingCalendar
	WindowStart util.ClockTime
	WindowEnd   util.ClockTime
}

// Decision is the outcome of evaluating one symbol for one date. Intent is
// set only when Rejection is nil.
type Decision struct {
	Signal    domain.Signal
	Intent    domain.OrderIntent
	Rejection error
}

// ScanReport summarises one live scan.
type ScanReport struct {
	AsOf      time.Time
	MarketUp  bool
	Evaluated int
	Signals   int
	Held      []string
	Submitted []domain.Order
	Rejected  map[string]error
	Failed    map[string]error
}

// Engine evaluates symbols on the latest bar and routes accepted signals to
// a broker as bracket orders.
type Engine struct {
	cfg      Config
	provider gather.Provider
	broker   broker.Broker
	orders   store.OrderStore
	notifier notify.Notifier
	log      *slog.Logger
	now      func() time.Time
}

// NewEngine creates a new Engine wired with the given dependencies. orders
// and n may be nil.
func NewEngine(cfg Config, p gather.Provider, b broker.Broker, orders store.OrderStore, n notify.Notifier) (*Engine, error) {
	if cfg.Strategy == nil || cfg.Sizer == nil {
		return nil, fmt.Errorf("%w: engine needs a strategy and a sizer", domain.ErrInvalidConfig)
	}
	if err := cfg.Indicators.Validate(); err != nil {
		return nil, err
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 250
	}
	if cfg.TimeInForce == "" {
		cfg.TimeInForce = "gtc"
	}
	if n == nil {
		n = notify.Nop{}
	}
	return &Engine{
		cfg:      cfg,
		provider: p,
		broker:   b,
		orders:   orders,
		notifier: n,
		log:      slog.Default().With("component", "engine"),
		now:      time.Now,
	}, nil
}

func (e *Engine) tradingDate(t time.Time) time.Time {
	if e.cfg.Calendar != nil {
		return e.cfg.Calendar.TradingDate(t)
	}
	return domain.TradingDate(t)
}

// series loads a symbol's history up to asOf and computes indicators. When
// asOf is today and the provider supports snapshots, today's partial bar is
// appended.
func (e *Engine) series(ctx context.Context, symbol string, asOf time.Time) ([]domain.IndicatorRow, error) {
	start := asOf.AddDate(0, 0, -e.cfg.LookbackDays)
	bars, err := e.provider.DailyBars(ctx, symbol, start, asOf)
	if err != nil && !errors.Is(err, domain.ErrDataUnavailable) {
		return nil, err
	}

	if sp, ok := e.provider.(gather.SnapshotProvider); ok && asOf.Equal(e.tradingDate(e.now())) {
		today, serr := sp.DailyBarSnapshot(ctx, symbol)
		switch {
		case serr != nil:
			e.log.Debug("no snapshot", "symbol", symbol, "err", serr)
		case domain.TradingDate(today.Timestamp).Equal(asOf):
			bars = gather.AppendPartial(bars, today)
		}
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: no bars up to %s: %w", symbol, asOf.Format(domain.DateLayout), domain.ErrDataUnavailable)
	}
	return indicator.Compute(bars, e.cfg.Indicators), nil
}

// MarketRow returns the market symbol's indicator row dated asOf, or nil when
// the strategy does not use the market filter.
func (e *Engine) MarketRow(ctx context.Context, asOf time.Time) (*domain.IndicatorRow, error) {
	if !strategy.UsesMarket(e.cfg.Strategy) {
		return nil, nil
	}
	asOf = domain.TradingDate(asOf)
	rows, err := e.series(ctx, e.cfg.MarketSymbol, asOf)
	if err != nil {
		return nil, fmt.Errorf("loading market %s: %w", e.cfg.MarketSymbol, err)
	}
	i := indicator.IndexOf(rows, asOf)
	if i < 0 {
		return nil, fmt.Errorf("market %s has no bar on %s: %w", e.cfg.MarketSymbol, asOf.Format(domain.DateLayout), domain.ErrDataUnavailable)
	}
	r := rows[i]
	return &r, nil
}

// EvaluateSymbolToday evaluates symbol on its bar dated asOf and, on a
// signal, sizes a bracket against capital. A nil Decision means no signal.
// Sizing failures are reported in Decision.Rejection; the error return is
// for data failures.
func (e *Engine) EvaluateSymbolToday(ctx context.Context, symbol string, asOf time.Time, capital float64) (*Decision, error) {
	market, err := e.MarketRow(ctx, asOf)
	if err != nil {
		return nil, err
	}
	return e.evaluate(ctx, symbol, domain.TradingDate(asOf), capital, market)
}

func (e *Engine) evaluate(ctx context.Context, symbol string, asOf time.Time, capital float64, market *domain.IndicatorRow) (*Decision, error) {
	rows, err := e.series(ctx, symbol, asOf)
	if err != nil {
		return nil, err
	}
	i := indicator.IndexOf(rows, asOf)
	if i < 0 {
		return nil, fmt.Errorf("%s: no bar on %s: %w", symbol, asOf.Format(domain.DateLayout), domain.ErrDataUnavailable)
	}
	if !strategy.EvaluateAt(e.cfg.Strategy, rows, i, market) {
		return nil, nil
	}

	d := &Decision{Signal: domain.Signal{
		Symbol:   symbol,
		Strategy: e.cfg.Strategy.Name(),
		Date:     asOf,
		Row:      rows[i],
	}}
	intent, err := e.cfg.Sizer.Size(capital, rows[i])
	if err != nil {
		d.Rejection = err
		return d, nil
	}
	intent.TimeInForce = e.cfg.TimeInForce
	d.Intent = intent
	return d, nil
}

// Digest formats the account snapshot sent before each scan.
func Digest(acct *domain.AccountInfo, holdings []domain.Holding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Cash: $%.2f\nPortfolio value: $%.2f\n", acct.Cash, acct.PortfolioValue)
	if len(holdings) == 0 {
		sb.WriteString("No open positions")
		return sb.String()
	}
	sorted := append([]domain.Holding(nil), holdings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })
	sb.WriteString("Positions:")
	for _, h := range sorted {
		fmt.Fprintf(&sb, "\n  %s: %g @ $%.2f", h.Symbol, h.Qty, h.AvgEntryPrice)
	}
	return sb.String()
}

// Scan evaluates symbols on today's bar and submits a bracket order for
// every accepted signal. Symbols already held at the broker are skipped.
// Orders are sized from account cash, which is reduced by each submission.
// Per-symbol failures are recorded in the report and do not stop the scan.
func (e *Engine) Scan(ctx context.Context, symbols []string, force bool) (*ScanReport, error) {
	now := e.now()
	if !force && e.cfg.Calendar != nil && !e.cfg.Calendar.InWindow(now, e.cfg.WindowStart, e.cfg.WindowEnd) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideWindow, now.Format(time.RFC3339))
	}
	asOf := e.tradingDate(now)
	rep := &ScanReport{
		AsOf:     asOf,
		Rejected: make(map[string]error),
		Failed:   make(map[string]error),
	}

	acct, err := e.broker.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading account: %w", err)
	}
	holdings, err := e.broker.GetHoldings(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading holdings: %w", err)
	}
	notify.Send(ctx, e.notifier, e.log, Digest(acct, holdings))

	held := make(map[string]bool, len(holdings))
	for _, h := range holdings {
		held[h.Symbol] = true
	}

	market, err := e.MarketRow(ctx, asOf)
	if err != nil {
		notify.Send(ctx, e.notifier, e.log, fmt.Sprintf("Market filter unavailable, no trades today: %v", err))
		return nil, err
	}
	rep.MarketUp = market == nil || strategy.MarketUp(market)
	if !rep.MarketUp {
		msg := fmt.Sprintf("%s closed %.2f below its long SMA %.2f, no trades today", e.cfg.MarketSymbol, market.Close, market.SMALong)
		e.log.Info("market filter failed", "market", e.cfg.MarketSymbol, "close", market.Close, "sma", market.SMALong)
		notify.Send(ctx, e.notifier, e.log, msg)
		return rep, nil
	}

	cash := acct.Cash
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if held[symbol] {
			rep.Held = append(rep.Held, symbol)
			continue
		}
		rep.Evaluated++

		d, err := e.evaluate(ctx, symbol, asOf, cash, market)
		if err != nil {
			e.log.Warn("evaluation failed", "symbol", symbol, "err", err)
			rep.Failed[symbol] = err
			continue
		}
		if d == nil {
			continue
		}
		rep.Signals++
		if d.Rejection != nil {
			e.log.Info("signal rejected", "symbol", symbol, "reason", d.Rejection)
			rep.Rejected[symbol] = d.Rejection
			continue
		}

		cost := d.Intent.Quantity * d.Intent.LimitPrice
		if cost > cash {
			err := fmt.Errorf("%s: %w: need %.2f, have %.2f", symbol, domain.ErrInsufficientCapital, cost, cash)
			e.log.Info("signal rejected", "symbol", symbol, "reason", err)
			rep.Rejected[symbol] = err
			continue
		}

		order, err := e.broker.SubmitBracket(ctx, d.Intent)
		if err != nil {
			e.log.Error("order submission failed", "symbol", symbol, "err", err)
			rep.Failed[symbol] = err
			notify.Send(ctx, e.notifier, e.log, fmt.Sprintf("Order for %s failed: %v", symbol, err))
			continue
		}
		order.Capital = cash
		if e.orders != nil {
			if err := e.orders.SaveOrder(ctx, order); err != nil {
				e.log.Warn("recording order failed", "symbol", symbol, "err", err)
			}
		}
		cash -= cost
		rep.Submitted = append(rep.Submitted, *order)

		e.log.Info("order submitted", "symbol", symbol, "qty", order.Quantity,
			"limit", order.LimitPrice, "stop", order.StopLoss, "target", order.TakeProfit)
		notify.Send(ctx, e.notifier, e.log, fmt.Sprintf(
			"Bought %g %s @ %.2f, stop %.2f, target %.2f, risk $%.2f",
			order.Quantity, symbol, order.LimitPrice, order.StopLoss, order.TakeProfit, order.Risk()))
	}
	return rep, nil
}
