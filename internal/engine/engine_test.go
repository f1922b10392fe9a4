package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibo/internal/broker"
	"bibo/internal/domain"
	"bibo/internal/gather"
	"bibo/internal/indicator"
	"bibo/internal/notify"
	"bibo/internal/store"
	"bibo/internal/util"
)

// always signals on every defined row, subject to the optional market filter.
type always struct{ filter bool }

func (a always) Name() string       { return "always" }
func (a always) Lookback() int      { return 1 }
func (a always) MarketFilter() bool { return a.filter }
func (a always) Evaluate(_ []domain.IndicatorRow, market *domain.IndicatorRow) bool {
	return !a.filter || (market != nil && market.Close > market.SMALong)
}

// flatBars returns business-day bars ending on end with open=close=price and
// a 2-point range, so ATR settles at 2.
func flatBars(end time.Time, n int, price float64) []domain.Bar {
	days := util.BusinessDays(end.AddDate(0, 0, -3*n), end)
	days = days[len(days)-n:]
	out := make([]domain.Bar, len(days))
	for i, d := range days {
		out[i] = domain.Bar{Timestamp: d, Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000}
	}
	return out
}

// trendBars moves the close by step each day.
func trendBars(end time.Time, n int, start, step float64) []domain.Bar {
	bars := flatBars(end, n, start)
	for i := range bars {
		c := start + step*float64(i)
		bars[i].Open, bars[i].Close = c, c
		bars[i].High, bars[i].Low = c+1, c-1
	}
	return bars
}

type fixture struct {
	engine   *Engine
	provider *gather.MemoryProvider
	broker   *broker.SimulatorBroker
	notes    *notify.Recorder
	orders   *store.SQLiteStore
	now      time.Time
}

var (
	ny, _  = time.LoadLocation("America/New_York")
	scanAt = time.Date(2024, 3, 4, 15, 55, 0, 0, ny)
	today  = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
)

func newFixture(t *testing.T, stopMultiple float64, filter bool) *fixture {
	t.Helper()
	cal, err := util.NewTradingCalendar("America/New_York")
	require.NoError(t, err)
	sizer, err := NewSizer(SizerConfig{RiskFraction: 0.01, StopMultiple: stopMultiple, TargetMultiple: 1})
	require.NoError(t, err)

	orders, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "bibo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { orders.Close() })

	p := gather.NewMemoryProvider()
	b := broker.NewSimulatorBroker(10000)
	rec := &notify.Recorder{}

	e, err := NewEngine(Config{
		Strategy:     always{filter: filter},
		Indicators:   indicator.Params{SMAShort: 2, SMAMedium: 3, SMALong: 4, ATR: 3},
		Sizer:        sizer,
		MarketSymbol: "SPY",
		LookbackDays: 60,
		Calendar:     cal,
		WindowStart:  util.ClockTime{Hour: 15, Minute: 50},
		WindowEnd:    util.ClockTime{Hour: 16},
	}, p, b, orders, rec)
	require.NoError(t, err)
	e.now = func() time.Time { return scanAt }

	return &fixture{engine: e, provider: p, broker: b, notes: rec, orders: orders, now: scanAt}
}

func TestNewEngineRequiresStrategyAndSizer(t *testing.T) {
	_, err := NewEngine(Config{Indicators: indicator.DefaultParams()}, nil, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestEvaluateSymbolToday(t *testing.T) {
	f := newFixture(t, 1, false)
	f.provider.Add("AAPL", flatBars(today, 20, 100))

	d, err := f.engine.EvaluateSymbolToday(context.Background(), "AAPL", today, 10000)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.NoError(t, d.Rejection)

	assert.Equal(t, "always", d.Signal.Strategy)
	assert.True(t, d.Signal.Date.Equal(today))
	assert.InDelta(t, 2, d.Signal.Row.ATR, 1e-9)
	assert.Equal(t, 100.0, d.Intent.LimitPrice)
	assert.InDelta(t, 98, d.Intent.StopLoss, 1e-9)
	assert.InDelta(t, 102, d.Intent.TakeProfit, 1e-9)
	assert.Equal(t, 50.0, d.Intent.Quantity)
	assert.Equal(t, "gtc", d.Intent.TimeInForce)
}

func TestEvaluateSymbolTodayMissingBar(t *testing.T) {
	f := newFixture(t, 1, false)
	f.provider.Add("AAPL", flatBars(today.AddDate(0, 0, -3), 20, 100))

	_, err := f.engine.EvaluateSymbolToday(context.Background(), "AAPL", today, 10000)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	_, err = f.engine.EvaluateSymbolToday(context.Background(), "NOPE", today, 10000)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestEvaluateSymbolTodayRejection(t *testing.T) {
	f := newFixture(t, 1, false)
	f.provider.Add("AAPL", flatBars(today, 20, 100))

	d, err := f.engine.EvaluateSymbolToday(context.Background(), "AAPL", today, 100)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.ErrorIs(t, d.Rejection, domain.ErrBelowMinimumSize)
}

type snapshotProvider struct {
	*gather.MemoryProvider
	bar domain.Bar
}

func (s snapshotProvider) DailyBarSnapshot(context.Context, string) (domain.Bar, error) {
	return s.bar, nil
}

func TestEvaluateAppendsSnapshot(t *testing.T) {
	f := newFixture(t, 1, false)
	f.provider.Add("AAPL", flatBars(today.AddDate(0, 0, -3), 20, 100))
	f.engine.provider = snapshotProvider{
		MemoryProvider: f.provider,
		bar:            domain.Bar{Symbol: "AAPL", Timestamp: scanAt, Open: 100, High: 101, Low: 99, Close: 100.5},
	}

	d, err := f.engine.EvaluateSymbolToday(context.Background(), "AAPL", today, 10000)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 100.5, d.Signal.Row.Close)
}

func TestScanSubmitsAndRecords(t *testing.T) {
	f := newFixture(t, 1, false)
	f.provider.Add("AAPL", flatBars(today, 20, 100))
	f.provider.Add("MSFT", flatBars(today, 20, 100))
	ctx := context.Background()

	rep, err := f.engine.Scan(ctx, []string{"AAPL", "MSFT", "GONE"}, false)
	require.NoError(t, err)

	assert.True(t, rep.MarketUp)
	assert.Equal(t, 3, rep.Evaluated)
	assert.Equal(t, 2, rep.Signals)
	require.Len(t, rep.Submitted, 2)
	assert.Contains(t, rep.Failed, "GONE")

	// MSFT is sized from the cash left after AAPL.
	assert.Equal(t, 50.0, rep.Submitted[0].Quantity)
	assert.Equal(t, 10000.0, rep.Submitted[0].Capital)
	assert.Equal(t, 25.0, rep.Submitted[1].Quantity)
	assert.Equal(t, 5000.0, rep.Submitted[1].Capital)

	saved, err := f.orders.ListOrders(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, saved, 2)

	msgs := f.notes.Messages()
	require.Len(t, msgs, 3)
	assert.True(t, strings.HasPrefix(msgs[0], "Cash: $10000.00"))
	assert.Contains(t, msgs[1], "Bought 50 AAPL")
}

func TestScanInsufficientCapital(t *testing.T) {
	f := newFixture(t, 0.25, false)
	f.provider.Add("AAPL", flatBars(today, 20, 100))

	rep, err := f.engine.Scan(context.Background(), []string{"AAPL"}, false)
	require.NoError(t, err)
	assert.Empty(t, rep.Submitted)
	assert.ErrorIs(t, rep.Rejected["AAPL"], domain.ErrInsufficientCapital)
}

func TestScanSkipsHeld(t *testing.T) {
	f := newFixture(t, 1, false)
	f.provider.Add("AAPL", flatBars(today, 20, 100))
	f.broker.Hold("AAPL", 10, 95)

	rep, err := f.engine.Scan(context.Background(), []string{"AAPL"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, rep.Held)
	assert.Zero(t, rep.Evaluated)
	assert.Contains(t, f.notes.Messages()[0], "AAPL: 10 @ $95.00")
}

func TestScanMarketFilter(t *testing.T) {
	f := newFixture(t, 1, true)
	f.provider.Add("AAPL", flatBars(today, 20, 100))
	f.provider.Add("SPY", trendBars(today, 20, 500, -2))

	rep, err := f.engine.Scan(context.Background(), []string{"AAPL"}, false)
	require.NoError(t, err)
	assert.False(t, rep.MarketUp)
	assert.Empty(t, rep.Submitted)
	assert.Contains(t, f.notes.Messages()[1], "no trades today")

	// Too little market history leaves the long SMA undefined.
	f.provider.Add("SPY", trendBars(today, 2, 500, 2))
	rep, err = f.engine.Scan(context.Background(), []string{"AAPL"}, false)
	require.NoError(t, err)
	assert.False(t, rep.MarketUp)
	assert.Empty(t, rep.Submitted)

	f.provider.Add("SPY", trendBars(today, 20, 500, 2))
	rep, err = f.engine.Scan(context.Background(), []string{"AAPL"}, false)
	require.NoError(t, err)
	assert.True(t, rep.MarketUp)
	assert.Len(t, rep.Submitted, 1)
}

func TestScanMarketUnavailable(t *testing.T) {
	f := newFixture(t, 1, true)
	f.provider.Add("AAPL", flatBars(today, 20, 100))

	_, err := f.engine.Scan(context.Background(), []string{"AAPL"}, false)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestScanOutsideWindow(t *testing.T) {
	f := newFixture(t, 1, false)
	f.provider.Add("AAPL", flatBars(today, 20, 100))
	f.engine.now = func() time.Time { return time.Date(2024, 3, 4, 10, 0, 0, 0, ny) }

	_, err := f.engine.Scan(context.Background(), []string{"AAPL"}, false)
	assert.True(t, errors.Is(err, ErrOutsideWindow))

	rep, err := f.engine.Scan(context.Background(), []string{"AAPL"}, true)
	require.NoError(t, err)
	assert.Len(t, rep.Submitted, 1)
}

func TestDigest(t *testing.T) {
	msg := Digest(&domain.AccountInfo{Cash: 1234.5, PortfolioValue: 2000}, nil)
	assert.Equal(t, "Cash: $1234.50\nPortfolio value: $2000.00\nNo open positions", msg)
}
