package builtins

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"bibo/internal/domain"
	"bibo/internal/strategy"
)

func row(open, high, low, close, s, m, l float64) domain.IndicatorRow {
	return domain.IndicatorRow{
		Bar:       domain.Bar{Open: open, High: high, Low: low, Close: close},
		SMAShort:  s,
		SMAMedium: m,
		SMALong:   l,
		ATR:       1,
	}
}

// bounce returns a yesterday/today pair that satisfies every BIBO condition.
func bounce() (today, yesterday domain.IndicatorRow) {
	yesterday = row(101, 102, 98, 101.5, 100, 95, 90)
	today = row(101.6, 104, 101, 103, 100.2, 95.1, 90.1)
	return today, yesterday
}

func TestBIBOCheckAccepts(t *testing.T) {
	today, yesterday := bounce()
	assert.True(t, NewBIBO(false).Check(today, yesterday, nil))
}

func TestBIBOCheckEachCondition(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(today, yesterday *domain.IndicatorRow)
	}{
		{"stack short below medium", func(td, _ *domain.IndicatorRow) { td.SMAShort = 95 }},
		{"stack medium below long", func(td, _ *domain.IndicatorRow) { td.SMAMedium = 89 }},
		{"yesterday low above sma", func(_, y *domain.IndicatorRow) { y.Low = 100.5 }},
		{"yesterday close below sma", func(_, y *domain.IndicatorRow) { y.Close = 99.5 }},
		{"no follow-through", func(td, y *domain.IndicatorRow) { td.Close = y.Close }},
		{"bearish today", func(td, _ *domain.IndicatorRow) { td.Open = 103.5 }},
		{"undefined today", func(td, _ *domain.IndicatorRow) { td.ATR = math.NaN() }},
		{"undefined yesterday", func(_, y *domain.IndicatorRow) { y.SMALong = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			today, yesterday := bounce()
			tt.mutate(&today, &yesterday)
			assert.False(t, NewBIBO(false).Check(today, yesterday, nil))
		})
	}
}

func TestBIBOMarketFilter(t *testing.T) {
	today, yesterday := bounce()
	up := row(500, 505, 495, 502, 480, 470, 460)
	down := row(500, 505, 495, 450, 480, 470, 460)
	undefined := up
	undefined.SMALong = math.NaN()

	s := NewBIBO(true)
	assert.True(t, s.MarketFilter())
	assert.True(t, s.Check(today, yesterday, &up))
	assert.False(t, s.Check(today, yesterday, &down))
	assert.False(t, s.Check(today, yesterday, &undefined))
	assert.False(t, s.Check(today, yesterday, nil))

	// Without the filter the market row is ignored.
	assert.True(t, NewBIBO(false).Check(today, yesterday, &down))
}

func TestBIBOEvaluateUsesLastTwoRows(t *testing.T) {
	today, yesterday := bounce()
	filler := row(1, 1, 1, 1, 1, 1, 1)
	s := NewBIBO(false)

	assert.True(t, s.Evaluate([]domain.IndicatorRow{filler, yesterday, today}, nil))
	assert.False(t, s.Evaluate([]domain.IndicatorRow{today}, nil))
	assert.True(t, strategy.EvaluateAt(s, []domain.IndicatorRow{yesterday, today}, 1, nil))
}

func TestBIBOFlatNeverSignals(t *testing.T) {
	flat := row(100, 100, 100, 100, 100, 100, 100)
	assert.False(t, NewBIBO(false).Check(flat, flat, nil))
}

func TestMomentum(t *testing.T) {
	m := NewMomentum(false)
	rising := []domain.IndicatorRow{
		row(1, 1, 1, 10, 1, 1, 1),
		row(1, 1, 1, 11, 1, 1, 1),
		row(1, 1, 1, 12, 1, 1, 1),
	}
	assert.True(t, m.Evaluate(rising, nil))

	rising[1].Close = 12
	assert.False(t, m.Evaluate(rising, nil))
	assert.False(t, m.Evaluate(rising[:2], nil))
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry(true)
	assert.Equal(t, []string{"bibo", "fib", "momentum3"}, r.List())

	s, err := r.Lookup("bibo")
	assert.NoError(t, err)
	assert.Equal(t, 2, s.Lookback())
}

func TestUsesMarket(t *testing.T) {
	assert.True(t, strategy.UsesMarket(NewBIBO(true)))
	assert.False(t, strategy.UsesMarket(NewBIBO(false)))
	assert.True(t, strategy.UsesMarket(NewMomentum(true)))
	assert.True(t, strategy.UsesMarket(NewFib(true)))
	assert.False(t, strategy.UsesMarket(NewFib(false)))
}

// pullback returns 21 rows: a swing from 100 up to 120 followed by a
// pullback, with today a bullish bar closing at todayClose.
func pullback(todayClose float64) []domain.IndicatorRow {
	rows := make([]domain.IndicatorRow, 0, 21)
	for i := 0; i < 19; i++ {
		c := 101 + float64(i)
		rows = append(rows, row(c-1, c+0.5, c-1.5, c, 100, 95, 90))
	}
	rows[0].Low = 100
	rows[18].High = 120
	rows = append(rows, row(108, 108.5, 106.5, 107, 100, 95, 90)) // yesterday
	rows = append(rows, row(107.2, todayClose+0.5, 107, todayClose, 100, 95, 90))
	return rows
}

func TestSwing(t *testing.T) {
	high, low := Swing(pullback(109)[:20])
	assert.Equal(t, 120.0, high)
	assert.Equal(t, 100.0, low)
}

func TestFib(t *testing.T) {
	f := NewFib(false)
	assert.Equal(t, "fib", f.Name())
	assert.Equal(t, 21, f.Lookback())

	// Swing 100-120: the zone is [107.64, 110].
	assert.True(t, f.Evaluate(pullback(109), nil))
	assert.True(t, f.Evaluate(pullback(110), nil))
	assert.False(t, f.Evaluate(pullback(110.5), nil), "above the 50% level")
	assert.False(t, f.Evaluate(pullback(107.5), nil), "below the 61.8% level")

	bearish := pullback(109)
	bearish[20].Open = 109.5
	assert.False(t, f.Evaluate(bearish, nil))

	lower := pullback(109)
	lower[19].Close = 109.5
	assert.False(t, f.Evaluate(lower, nil))

	flat := make([]domain.IndicatorRow, 21)
	for i := range flat {
		flat[i] = row(100, 100, 100, 100, 100, 100, 100)
	}
	assert.False(t, f.Evaluate(flat, nil))

	rows := pullback(109)
	assert.True(t, strategy.EvaluateAt(f, rows, 20, nil))
	assert.False(t, strategy.EvaluateAt(f, rows[1:], 19, nil))

	filtered := NewFib(true)
	assert.False(t, filtered.Evaluate(rows, nil))
	up := row(100, 100, 100, 100, 100, 95, 90)
	up.Close, up.SMALong = 110, 100
	assert.True(t, filtered.Evaluate(rows, &up))
}
