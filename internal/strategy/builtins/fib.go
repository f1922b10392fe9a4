package builtins

import (
	"bibo/internal/domain"
	"bibo/internal/strategy"
)

var _ strategy.Strategy = (*Fib)(nil)

// Fibonacci retracement bounds of the entry zone, measured down from the
// swing high.
const (
	FibShallow = 0.5
	FibDeep    = 0.618
)

// Fib enters on a bullish bar that closes inside the 50-61.8% retracement
// of the recent swing range.
type Fib struct {
	swing        int
	marketFilter bool
}

// NewFib creates the retracement variant over a 20-bar swing.
func NewFib(marketFilter bool) *Fib {
	return &Fib{swing: 20, marketFilter: marketFilter}
}

// Name returns "fib".
func (f *Fib) Name() string {
	return "fib"
}

// Lookback is the swing window plus today.
func (f *Fib) Lookback() int {
	return f.swing + 1
}

// MarketFilter reports whether the broad-market condition is enforced.
func (f *Fib) MarketFilter() bool {
	return f.marketFilter
}

// Swing returns the highest high and lowest low of rows.
func Swing(rows []domain.IndicatorRow) (high, low float64) {
	for i, r := range rows {
		if i == 0 || r.High > high {
			high = r.High
		}
		if i == 0 || r.Low < low {
			low = r.Low
		}
	}
	return high, low
}

// Evaluate takes the swing over every row before today. Today must close
// within [high-0.618*range, high-0.5*range], above its open and above
// yesterday's close.
func (f *Fib) Evaluate(window []domain.IndicatorRow, market *domain.IndicatorRow) bool {
	n := len(window)
	if n < 2 {
		return false
	}
	if f.marketFilter && !strategy.MarketUp(market) {
		return false
	}
	high, low := Swing(window[:n-1])
	diff := high - low
	if diff <= 0 {
		return false
	}
	today, yesterday := window[n-1], window[n-2]
	inZone := today.Close >= high-FibDeep*diff && today.Close <= high-FibShallow*diff
	return inZone && today.Close > today.Open && today.Close > yesterday.Close
}
