package builtins

import (
	"bibo/internal/domain"
	"bibo/internal/strategy"
)

var _ strategy.Strategy = (*Momentum)(nil)

// Momentum enters after three consecutive higher closes.
type Momentum struct {
	marketFilter bool
}

// NewMomentum creates the 3-bar momentum variant.
func NewMomentum(marketFilter bool) *Momentum {
	return &Momentum{marketFilter: marketFilter}
}

// Name returns "momentum3".
func (m *Momentum) Name() string {
	return "momentum3"
}

// Lookback returns 3.
func (m *Momentum) Lookback() int {
	return 3
}

// MarketFilter reports whether the broad-market condition is enforced.
func (m *Momentum) MarketFilter() bool {
	return m.marketFilter
}

// Evaluate reports close > prev close > prev-prev close.
func (m *Momentum) Evaluate(window []domain.IndicatorRow, market *domain.IndicatorRow) bool {
	n := len(window)
	if n < 3 {
		return false
	}
	if m.marketFilter && !strategy.MarketUp(market) {
		return false
	}
	return window[n-1].Close > window[n-2].Close && window[n-2].Close > window[n-3].Close
}

// NewRegistry returns a registry holding every builtin strategy.
func NewRegistry(marketFilter bool) *strategy.Registry {
	r := strategy.NewRegistry()
	r.Register(NewBIBO(marketFilter))
	r.Register(NewMomentum(marketFilter))
	r.Register(NewFib(marketFilter))
	return r
}
