// Package builtins provides the strategy implementations that ship with
// bibo.
package builtins

import (
	"bibo/internal/domain"
	"bibo/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*BIBO)(nil)

// BIBO enters on a bounce off the short SMA inside an established uptrend
// stack. It needs today and yesterday.
type BIBO struct {
	marketFilter bool
}

// NewBIBO creates a BIBO strategy. With marketFilter set, entries also
// require the broad-market close to be above its long SMA.
func NewBIBO(marketFilter bool) *BIBO {
	return &BIBO{marketFilter: marketFilter}
}

// Name returns "bibo".
func (b *BIBO) Name() string {
	return "bibo"
}

// Lookback returns 2.
func (b *BIBO) Lookback() int {
	return 2
}

// MarketFilter reports whether the broad-market condition is enforced.
func (b *BIBO) MarketFilter() bool {
	return b.marketFilter
}

// Evaluate applies Check to the last two rows of window.
func (b *BIBO) Evaluate(window []domain.IndicatorRow, market *domain.IndicatorRow) bool {
	if len(window) < 2 {
		return false
	}
	return b.Check(window[len(window)-1], window[len(window)-2], market)
}

// Check is the BIBO predicate:
//
//	today.SMAShort > today.SMAMedium > today.SMALong
//	yesterday.Low < yesterday.SMAShort < yesterday.Close
//	today.Close > yesterday.Close
//	today.Close > today.Open
//
// plus market.Close > market.SMALong when the market filter is on. A missing
// or undefined market row fails the filter.
func (b *BIBO) Check(today, yesterday domain.IndicatorRow, market *domain.IndicatorRow) bool {
	if !today.Defined() || !yesterday.Defined() {
		return false
	}
	if b.marketFilter && !strategy.MarketUp(market) {
		return false
	}
	return today.SMAShort > today.SMAMedium &&
		today.SMAMedium > today.SMALong &&
		yesterday.Low < yesterday.SMAShort &&
		yesterday.SMAShort < yesterday.Close &&
		today.Close > yesterday.Close &&
		today.Close > today.Open
}
