package backtest

import (
	"fmt"
	"math"
	"time"

	"bibo/internal/domain"
)

// Benchmark buys as many whole shares of symbol as initial capital affords
// at the first close in [start, end] and holds them to the last close.
// PctChange is relative to initial capital, so uninvested cash counts as
// flat.
func Benchmark(symbol string, rows []domain.IndicatorRow, start, end time.Time, initial float64) (*domain.BenchmarkResult, error) {
	start, end = domain.TradingDate(start), domain.TradingDate(end)
	var closes []float64
	for _, r := range rows {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		closes = append(closes, r.Close)
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("%s: no benchmark bars in range: %w", symbol, domain.ErrDataUnavailable)
	}

	first, last := closes[0], closes[len(closes)-1]
	shares := math.Floor(initial / first)
	if shares < 1 {
		return nil, fmt.Errorf("%s: %w: %.2f buys no shares at %.2f", symbol, domain.ErrBelowMinimumSize, initial, first)
	}

	return &domain.BenchmarkResult{
		Symbol:         symbol,
		Shares:         shares,
		StartPrice:     first,
		EndPrice:       last,
		PctChange:      shares * (last - first) / initial * 100,
		MaxDrawdownPct: MaxDrawdown(closes),
	}, nil
}
