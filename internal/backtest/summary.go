package backtest

import (
	"bibo/internal/domain"
)

// Summarize aggregates a trade log. Drawdown, signal counters and the
// benchmark are filled in by the caller that owns the capital curve.
func Summarize(trades []domain.TradeRecord, initial, final float64) domain.Summary {
	s := domain.Summary{
		NumTrades:      len(trades),
		InitialCapital: initial,
		FinalCapital:   final,
	}
	held := 0
	for _, t := range trades {
		s.TotalPnL += t.PnL
		if t.PnL > 0 {
			s.Wins++
		}
		held += t.BarsHeld
	}
	if s.NumTrades > 0 {
		n := float64(s.NumTrades)
		s.WinRate = float64(s.Wins) / n * 100
		s.AvgPnL = s.TotalPnL / n
		s.AvgBarsHeld = float64(held) / n
	}
	if initial > 0 {
		s.PctChange = (final - initial) / initial * 100
	}
	return s
}

// MaxDrawdown is the largest peak-to-trough decline of values, in percent
// of the running peak.
func MaxDrawdown(values []float64) float64 {
	var peak, maxDD float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
