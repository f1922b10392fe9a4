// Package report aggregates trade logs and runs into plain-text tables.
package report

import (
	"sort"

	"bibo/internal/domain"
)

// SymbolStats holds aggregated trade statistics for a single symbol.
type SymbolStats struct {
	Symbol      string
	Trades      int
	Wins        int
	Targets     int
	Stops       int
	Expired     int
	PnL         float64
	Best        float64 // largest single-trade PnL
	Worst       float64 // smallest single-trade PnL
	AvgBarsHeld float64
	First       domain.TradeRecord // earliest entry
}

// WinRate is Wins/Trades as a percentage.
func (s *SymbolStats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades) * 100
}

// Sort modes for SortStats.
const (
	SortPnL    = iota // total PnL, descending (default)
	SortTrades        // trade count, descending
	SortWinRate
	SortSymbol
)

// SortModeLabel returns a short label for the given sort mode.
func SortModeLabel(mode int) string {
	switch mode {
	case SortPnL:
		return "pnl"
	case SortTrades:
		return "trades"
	case SortWinRate:
		return "winrate"
	case SortSymbol:
		return "symbol"
	default:
		return "?"
	}
}

// ParseSortMode is the inverse of SortModeLabel.
func ParseSortMode(label string) (int, bool) {
	for m := SortPnL; m <= SortSymbol; m++ {
		if SortModeLabel(m) == label {
			return m, true
		}
	}
	return 0, false
}

// AggregateTrades computes per-symbol statistics from closed trades.
// Records are grouped by symbol and ordered by entry date within each group.
func AggregateTrades(records []domain.TradeRecord) map[string]*SymbolStats {
	groups := make(map[string][]int)
	for i := range records {
		groups[records[i].Symbol] = append(groups[records[i].Symbol], i)
	}

	m := make(map[string]*SymbolStats, len(groups))
	for sym, indices := range groups {
		sort.SliceStable(indices, func(a, b int) bool {
			return records[indices[a]].EntryDate.Before(records[indices[b]].EntryDate)
		})

		s := &SymbolStats{Symbol: sym, First: records[indices[0]]}
		held := 0
		for j, idx := range indices {
			r := &records[idx]
			s.Trades++
			s.PnL += r.PnL
			held += r.BarsHeld
			if r.PnL > 0 {
				s.Wins++
			}
			if j == 0 || r.PnL > s.Best {
				s.Best = r.PnL
			}
			if j == 0 || r.PnL < s.Worst {
				s.Worst = r.PnL
			}
			switch r.Outcome {
			case domain.StatusClosedTarget:
				s.Targets++
			case domain.StatusClosedStopped:
				s.Stops++
			case domain.StatusClosedExpired:
				s.Expired++
			}
		}
		s.AvgBarsHeld = float64(held) / float64(s.Trades)
		m[sym] = s
	}
	return m
}

// SortStats flattens m into a slice ordered by mode. Ties fall back to the
// symbol name so the order is stable.
func SortStats(m map[string]*SymbolStats, mode int) []*SymbolStats {
	out := make([]*SymbolStats, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch mode {
		case SortTrades:
			if a.Trades != b.Trades {
				return a.Trades > b.Trades
			}
		case SortWinRate:
			if a.WinRate() != b.WinRate() {
				return a.WinRate() > b.WinRate()
			}
		case SortSymbol:
		default:
			if a.PnL != b.PnL {
				return a.PnL > b.PnL
			}
		}
		return a.Symbol < b.Symbol
	})
	return out
}

// TopN returns at most n entries; n <= 0 keeps all.
func TopN(ss []*SymbolStats, n int) []*SymbolStats {
	if n <= 0 || len(ss) <= n {
		return ss
	}
	return ss[:n]
}
