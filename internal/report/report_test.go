package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibo/internal/domain"
)

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func trade(sym string, entry int, pnl float64, outcome domain.PositionStatus, held int) domain.TradeRecord {
	return domain.TradeRecord{Symbol: sym, EntryDate: day(entry), ExitDate: day(entry + held), PnL: pnl, Outcome: outcome, BarsHeld: held}
}

func TestFormatInt(t *testing.T) {
	cases := map[int]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -4500: "-4,500"}
	for in, want := range cases {
		assert.Equal(t, want, FormatInt(in), "%d", in)
	}
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$0.00", FormatMoney(0))
	assert.Equal(t, "$1,234.57", FormatMoney(1234.567))
	assert.Equal(t, "-$87.50", FormatMoney(-87.5))
}

func TestFormatPct(t *testing.T) {
	assert.Equal(t, "+4.2%", FormatPct(4.24))
	assert.Equal(t, "-12.5%", FormatPct(-12.5))
	assert.Equal(t, "+150%", FormatPct(150))
	assert.Equal(t, "+0.0%", FormatPct(0))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "-", FormatPrice(0))
	assert.Equal(t, "172.46", FormatPrice(172.456))
}

func TestAggregateTrades(t *testing.T) {
	records := []domain.TradeRecord{
		trade("AAA", 10, -50, domain.StatusClosedStopped, 2),
		trade("BBB", 4, 120, domain.StatusClosedTarget, 3),
		trade("AAA", 1, 300, domain.StatusClosedTarget, 4),
		trade("AAA", 20, 10, domain.StatusClosedExpired, 6),
	}
	m := AggregateTrades(records)
	require.Len(t, m, 2)

	a := m["AAA"]
	assert.Equal(t, 3, a.Trades)
	assert.Equal(t, 2, a.Wins)
	assert.Equal(t, 1, a.Targets)
	assert.Equal(t, 1, a.Stops)
	assert.Equal(t, 1, a.Expired)
	assert.InDelta(t, 260, a.PnL, 1e-9)
	assert.Equal(t, 300.0, a.Best)
	assert.Equal(t, -50.0, a.Worst)
	assert.InDelta(t, 4, a.AvgBarsHeld, 1e-9)
	assert.Equal(t, day(1), a.First.EntryDate)
	assert.InDelta(t, 66.67, a.WinRate(), 0.01)

	assert.Equal(t, 1, m["BBB"].Trades)
	assert.Empty(t, AggregateTrades(nil))
}

func TestSortStats(t *testing.T) {
	m := AggregateTrades([]domain.TradeRecord{
		trade("AAA", 1, 100, domain.StatusClosedTarget, 2),
		trade("AAA", 5, -40, domain.StatusClosedStopped, 2),
		trade("BBB", 1, 200, domain.StatusClosedTarget, 2),
		trade("CCC", 1, -10, domain.StatusClosedStopped, 2),
	})
	symbols := func(ss []*SymbolStats) []string {
		var out []string
		for _, s := range ss {
			out = append(out, s.Symbol)
		}
		return out
	}
	assert.Equal(t, []string{"BBB", "AAA", "CCC"}, symbols(SortStats(m, SortPnL)))
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, symbols(SortStats(m, SortTrades)))
	assert.Equal(t, []string{"BBB", "AAA", "CCC"}, symbols(SortStats(m, SortWinRate)))
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, symbols(SortStats(m, SortSymbol)))

	assert.Len(t, TopN(SortStats(m, SortPnL), 2), 2)
	assert.Len(t, TopN(SortStats(m, SortPnL), 0), 3)
}

func TestParseSortMode(t *testing.T) {
	for m := SortPnL; m <= SortSymbol; m++ {
		got, ok := ParseSortMode(SortModeLabel(m))
		require.True(t, ok)
		assert.Equal(t, m, got)
	}
	_, ok := ParseSortMode("volume")
	assert.False(t, ok)
}

func TestWriteSymbolTable(t *testing.T) {
	m := AggregateTrades([]domain.TradeRecord{trade("AAA", 1, 1500, domain.StatusClosedTarget, 3)})
	var buf bytes.Buffer
	require.NoError(t, WriteSymbolTable(&buf, SortStats(m, SortPnL)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Symbol")
	assert.Contains(t, lines[1], "AAA")
	assert.Contains(t, lines[1], "$1,500.00")
}

func TestWriteRunsTable(t *testing.T) {
	runs := []domain.Run{{
		ID:        "run-1",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Params:    domain.RunParams{Strategy: "bibo", Start: day(1), End: day(29), StopMultiple: 1, TargetMultiple: 3, RiskFraction: 0.01},
		Summary:   domain.Summary{NumTrades: 12, WinRate: 50, PctChange: 3.4, MaxDrawdownPct: 2.1},
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteRunsTable(&buf, runs))
	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "2024-03-01..2024-03-29")
	assert.Contains(t, out, "+3.4%")
	assert.Contains(t, out, "0.01")
}
