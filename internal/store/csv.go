package store

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bibo/internal/domain"
)

// TradeLogHeader is the column order of the CSV trade log.
var TradeLogHeader = []string{
	"EntryDate", "Symbol", "EntryPrice", "StopLoss", "TakeProfit",
	"PositionSize", "ExitPrice", "Outcome", "PnL", "BarsHeld",
}

// Summary block keys.
const (
	KeyTotalPnL          = "Total PnL"
	KeyNumTrades         = "Number of Trades"
	KeyWinRate           = "Win Rate"
	KeyAvgPnL            = "Average PnL"
	KeyAvgBarsHeld       = "Average Bars Held"
	KeyInitialCapital    = "Initial Capital"
	KeyFinalCapital      = "Final Portfolio Value"
	KeyPctChange         = "% Change"
	KeyMaxDrawdown       = "Max Drawdown (%)"
	KeySignalsTotal      = "Signals Total"
	KeySignalsTaken      = "Signals Taken"
	KeySignalsTakenPct   = "Signals Taken (%)"
	KeyRejectedGeometry  = "Rejected (Invalid Risk Geometry)"
	KeyRejectedMinSize   = "Rejected (Below Minimum Size)"
	KeyRejectedCapital   = "Rejected (Insufficient Capital)"
	KeySkippedSymbolDays = "Skipped Symbol-Days"
	KeyBenchmark         = "Benchmark"
	KeyBenchmarkPct      = "Benchmark Performance"
	KeyBenchmarkDrawdown = "Benchmark Drawdown"
	KeyAlpha             = "Alpha"
)

func money(v float64) string {
	return decimal.NewFromFloat(v).Round(2).StringFixed(2)
}

func qty(v float64) string {
	return decimal.NewFromFloat(v).Round(4).String()
}

func parseNumber(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

// WriteTradeLog writes trades followed by a blank line and a "Summary:"
// block of key: value lines. Prices and P&L are rounded to 2 decimals.
func WriteTradeLog(w io.Writer, trades []domain.TradeRecord, s domain.Summary) error {
	if err := writeTrades(w, trades); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return writeSummary(w, s)
}

func writeTrades(w io.Writer, trades []domain.TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TradeLogHeader); err != nil {
		return err
	}
	for _, t := range trades {
		err := cw.Write([]string{
			t.EntryDate.Format(domain.DateLayout),
			t.Symbol,
			money(t.EntryPrice),
			money(t.StopLoss),
			money(t.TakeProfit),
			qty(t.Quantity),
			money(t.ExitPrice),
			t.Outcome.String(),
			money(t.PnL),
			strconv.Itoa(t.BarsHeld),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeSummary(w io.Writer, s domain.Summary) error {
	lines := []struct{ k, v string }{
		{KeyTotalPnL, money(s.TotalPnL)},
		{KeyNumTrades, strconv.Itoa(s.NumTrades)},
		{KeyWinRate, money(s.WinRate) + "%"},
		{KeyAvgPnL, money(s.AvgPnL)},
		{KeyAvgBarsHeld, money(s.AvgBarsHeld)},
		{KeyInitialCapital, money(s.InitialCapital)},
		{KeyFinalCapital, money(s.FinalCapital)},
		{KeyPctChange, money(s.PctChange) + "%"},
		{KeyMaxDrawdown, money(s.MaxDrawdownPct) + "%"},
		{KeySignalsTotal, strconv.Itoa(s.SignalsTotal)},
		{KeySignalsTaken, strconv.Itoa(s.SignalsTaken)},
		{KeySignalsTakenPct, money(s.SignalsTakenPct)},
		{KeyRejectedGeometry, strconv.Itoa(s.Rejections.InvalidRiskGeometry)},
		{KeyRejectedMinSize, strconv.Itoa(s.Rejections.BelowMinimumSize)},
		{KeyRejectedCapital, strconv.Itoa(s.Rejections.InsufficientCapital)},
		{KeySkippedSymbolDays, strconv.Itoa(s.SkippedSymbolDays)},
	}
	if b := s.Benchmark; b != nil {
		lines = append(lines,
			struct{ k, v string }{KeyBenchmark, b.Symbol},
			struct{ k, v string }{KeyBenchmarkPct, money(b.PctChange) + "%"},
			struct{ k, v string }{KeyBenchmarkDrawdown, money(b.MaxDrawdownPct) + "%"},
			struct{ k, v string }{KeyAlpha, money(s.Alpha)},
		)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "Summary:")
	for _, l := range lines {
		fmt.Fprintf(bw, "%s: %s\n", l.k, l.v)
	}
	return bw.Flush()
}

// SweepBlock is one parameter combination of a sweep report.
type SweepBlock struct {
	Params  domain.RunParams
	Summary domain.Summary
}

// WriteSweepLog writes one parameter and summary block per combination, in
// the given order.
func WriteSweepLog(w io.Writer, blocks []SweepBlock) error {
	for i, b := range blocks {
		if i > 0 {
			if _, err := io.WriteString(w, "\n\n"); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "Parameters:\nStrategy: %s\nInitial Capital: %s\nRisk Fraction: %s\nSL Multiple: %s\nTP Multiple: %s\n\n",
			b.Params.Strategy,
			money(b.Summary.InitialCapital),
			decimal.NewFromFloat(b.Params.RiskFraction).String(),
			decimal.NewFromFloat(b.Params.StopMultiple).String(),
			decimal.NewFromFloat(b.Params.TargetMultiple).String(),
		)
		if err != nil {
			return err
		}
		if err := writeSummary(w, b.Summary); err != nil {
			return err
		}
	}
	return nil
}

// ReadTradeLog parses a file written by WriteTradeLog. It returns the trades
// and the raw summary key/value pairs.
func ReadTradeLog(r io.Reader) ([]domain.TradeRecord, map[string]string, error) {
	var (
		tradeLines []string
		summary    = make(map[string]string)
		inSummary  bool
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.TrimSpace(line) == "":
			inSummary = inSummary || len(tradeLines) > 0
		case line == "Summary:":
			inSummary = true
		case inSummary:
			k, v, ok := strings.Cut(line, ": ")
			if !ok {
				return nil, nil, fmt.Errorf("malformed summary line %q", line)
			}
			summary[k] = v
		default:
			tradeLines = append(tradeLines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if len(tradeLines) == 0 {
		return nil, nil, fmt.Errorf("trade log has no header")
	}

	records, err := csv.NewReader(strings.NewReader(strings.Join(tradeLines, "\n"))).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parsing trades: %w", err)
	}
	if strings.Join(records[0], ",") != strings.Join(TradeLogHeader, ",") {
		return nil, nil, fmt.Errorf("unexpected header %v", records[0])
	}

	trades := make([]domain.TradeRecord, 0, len(records)-1)
	for i, rec := range records[1:] {
		t, err := parseTrade(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		trades = append(trades, t)
	}
	return trades, summary, nil
}

func parseTrade(rec []string) (domain.TradeRecord, error) {
	var (
		t   domain.TradeRecord
		err error
	)
	if t.EntryDate, err = time.Parse(domain.DateLayout, rec[0]); err != nil {
		return t, err
	}
	t.Symbol = rec[1]
	nums := []*float64{&t.EntryPrice, &t.StopLoss, &t.TakeProfit, &t.Quantity, &t.ExitPrice}
	for i, dst := range nums {
		if *dst, err = parseNumber(rec[2+i]); err != nil {
			return t, fmt.Errorf("column %s: %w", TradeLogHeader[2+i], err)
		}
	}
	if t.Outcome, err = domain.ParsePositionStatus(rec[7]); err != nil {
		return t, err
	}
	if t.PnL, err = parseNumber(rec[8]); err != nil {
		return t, fmt.Errorf("column PnL: %w", err)
	}
	if t.BarsHeld, err = strconv.Atoi(rec[9]); err != nil {
		return t, fmt.Errorf("column BarsHeld: %w", err)
	}
	return t, nil
}

// SummaryFloat parses a numeric summary value, ignoring a trailing "%".
func SummaryFloat(summary map[string]string, key string) (float64, error) {
	v, ok := summary[key]
	if !ok {
		return 0, fmt.Errorf("summary key %q: %w", key, ErrNotFound)
	}
	return parseNumber(v)
}
