package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"bibo/internal/domain"
)

// WriteSymbolTable writes one aligned row per symbol.
func WriteSymbolTable(w io.Writer, stats []*SymbolStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Symbol\tTrades\tWin%\tTarget\tStop\tExpired\tPnL\tBest\tWorst\tAvgHeld\t")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%d\t%d\t%d\t%s\t%s\t%s\t%.1f\t\n",
			s.Symbol, s.Trades, s.WinRate(), s.Targets, s.Stops, s.Expired,
			FormatMoney(s.PnL), FormatMoney(s.Best), FormatMoney(s.Worst), s.AvgBarsHeld)
	}
	return tw.Flush()
}

// WriteRunsTable writes one aligned row per persisted run, newest first as
// given.
func WriteRunsTable(w io.Writer, runs []domain.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCreated\tStrategy\tRange\tSL\tTP\tRisk\tTrades\tWin%\tReturn\tMaxDD\tAlpha\t")
	for _, r := range runs {
		alpha := "-"
		if r.Summary.Benchmark != nil {
			alpha = FormatPct(r.Summary.Alpha)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s..%s\t%g\t%g\t%g\t%s\t%.1f\t%s\t%.1f%%\t%s\t\n",
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Params.Strategy,
			r.Params.Start.Format(domain.DateLayout), r.Params.End.Format(domain.DateLayout),
			r.Params.StopMultiple, r.Params.TargetMultiple, r.Params.RiskFraction,
			FormatInt(r.Summary.NumTrades),
			r.Summary.WinRate,
			FormatPct(r.Summary.PctChange),
			r.Summary.MaxDrawdownPct,
			alpha,
		)
	}
	return tw.Flush()
}
