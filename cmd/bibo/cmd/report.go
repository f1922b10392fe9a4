package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bibo/internal/report"
	"bibo/internal/store"
)

var (
	reportSort string
	reportTop  int
	runsLimit  int
)

var reportCmd = &cobra.Command{
	Use:   "report <trade-log.csv>",
	Short: "Break a backtest trade log down by symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, ok := report.ParseSortMode(reportSort)
		if !ok {
			return fmt.Errorf("unknown sort %q (pnl, trades, winrate, symbol)", reportSort)
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		trades, summary, err := store.ReadTradeLog(f)
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		stats := report.TopN(report.SortStats(report.AggregateTrades(trades), mode), reportTop)
		out := cmd.OutOrStdout()
		if err := report.WriteSymbolTable(out, stats); err != nil {
			return err
		}
		if pnl, err := store.SummaryFloat(summary, store.KeyTotalPnL); err == nil {
			fmt.Fprintf(out, "\n%d trades, total PnL %s\n", len(trades), report.FormatMoney(pnl))
		}
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the most recent recorded backtest runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		runs, err := db.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		return report.WriteRunsTable(cmd.OutOrStdout(), runs)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd, runsCmd)
	reportCmd.Flags().StringVar(&reportSort, "sort", "pnl", "sort order: pnl, trades, winrate or symbol")
	reportCmd.Flags().IntVar(&reportTop, "top", 0, "show only the first N symbols (0 for all)")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to list")
}
