package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"bibo/internal/backtest"
	"bibo/internal/store"
)

var sweepOut string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Backtest every stop, target and risk combination in the sweep grid",
	Long: `Load the dataset once and run one simulation per combination of
sweep.stop_multiples, sweep.target_multiples and sweep.risk_fractions.
An empty axis keeps the strategy's value. Every run is recorded in the
database unless --no-save is given.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	addRangeFlags(sweepCmd)
	sweepCmd.Flags().StringVarP(&sweepOut, "out", "o", "", "sweep report path (default <results_dir>/sweep_<strategy>_<timestamp>.txt)")
	sweepCmd.Flags().BoolVar(&btNoSave, "no-save", false, "do not record the runs in the database")
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	opts, ds, err := prepare(ctx)
	if err != nil {
		return err
	}
	grid := backtest.Grid{
		StopMultiples:   cfg.Sweep.StopMultiples,
		TargetMultiples: cfg.Sweep.TargetMultiples,
		RiskFractions:   cfg.Sweep.RiskFractions,
	}
	results, err := backtest.Sweep(ctx, ds, opts, grid, cfg.Sweep.MaxWorkers)
	if err != nil {
		return err
	}

	blocks := make([]store.SweepBlock, len(results))
	best := 0
	for i, res := range results {
		blocks[i] = store.SweepBlock{Params: res.Params, Summary: res.Summary}
		if res.Summary.PctChange > results[best].Summary.PctChange {
			best = i
		}
	}
	path := sweepOut
	if path == "" {
		path = filepath.Join(cfg.Storage.ResultsDir, fmt.Sprintf("sweep_%s_%s.txt",
			opts.Strategy.Name(), time.Now().Format("20060102_150405")))
	}
	if err := writeFile(path, func(f *os.File) error {
		return store.WriteSweepLog(f, blocks)
	}); err != nil {
		return err
	}

	if len(results) > 0 {
		p := results[best].Params
		slog.Info("sweep complete",
			"combinations", len(results),
			"best_stop", p.StopMultiple,
			"best_target", p.TargetMultiple,
			"best_risk", p.RiskFraction,
			"best_pct_change", results[best].Summary.PctChange,
			"report", path,
		)
	}
	if btNoSave {
		return nil
	}
	return saveRuns(ctx, results...)
}
