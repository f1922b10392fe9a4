package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"bibo/internal/engine"
)

var (
	scanForce    bool
	scanSimulate bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Evaluate today's bars once and place bracket orders for new signals",
	Long: `Run a single end-of-day scan: post the account digest, apply the market
filter, evaluate every live symbol not already held and submit a bracket
order for each accepted signal. The scan refuses to trade outside the
live window unless --force is given.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanForce, "force", false, "scan even outside the live window")
	scanCmd.Flags().BoolVar(&scanSimulate, "simulate", false, "fill orders against an in-memory account instead of Alpaca")
}

func runScan(cmd *cobra.Command, _ []string) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	e, _, err := newEngine(cfg, newBroker(cfg, scanSimulate), db)
	if err != nil {
		return err
	}
	_, err = scanOnce(cmd.Context(), e, scanForce)
	return err
}

func scanOnce(ctx context.Context, e *engine.Engine, force bool) (*engine.ScanReport, error) {
	rep, err := e.Scan(ctx, cfg.Live.Symbols, force)
	if err != nil {
		return nil, err
	}
	slog.Info("scan complete",
		"as_of", rep.AsOf.Format("2006-01-02"),
		"market_up", rep.MarketUp,
		"evaluated", rep.Evaluated,
		"signals", rep.Signals,
		"submitted", len(rep.Submitted),
		"held", len(rep.Held),
		"rejected", len(rep.Rejected),
		"failed", len(rep.Failed),
	)
	return rep, nil
}
