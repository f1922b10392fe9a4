package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"bibo/internal/api"
)

var serveSimulate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve signal evaluation and recent runs over gRPC",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveSimulate, "simulate", false, "use an in-memory account instead of Alpaca")
}

func runServe(cmd *cobra.Command, _ []string) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	e, tc, err := newEngine(cfg, newBroker(cfg, serveSimulate), db)
	if err != nil {
		return err
	}
	svc := api.NewSignalService(e, db, cfg.Backtest.InitialCapital, func() time.Time {
		return tc.TradingDate(time.Now())
	})
	srv := api.NewServer(cfg.Server.Addr(), svc)
	return srv.ListenAndServe(cmd.Context())
}
