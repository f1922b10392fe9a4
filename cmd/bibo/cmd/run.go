package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"bibo/internal/gather/us"
	"bibo/internal/util"
)

var runSimulate bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan once per trading day at the scheduled time until interrupted",
	Long: `Sleep until live.schedule_hour:live.schedule_minute in live.timezone on
each weekday, skip exchange holidays and run the end-of-day scan. A failed
scan is logged and the scheduler moves on to the next day.`,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runSimulate, "simulate", false, "fill orders against an in-memory account instead of Alpaca")
}

func runScheduler(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	e, tc, err := newEngine(cfg, newBroker(cfg, runSimulate), db)
	if err != nil {
		return err
	}
	at, err := util.ParseClock(fmt.Sprintf("%02d:%02d", cfg.Live.ScheduleHour, cfg.Live.ScheduleMinute))
	if err != nil {
		return err
	}
	sessions, err := us.NewCalendar(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	if err != nil {
		return fmt.Errorf("loading trading calendar: %w", err)
	}

	log := slog.Default().With("component", "scheduler")
	for {
		next := tc.NextRun(time.Now(), at)
		log.Info("next scan scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("scheduler stopped")
			return nil
		case <-timer.C:
		}

		open, err := sessions.IsTradingDay(next)
		if err != nil {
			log.Warn("calendar lookup failed, scanning anyway", "err", err)
			open = true
		}
		if !open {
			log.Info("market closed today", "date", next.Format("2006-01-02"))
			continue
		}
		if _, err := scanOnce(ctx, e, false); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("scan failed", "err", err)
		}
	}
}
