// Package cmd implements the bibo command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bibo/internal/config"
	"bibo/internal/util"
)

var (
	cfgPath  string
	logLevel string

	cfg     *config.Config
	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:   "bibo",
	Short: "Moving-average bounce swing trader: backtests, sweeps and a live end-of-day scan",
	Long: `bibo trades a single swing strategy on US equity daily bars.

It provides tools for:
  - Backtesting the strategy over a symbol universe
  - Sweeping stop, target and risk parameters
  - Caching daily bars locally in Parquet
  - Scanning for entries before the close and placing bracket orders
  - Serving on-demand signal evaluation over gRPC`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default $BIBO_CONFIG or "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

// setup loads configuration and installs the default logger.
func setup(cmd *cobra.Command, _ []string) error {
	switch cmd.Name() {
	case "version", "help", "completion":
		return nil
	}

	path := config.ResolvePath(cfgPath)
	c, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", path, err)
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c

	// Dual logger: stdout plus the optional log file.
	var w io.Writer = os.Stdout
	if c.Logging.File != "" {
		f, err := os.OpenFile(c.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		logFile = f
		w = io.MultiWriter(os.Stdout, f)
	}
	util.SetDefault(util.NewLogger(c.Logging.Level, c.Logging.Format, w))
	slog.Debug("config loaded", "path", path)
	return nil
}
