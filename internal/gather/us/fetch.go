package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"bibo/internal/domain"
	"bibo/internal/gather"
	"bibo/internal/store"
	"bibo/internal/util"
)

var _ gather.Gatherer = (*DailyBarGatherer)(nil)

// DailyBarGatherer downloads daily bars for a symbol universe into the
// Parquet bar cache. It is resumable within one end date.
type DailyBarGatherer struct {
	provider      gather.Provider
	store         store.BarStore
	dataDir       string
	symbols       []string
	span          gather.DateRange
	maxWorkers    int
	retryAttempts int
	retryDelay    time.Duration
	log           *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer writing to s. dataDir is
// the cache root, used for progress files.
func NewDailyBarGatherer(p gather.Provider, s store.BarStore, dataDir string, symbols []string, span gather.DateRange, maxWorkers, retryAttempts int, retryDelay time.Duration) *DailyBarGatherer {
	return &DailyBarGatherer{
		provider:      p,
		store:         s,
		dataDir:       dataDir,
		symbols:       symbols,
		span:          span,
		maxWorkers:    max(maxWorkers, 1),
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
		log:           slog.Default().With("gatherer", "us-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches every symbol not yet done for the end date and writes its
// bars to the store.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	endStr := g.span.End.Format(domain.DateLayout)

	tracker, err := newProgressTracker(filepath.Join(g.dataDir, string(domain.MarketUS), "daily"))
	if err != nil {
		return fmt.Errorf("creating progress tracker: %w", err)
	}
	defer tracker.Close()

	if last := tracker.LastCompleted(); last != "" && last != endStr {
		// New end date: the old progress no longer applies.
		if err := tracker.Reset(); err != nil {
			return fmt.Errorf("resetting tracker: %w", err)
		}
	}

	var remaining []string
	for _, sym := range g.symbols {
		if !tracker.Done(sym) {
			remaining = append(remaining, sym)
		}
	}

	g.log.Info("starting us-daily",
		"start", g.span.Start.Format(domain.DateLayout),
		"end", endStr,
		"total", len(g.symbols),
		"remaining", len(remaining),
	)

	symCh := make(chan string, len(remaining))
	for _, s := range remaining {
		symCh <- s
	}
	close(symCh)

	var (
		wg       sync.WaitGroup
		hits     atomic.Int64
		empty    atomic.Int64
		failed   atomic.Int64
		runStart = time.Now()
	)

	workers := min(g.maxWorkers, max(len(remaining), 1))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range symCh {
				if ctx.Err() != nil {
					return
				}

				var bars []domain.Bar
				err := util.Retry(ctx, g.retryAttempts, g.retryDelay, func() error {
					var ferr error
					bars, ferr = g.provider.DailyBars(ctx, sym, g.span.Start, g.span.End)
					if errors.Is(ferr, domain.ErrDataUnavailable) {
						return util.Permanent(ferr)
					}
					return ferr
				})
				switch {
				case errors.Is(err, domain.ErrDataUnavailable):
					empty.Add(1)
					if err := tracker.MarkEmpty(sym); err != nil {
						g.log.Error("marking empty failed", "symbol", sym, "err", err)
					}
					continue
				case err != nil:
					failed.Add(1)
					g.log.Error("fetch failed", "symbol", sym, "err", err)
					continue
				}

				if err := g.store.WriteBars(ctx, bars); err != nil {
					failed.Add(1)
					g.log.Error("writing bars failed", "symbol", sym, "err", err)
					continue
				}
				if err := tracker.MarkFetched(sym); err != nil {
					g.log.Error("marking fetched failed", "symbol", sym, "err", err)
				}
				hits.Add(1)
				g.log.Debug("symbol done", "symbol", sym, "bars", len(bars))
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	g.log.Info("complete",
		"hits", hits.Load(),
		"empty", empty.Load(),
		"failed", failed.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)

	if failed.Load() > 0 {
		return fmt.Errorf("%d symbols failed: %w", failed.Load(), domain.ErrExternalService)
	}
	if err := tracker.MarkCompleted(endStr); err != nil {
		return fmt.Errorf("marking completed: %w", err)
	}
	return nil
}
