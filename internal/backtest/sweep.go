package backtest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"bibo/internal/domain"
	"bibo/internal/engine"
)

// Grid is the parameter space of a sweep. An empty axis uses the base
// sizer's value.
type Grid struct {
	StopMultiples   []float64
	TargetMultiples []float64
	RiskFractions   []float64
}

// Combinations expands g over base in stop, target, risk nesting order.
func (g Grid) Combinations(base engine.SizerConfig) []engine.SizerConfig {
	axis := func(vals []float64, def float64) []float64 {
		if len(vals) == 0 {
			return []float64{def}
		}
		return vals
	}
	var out []engine.SizerConfig
	for _, sl := range axis(g.StopMultiples, base.StopMultiple) {
		for _, tp := range axis(g.TargetMultiples, base.TargetMultiple) {
			for _, rf := range axis(g.RiskFractions, base.RiskFraction) {
				cfg := base
				cfg.StopMultiple, cfg.TargetMultiple, cfg.RiskFraction = sl, tp, rf
				out = append(out, cfg)
			}
		}
	}
	return out
}

// Sweep runs one independent simulation per grid combination over the same
// dataset, at most workers at a time. Results are returned in grid order.
// Every combination is validated before any simulation starts.
func Sweep(ctx context.Context, ds *Dataset, base Options, grid Grid, workers int) ([]*Result, error) {
	if base.Sizer == nil {
		return nil, fmt.Errorf("%w: sweep needs a base sizer", domain.ErrInvalidConfig)
	}
	combos := grid.Combinations(base.Sizer.Config())

	testers := make([]*Backtester, len(combos))
	for i, cfg := range combos {
		sizer, err := engine.NewSizer(cfg)
		if err != nil {
			return nil, fmt.Errorf("sweep combination %d: %w", i, err)
		}
		opts := base
		opts.Sizer = sizer
		bt, err := New(opts)
		if err != nil {
			return nil, err
		}
		testers[i] = bt
	}

	if workers <= 0 {
		workers = 1
	}
	results := make([]*Result, len(combos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, bt := range testers {
		g.Go(func() error {
			res, err := bt.Run(gctx, ds)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
