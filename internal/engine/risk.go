package engine

import (
	"fmt"
	"math"

	"bibo/internal/domain"
)

// QuantityPolicy controls how a raw risk-derived quantity is rounded.
type QuantityPolicy int

const (
	// WholeShares floors to an integer share count.
	WholeShares QuantityPolicy = iota
	// FractionalShares keeps the raw quantity.
	FractionalShares
)

// ParseQuantityPolicy maps the config names "whole" and "fractional".
func ParseQuantityPolicy(s string) (QuantityPolicy, error) {
	switch s {
	case "", "whole":
		return WholeShares, nil
	case "fractional":
		return FractionalShares, nil
	}
	return 0, fmt.Errorf("%w: unknown quantity policy %q", domain.ErrInvalidConfig, s)
}

// SizerConfig holds the fixed-fractional sizing parameters.
type SizerConfig struct {
	RiskFraction   float64
	StopMultiple   float64
	TargetMultiple float64
	Policy         QuantityPolicy
	MinQuantity    float64
}

// Sizer converts capital, entry and ATR into a bracket and a share count.
// It has no knowledge of available capital; affordability is the caller's
// check.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer validates cfg and returns a Sizer.
func NewSizer(cfg SizerConfig) (*Sizer, error) {
	if cfg.RiskFraction <= 0 || cfg.RiskFraction > 1 {
		return nil, fmt.Errorf("%w: risk fraction %v outside (0,1]", domain.ErrInvalidConfig, cfg.RiskFraction)
	}
	if cfg.StopMultiple <= 0 || cfg.TargetMultiple <= 0 {
		return nil, fmt.Errorf("%w: bracket multiples must be positive", domain.ErrInvalidConfig)
	}
	if cfg.MinQuantity <= 0 {
		if cfg.Policy == WholeShares {
			cfg.MinQuantity = 1
		} else {
			cfg.MinQuantity = 0.0001
		}
	}
	return &Sizer{cfg: cfg}, nil
}

// Config returns the sizer's parameters.
func (s *Sizer) Config() SizerConfig {
	return s.cfg
}

// Brackets returns entry -/+ multiple x ATR.
func (s *Sizer) Brackets(entry, atr float64) (stop, target float64) {
	return entry - s.cfg.StopMultiple*atr, entry + s.cfg.TargetMultiple*atr
}

// RawQuantity is capital x riskFraction / (entry - stop) with no rounding.
// entry <= stop, a non-positive stop or a non-finite input fails with
// ErrInvalidRiskGeometry.
func RawQuantity(capital, riskFraction, entry, stop float64) (float64, error) {
	if entry <= stop || stop <= 0 || math.IsNaN(entry) || math.IsNaN(stop) {
		return 0, fmt.Errorf("%w: entry %.4f stop %.4f", domain.ErrInvalidRiskGeometry, entry, stop)
	}
	return capital * riskFraction / (entry - stop), nil
}

// Quantity applies the rounding policy and minimum size to RawQuantity.
func (s *Sizer) Quantity(capital, entry, stop float64) (float64, error) {
	qty, err := RawQuantity(capital, s.cfg.RiskFraction, entry, stop)
	if err != nil {
		return 0, err
	}
	if s.cfg.Policy == WholeShares {
		qty = math.Floor(qty)
	}
	if qty < s.cfg.MinQuantity {
		return 0, fmt.Errorf("%w: quantity %.6f below %.6f", domain.ErrBelowMinimumSize, qty, s.cfg.MinQuantity)
	}
	return qty, nil
}

// Size builds a buy intent from a signal row: limit at the row's close,
// brackets from its ATR and quantity from capital.
func (s *Sizer) Size(capital float64, row domain.IndicatorRow) (domain.OrderIntent, error) {
	entry := row.Close
	stop, target := s.Brackets(entry, row.ATR)

	qty, err := s.Quantity(capital, entry, stop)
	if err != nil {
		return domain.OrderIntent{}, err
	}

	return domain.OrderIntent{
		Symbol:     row.Symbol,
		Side:       domain.OrderSideBuy,
		Quantity:   qty,
		LimitPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
	}, nil
}
