// Package strategy defines the Strategy interface for entry predicates and
// provides a Registry for managing multiple strategy implementations.
package strategy

import (
	"fmt"
	"sort"

	"bibo/internal/domain"
)

// Strategy is the interface that all entry predicates must implement.
// Strategies are pure: the same window always yields the same decision.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Lookback is the number of consecutive rows, ending with today, that
	// Evaluate needs.
	Lookback() int

	// Evaluate reports whether window[len(window)-1] (today) is an entry.
	// market is the broad-market row for the same date, or nil.
	Evaluate(window []domain.IndicatorRow, market *domain.IndicatorRow) bool
}

// UsesMarket reports whether s reads the broad-market row. Callers can skip
// loading the market series when it does not.
func UsesMarket(s Strategy) bool {
	f, ok := s.(interface{ MarketFilter() bool })
	return ok && f.MarketFilter()
}

// MarketUp reports whether the broad-market row is defined and closed above
// its long SMA. A nil row is not up.
func MarketUp(market *domain.IndicatorRow) bool {
	return market != nil && market.Defined() && market.Close > market.SMALong
}

// EvaluateAt runs s on the rows ending at index i. It returns false when the
// window does not fit or any row in it has an undefined indicator.
func EvaluateAt(s Strategy, rows []domain.IndicatorRow, i int, market *domain.IndicatorRow) bool {
	n := s.Lookback()
	if i < n-1 || i >= len(rows) {
		return false
	}
	window := rows[i-n+1 : i+1]
	for _, r := range window {
		if !r.Defined() {
			return false
		}
	}
	return s.Evaluate(window, market)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// Lookup is Get with an ErrInvalidConfig error for unknown names.
func (r *Registry) Lookup(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q (have %v)", domain.ErrInvalidConfig, name, r.List())
	}
	return s, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
