package engine

import (
	"fmt"

	"bibo/internal/domain"
)

// Ledger tracks total and committed capital for one simulation. It is not
// safe for concurrent use; the simulator is its only writer.
type Ledger struct {
	total     float64
	committed float64
	open      int
}

// NewLedger starts a ledger with initial capital and nothing committed.
func NewLedger(initial float64) *Ledger {
	return &Ledger{total: initial}
}

// Total is realised capital: initial plus closed P&L.
func (l *Ledger) Total() float64 { return l.total }

// Available is total minus the cost basis of open positions.
func (l *Ledger) Available() float64 { return l.total - l.committed }

// Committed is the cost basis of open positions.
func (l *Ledger) Committed() float64 { return l.committed }

// Open is the number of positions holding capital.
func (l *Ledger) Open() int { return l.open }

// Reserve commits cost for a new position.
func (l *Ledger) Reserve(cost float64) error {
	if cost <= 0 {
		return fmt.Errorf("%w: non-positive cost %.4f", domain.ErrInvalidRiskGeometry, cost)
	}
	if cost > l.Available() {
		return fmt.Errorf("%w: need %.2f, have %.2f", domain.ErrInsufficientCapital, cost, l.Available())
	}
	l.committed += cost
	l.open++
	return nil
}

// Release returns a closed position's cost and books its P&L.
func (l *Ledger) Release(cost, pnl float64) {
	l.total += pnl
	l.committed -= cost
	l.open--
	switch {
	case l.open <= 0:
		l.open, l.committed = 0, 0 // drop float residue
	case l.committed < 0:
		l.committed = 0
	}
}
