package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"bibo/internal/domain"
)

// ErrPositionExists is returned when opening a second position in a symbol.
var ErrPositionExists = errors.New("position already open")

// BarsHeldMode selects how TradeRecord.BarsHeld is counted.
type BarsHeldMode int

const (
	// CalendarDays counts days between entry and exit dates.
	CalendarDays BarsHeldMode = iota
	// BarCount counts bars between entry and exit.
	BarCount
)

// ParseBarsHeldMode maps the config names "calendar" and "bars".
func ParseBarsHeldMode(s string) (BarsHeldMode, error) {
	switch s {
	case "", "calendar":
		return CalendarDays, nil
	case "bars":
		return BarCount, nil
	}
	return 0, fmt.Errorf("%w: unknown bars_held mode %q", domain.ErrInvalidConfig, s)
}

// Resolve checks an open position against one later bar. The stop is
// checked first, so a bar that crosses both levels closes at the stop.
func Resolve(p domain.Position, bar domain.Bar) (status domain.PositionStatus, exitPrice float64, closed bool) {
	switch {
	case bar.Low <= p.StopLoss:
		return domain.StatusClosedStopped, p.StopLoss, true
	case bar.High >= p.TakeProfit:
		return domain.StatusClosedTarget, p.TakeProfit, true
	}
	return domain.StatusOpen, 0, false
}

// Book holds at most one open position per symbol.
type Book struct {
	open map[string]*domain.Position
	mode BarsHeldMode
}

// NewBook creates an empty Book.
func NewBook(mode BarsHeldMode) *Book {
	return &Book{open: make(map[string]*domain.Position), mode: mode}
}

// Has reports whether symbol has an open position.
func (b *Book) Has(symbol string) bool {
	_, ok := b.open[symbol]
	return ok
}

// Len is the number of open positions.
func (b *Book) Len() int { return len(b.open) }

// Get returns a copy of the open position in symbol.
func (b *Book) Get(symbol string) (domain.Position, bool) {
	p, ok := b.open[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Symbols returns the symbols with open positions, sorted.
func (b *Book) Symbols() []string {
	out := make([]string, 0, len(b.open))
	for s := range b.open {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open records a new position.
func (b *Book) Open(p domain.Position) error {
	if b.Has(p.Symbol) {
		return fmt.Errorf("%s: %w", p.Symbol, ErrPositionExists)
	}
	p.Status = domain.StatusOpen
	b.open[p.Symbol] = &p
	return nil
}

// Close removes symbol's position and returns its trade record. exitIndex is
// the exit bar's index in the symbol's series.
func (b *Book) Close(symbol string, exitDate time.Time, exitIndex int, exitPrice float64, status domain.PositionStatus) (domain.TradeRecord, error) {
	p, ok := b.open[symbol]
	if !ok {
		return domain.TradeRecord{}, fmt.Errorf("%s: no open position", symbol)
	}
	if !status.Closed() {
		return domain.TradeRecord{}, fmt.Errorf("%s: close with non-terminal status %s", symbol, status)
	}
	delete(b.open, symbol)

	held := exitIndex - p.EntryIndex
	if b.mode == CalendarDays {
		held = int(domain.TradingDate(exitDate).Sub(domain.TradingDate(p.EntryDate)).Hours() / 24)
	}

	return domain.TradeRecord{
		Symbol:     p.Symbol,
		EntryDate:  p.EntryDate,
		EntryPrice: p.EntryPrice,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Quantity:   p.Quantity,
		ExitDate:   exitDate,
		ExitPrice:  exitPrice,
		Outcome:    status,
		PnL:        (exitPrice - p.EntryPrice) * p.Quantity,
		BarsHeld:   held,
	}, nil
}
