// Package store defines storage interfaces for persisting and retrieving
// bars, backtest runs and submitted orders.
package store

import (
	"context"
	"errors"
	"time"

	"bibo/internal/domain"
)

// ErrNotFound is returned when a keyed lookup has no row.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// OrderStore persists orders submitted by the live scan.
type OrderStore interface {
	// SaveOrder inserts a new order into storage.
	SaveOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves a single order by its broker ID.
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// ListOrders returns orders submitted at or after since, newest first.
	ListOrders(ctx context.Context, since time.Time) ([]domain.Order, error)

	// UpdateOrderStatus changes the status of an existing order.
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error
}

// RunStore persists completed backtest runs and their trade logs.
type RunStore interface {
	// SaveRun inserts a run with its trades.
	SaveRun(ctx context.Context, run *domain.Run) error

	// GetRun retrieves a run, including trades, by ID.
	GetRun(ctx context.Context, id string) (*domain.Run, error)

	// ListRuns returns the most recent runs without trades, up to limit.
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
}
