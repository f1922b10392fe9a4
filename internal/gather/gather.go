// Package gather supplies daily bar series to the backtester and the live
// scanner, from the market-data API or the local bar cache.
package gather

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"bibo/internal/domain"
	"bibo/internal/store"
)

// Gatherer is the interface for batch data gathering jobs.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs the job. It returns early if ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Provider returns a symbol's daily bars dated within [start, end],
// ascending, one bar per trading date.
type Provider interface {
	DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// SnapshotProvider is implemented by providers that can report today's
// partial daily bar before the close.
type SnapshotProvider interface {
	DailyBarSnapshot(ctx context.Context, symbol string) (domain.Bar, error)
}

// ---------------------------------------------------------------------------
// StoreProvider
// ---------------------------------------------------------------------------

var _ Provider = (*StoreProvider)(nil)

// StoreProvider serves bars from a BarStore, for offline backtests.
type StoreProvider struct {
	store  store.BarStore
	market domain.Market
}

// NewStoreProvider creates a Provider over s for US bars.
func NewStoreProvider(s store.BarStore) *StoreProvider {
	return &StoreProvider{store: s, market: domain.MarketUS}
}

// DailyBars reads from the store. An empty result is ErrDataUnavailable.
func (p *StoreProvider) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	bars, err := p.store.ReadBars(ctx, symbol, string(p.market), start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: no cached bars in %s..%s: %w", symbol,
			start.Format(domain.DateLayout), end.Format(domain.DateLayout), domain.ErrDataUnavailable)
	}
	return Normalize(symbol, bars), nil
}

// ---------------------------------------------------------------------------
// WriteThrough
// ---------------------------------------------------------------------------

var _ Provider = (*WriteThrough)(nil)

// WriteThrough fetches from an upstream Provider and copies every result
// into a BarStore. Cache write failures are logged, not returned.
type WriteThrough struct {
	upstream Provider
	cache    store.BarStore
	log      *slog.Logger
}

// NewWriteThrough wraps upstream with a cache.
func NewWriteThrough(upstream Provider, cache store.BarStore) *WriteThrough {
	return &WriteThrough{
		upstream: upstream,
		cache:    cache,
		log:      slog.Default().With("component", "write-through"),
	}
}

// DailyBars fetches from upstream and stores the result.
func (w *WriteThrough) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	bars, err := w.upstream.DailyBars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if err := w.cache.WriteBars(ctx, bars); err != nil {
		w.log.Warn("caching bars failed", "symbol", symbol, "err", err)
	}
	return bars, nil
}

// DailyBarSnapshot forwards to upstream when it supports snapshots. The
// partial bar is not cached.
func (w *WriteThrough) DailyBarSnapshot(ctx context.Context, symbol string) (domain.Bar, error) {
	sp, ok := w.upstream.(SnapshotProvider)
	if !ok {
		return domain.Bar{}, fmt.Errorf("%s: snapshot not supported: %w", symbol, domain.ErrDataUnavailable)
	}
	return sp.DailyBarSnapshot(ctx, symbol)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// Normalize sets symbol, truncates timestamps to trading dates, sorts
// ascending and keeps the last bar seen for a duplicated date. Bars that
// fail Validate are dropped.
func Normalize(symbol string, bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		b.Symbol = symbol
		b.Timestamp = domain.TradingDate(b.Timestamp)
		if b.Validate() != nil {
			continue
		}
		out = append(out, b)
	}
	slices.SortStableFunc(out, func(a, b domain.Bar) int { return a.Timestamp.Compare(b.Timestamp) })

	dedup := out[:0]
	for _, b := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Timestamp.Equal(b.Timestamp) {
			dedup[n-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	return dedup
}

// AppendPartial adds today's partial bar to a historical series, replacing
// a bar already dated today.
func AppendPartial(bars []domain.Bar, today domain.Bar) []domain.Bar {
	today.Timestamp = domain.TradingDate(today.Timestamp)
	out := slices.Clone(bars)
	if n := len(out); n > 0 && !out[n-1].Timestamp.Before(today.Timestamp) {
		if out[n-1].Timestamp.Equal(today.Timestamp) {
			out[n-1] = today
		}
		return out
	}
	return append(out, today)
}

// ---------------------------------------------------------------------------
// MemoryProvider
// ---------------------------------------------------------------------------

var _ Provider = (*MemoryProvider)(nil)

// MemoryProvider serves fixed in-memory series to backtests and engine
// tests.
type MemoryProvider struct {
	Series map[string][]domain.Bar
	// Fail makes DailyBars return the mapped error for a symbol.
	Fail map[string]error
}

// NewMemoryProvider returns an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{Series: make(map[string][]domain.Bar), Fail: make(map[string]error)}
}

// Add registers bars for a symbol.
func (m *MemoryProvider) Add(symbol string, bars []domain.Bar) {
	m.Series[symbol] = Normalize(symbol, bars)
}

// DailyBars filters the stored series to [start, end].
func (m *MemoryProvider) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.Fail[symbol]; ok {
		return nil, err
	}
	lo, hi := domain.TradingDate(start), domain.TradingDate(end)
	var out []domain.Bar
	for _, b := range m.Series[symbol] {
		if !b.Timestamp.Before(lo) && !b.Timestamp.After(hi) {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, domain.ErrDataUnavailable)
	}
	return out, nil
}
