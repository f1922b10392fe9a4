package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"bibo/internal/domain"
)

var _ BarStore = (*ParquetStore)(nil)

// ParquetStore is the on-disk daily bar cache. Files are partitioned by
// symbol and year:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
//
// Writers to the same file are serialised, so loader workers may write
// through concurrently.
type ParquetStore struct {
	DataDir string
	Market  domain.Market

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewParquetStore creates a ParquetStore for US daily bars rooted at dataDir.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{
		DataDir: dataDir,
		Market:  domain.MarketUS,
		locks:   make(map[string]*sync.Mutex),
	}
}

// barRow is the on-disk schema. Timestamps are the trading date at midnight
// UTC in Unix milliseconds.
type barRow struct {
	Symbol     string  `parquet:"symbol"`
	Date       int64   `parquet:"date,timestamp(millisecond)"`
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     float64 `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

func toRow(b domain.Bar) barRow {
	return barRow{
		Symbol:     strings.ToUpper(b.Symbol),
		Date:       domain.TradingDate(b.Timestamp).UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}

func (r barRow) bar() domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Date).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}

// WriteBars merges bars into their symbol/year files. A bar for a date
// already on disk replaces the stored one.
func (s *ParquetStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	type partition struct {
		symbol string
		year   int
	}
	parts := make(map[partition][]barRow)
	for _, b := range bars {
		r := toRow(b)
		k := partition{symbol: r.Symbol, year: domain.TradingDate(b.Timestamp).Year()}
		parts[k] = append(parts[k], r)
	}

	for k, rows := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.mergeFile(s.barPath(k.symbol, k.year), rows); err != nil {
			return fmt.Errorf("writing %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars returns symbol's bars dated within [start, end], ascending. A
// symbol with no cached file yields an empty slice and no error.
func (s *ParquetStore) ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	if market != "" && market != string(s.Market) {
		return nil, fmt.Errorf("parquet store holds %s bars, not %s", s.Market, market)
	}
	lo := domain.TradingDate(start).UnixMilli()
	hi := domain.TradingDate(end).UnixMilli()

	var out []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := readRows(s.barPath(symbol, year))
		if err != nil {
			return nil, fmt.Errorf("reading %s/%d: %w", symbol, year, err)
		}
		for _, r := range rows {
			if r.Date >= lo && r.Date <= hi {
				out = append(out, r.bar())
			}
		}
	}
	return out, nil
}

// ListSymbols lists the symbols with at least one cached year.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, market, "daily"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	slices.Sort(symbols)
	return symbols, nil
}

func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, string(s.Market), "daily", strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

func (s *ParquetStore) fileLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

func (s *ParquetStore) mergeFile(path string, incoming []barRow) error {
	l := s.fileLock(path)
	l.Lock()
	defer l.Unlock()

	existing, err := readRows(path)
	if err != nil {
		return err
	}

	byDate := make(map[int64]barRow, len(existing)+len(incoming))
	for _, r := range existing {
		byDate[r.Date] = r
	}
	for _, r := range incoming {
		byDate[r.Date] = r
	}
	merged := make([]barRow, 0, len(byDate))
	for _, r := range byDate {
		merged = append(merged, r)
	}
	slices.SortFunc(merged, func(a, b barRow) int {
		switch {
		case a.Date < b.Date:
			return -1
		case a.Date > b.Date:
			return 1
		}
		return 0
	})

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, merged); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readRows returns nil for a missing file.
func readRows(path string) ([]barRow, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return parquet.ReadFile[barRow](path)
}
