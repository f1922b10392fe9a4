// Package indicator derives moving averages and Average True Range from a
// daily bar series.
package indicator

import (
	"fmt"
	"math"
	"time"

	"bibo/internal/domain"
)

// FirstTrueRange selects how the first bar's True Range is computed, since
// it has no previous close.
type FirstTrueRange int

const (
	// FirstHighLow uses high-low for the first bar.
	FirstHighLow FirstTrueRange = iota
	// FirstUndefined leaves the first True Range as NaN, which delays ATR by
	// one bar.
	FirstUndefined
)

// ParseFirstTrueRange maps the config names "high_low" and "undefined".
func ParseFirstTrueRange(s string) (FirstTrueRange, error) {
	switch s {
	case "", "high_low":
		return FirstHighLow, nil
	case "undefined":
		return FirstUndefined, nil
	}
	return 0, fmt.Errorf("%w: unknown first true range policy %q", domain.ErrInvalidConfig, s)
}

// Params are the rolling window sizes.
type Params struct {
	SMAShort  int
	SMAMedium int
	SMALong   int
	ATR       int
	FirstTR   FirstTrueRange
}

// DefaultParams returns the canonical 50/100/150 SMA and 14-bar ATR.
func DefaultParams() Params {
	return Params{SMAShort: 50, SMAMedium: 100, SMALong: 150, ATR: 14, FirstTR: FirstHighLow}
}

// Validate rejects non-positive windows.
func (p Params) Validate() error {
	if p.SMAShort <= 0 || p.SMAMedium <= 0 || p.SMALong <= 0 || p.ATR <= 0 {
		return fmt.Errorf("%w: indicator windows must be positive: %+v", domain.ErrInvalidConfig, p)
	}
	return nil
}

// Warmup is the number of leading rows that carry at least one undefined
// indicator.
func (p Params) Warmup() int {
	atr := p.ATR - 1
	if p.FirstTR == FirstUndefined {
		atr = p.ATR
	}
	return max(p.SMAShort-1, p.SMAMedium-1, p.SMALong-1, atr)
}

// Compute returns a new indicator series of the same length as bars. bars is
// not modified. Rows inside the warm-up carry NaN for the indicators that
// lack history.
func Compute(bars []domain.Bar, p Params) []domain.IndicatorRow {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	short := SMA(closes, p.SMAShort)
	medium := SMA(closes, p.SMAMedium)
	long := SMA(closes, p.SMALong)
	tr := TrueRange(bars, p.FirstTR)
	atr := SMA(tr, p.ATR)

	rows := make([]domain.IndicatorRow, len(bars))
	for i, b := range bars {
		rows[i] = domain.IndicatorRow{
			Bar:       b,
			SMAShort:  short[i],
			SMAMedium: medium[i],
			SMALong:   long[i],
			TrueRange: tr[i],
			ATR:       atr[i],
		}
	}
	return rows
}

// SMA is the trailing arithmetic mean over window values. Entries before the
// window fills, or whose window contains NaN, are NaN.
func SMA(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if window <= 0 || i < window-1 {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for _, v := range values[i-window+1 : i+1] {
			sum += v
		}
		out[i] = sum / float64(window)
	}
	return out
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|) per bar.
func TrueRange(bars []domain.Bar, first FirstTrueRange) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			if first == FirstUndefined {
				out[i] = math.NaN()
			} else {
				out[i] = b.High - b.Low
			}
			continue
		}
		prev := bars[i-1].Close
		out[i] = math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
	}
	return out
}

// Defined drops the warm-up rows, returning the suffix of rows whose
// indicators are all defined.
func Defined(rows []domain.IndicatorRow) []domain.IndicatorRow {
	for i, r := range rows {
		if r.Defined() {
			return rows[i:]
		}
	}
	return nil
}

// IndexOf returns the index of the row dated d, or -1.
func IndexOf(rows []domain.IndicatorRow, d time.Time) int {
	d = domain.TradingDate(d)
	lo, hi := 0, len(rows)
	for lo < hi {
		mid := (lo + hi) / 2
		if rows[mid].Timestamp.Before(d) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(rows) && rows[lo].Timestamp.Equal(d) {
		return lo
	}
	return -1
}
