package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibo/internal/domain"
)

func newSizer(t *testing.T, cfg SizerConfig) *Sizer {
	t.Helper()
	s, err := NewSizer(cfg)
	require.NoError(t, err)
	return s
}

func TestRawQuantity(t *testing.T) {
	qty, err := RawQuantity(10000, 0.01, 100, 98)
	require.NoError(t, err)
	assert.InDelta(t, 50, qty, 1e-9)
}

func TestRawQuantityScaleInvariant(t *testing.T) {
	cases := []struct{ capital, risk, entry, stop float64 }{
		{10000, 0.01, 100, 98},
		{2500, 0.02, 37.5, 36.1},
		{123456, 0.005, 412.3, 399.99},
	}
	for _, c := range cases {
		q1, err := RawQuantity(c.capital, c.risk, c.entry, c.stop)
		require.NoError(t, err)
		q2, err := RawQuantity(2*c.capital, 2*c.risk, c.entry, c.stop)
		require.NoError(t, err)
		// doubling both inputs quadruples risk amount, so quantity scales by 4;
		// doubling capital alone doubles it.
		q3, err := RawQuantity(2*c.capital, c.risk, c.entry, c.stop)
		require.NoError(t, err)
		assert.InDelta(t, 4*q1, q2, 1e-6)
		assert.InDelta(t, 2*q1, q3, 1e-6)
	}
}

func TestRawQuantityInvalidGeometry(t *testing.T) {
	for _, c := range []struct{ entry, stop float64 }{
		{100, 100},
		{100, 101},
		{100, 0},
		{math.NaN(), 90},
	} {
		_, err := RawQuantity(10000, 0.01, c.entry, c.stop)
		assert.ErrorIs(t, err, domain.ErrInvalidRiskGeometry, "entry %v stop %v", c.entry, c.stop)
	}
}

func TestSizerWholeShares(t *testing.T) {
	s := newSizer(t, SizerConfig{RiskFraction: 0.01, StopMultiple: 0.4, TargetMultiple: 1.2})
	assert.Equal(t, 1.0, s.Config().MinQuantity)

	qty, err := s.Quantity(10000, 100, 97)
	require.NoError(t, err)
	assert.Equal(t, 33.0, qty)

	_, err = s.Quantity(100, 100, 97)
	assert.ErrorIs(t, err, domain.ErrBelowMinimumSize)
}

func TestSizerFractionalShares(t *testing.T) {
	s := newSizer(t, SizerConfig{RiskFraction: 0.01, StopMultiple: 0.4, TargetMultiple: 1.2, Policy: FractionalShares})
	assert.Equal(t, 0.0001, s.Config().MinQuantity)

	qty, err := s.Quantity(100, 100, 97)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, qty, 1e-9)
}

func TestSizerSize(t *testing.T) {
	s := newSizer(t, SizerConfig{RiskFraction: 0.01, StopMultiple: 0.5, TargetMultiple: 1.0})
	row := domain.IndicatorRow{Bar: domain.Bar{Symbol: "AAPL", Close: 100}, ATR: 4}

	in, err := s.Size(10000, row)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", in.Symbol)
	assert.Equal(t, domain.OrderSideBuy, in.Side)
	assert.Equal(t, 100.0, in.LimitPrice)
	assert.Equal(t, 98.0, in.StopLoss)
	assert.Equal(t, 104.0, in.TakeProfit)
	assert.Equal(t, 50.0, in.Quantity)
	assert.InDelta(t, 100, in.Risk(), 1e-9)

	row.ATR = 0
	_, err = s.Size(10000, row)
	assert.ErrorIs(t, err, domain.ErrInvalidRiskGeometry)
}

func TestNewSizerRejects(t *testing.T) {
	for _, cfg := range []SizerConfig{
		{RiskFraction: 0, StopMultiple: 1, TargetMultiple: 1},
		{RiskFraction: 1.5, StopMultiple: 1, TargetMultiple: 1},
		{RiskFraction: 0.01, StopMultiple: 0, TargetMultiple: 1},
		{RiskFraction: 0.01, StopMultiple: 1, TargetMultiple: -1},
	} {
		_, err := NewSizer(cfg)
		assert.ErrorIs(t, err, domain.ErrInvalidConfig, "%+v", cfg)
	}
}

func TestParseQuantityPolicy(t *testing.T) {
	p, err := ParseQuantityPolicy("fractional")
	require.NoError(t, err)
	assert.Equal(t, FractionalShares, p)

	p, err = ParseQuantityPolicy("")
	require.NoError(t, err)
	assert.Equal(t, WholeShares, p)

	_, err = ParseQuantityPolicy("lots")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
