package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibo/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func position() domain.Position {
	return domain.Position{
		Symbol: "AAPL", EntryDate: day(4), EntryIndex: 10,
		EntryPrice: 100, StopLoss: 98, TakeProfit: 103, Quantity: 10,
	}
}

func TestResolve(t *testing.T) {
	p := position()
	tests := []struct {
		name   string
		bar    domain.Bar
		status domain.PositionStatus
		price  float64
		closed bool
	}{
		{"inside", domain.Bar{Open: 100, High: 102, Low: 99, Close: 101}, domain.StatusOpen, 0, false},
		{"stop", domain.Bar{Open: 99, High: 99.5, Low: 97, Close: 97.5}, domain.StatusClosedStopped, 98, true},
		{"target", domain.Bar{Open: 101, High: 104, Low: 100.5, Close: 103.5}, domain.StatusClosedTarget, 103, true},
		{"both prefers stop", domain.Bar{Open: 100, High: 105, Low: 96, Close: 101}, domain.StatusClosedStopped, 98, true},
		{"touch stop", domain.Bar{Open: 99, High: 100, Low: 98, Close: 99}, domain.StatusClosedStopped, 98, true},
		{"touch target", domain.Bar{Open: 101, High: 103, Low: 100, Close: 102}, domain.StatusClosedTarget, 103, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, price, closed := Resolve(p, tt.bar)
			assert.Equal(t, tt.status, st)
			assert.Equal(t, tt.price, price)
			assert.Equal(t, tt.closed, closed)
		})
	}
}

func TestBookOneOpenPerSymbol(t *testing.T) {
	b := NewBook(CalendarDays)
	require.NoError(t, b.Open(position()))
	assert.ErrorIs(t, b.Open(position()), ErrPositionExists)
	assert.True(t, b.Has("AAPL"))
	assert.Equal(t, 1, b.Len())

	p, ok := b.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, domain.StatusOpen, p.Status)
}

func TestBookCloseCalendarDays(t *testing.T) {
	b := NewBook(CalendarDays)
	require.NoError(t, b.Open(position()))

	tr, err := b.Close("AAPL", day(8), 14, 103, domain.StatusClosedTarget)
	require.NoError(t, err)
	assert.Equal(t, 4, tr.BarsHeld)
	assert.InDelta(t, 30, tr.PnL, 1e-9)
	assert.Equal(t, domain.StatusClosedTarget, tr.Outcome)
	assert.False(t, b.Has("AAPL"))

	_, err = b.Close("AAPL", day(8), 14, 103, domain.StatusClosedTarget)
	assert.Error(t, err)
}

func TestBookCloseBarCount(t *testing.T) {
	b := NewBook(BarCount)
	require.NoError(t, b.Open(position()))

	tr, err := b.Close("AAPL", day(11), 15, 98, domain.StatusClosedStopped)
	require.NoError(t, err)
	assert.Equal(t, 5, tr.BarsHeld)
	assert.InDelta(t, -20, tr.PnL, 1e-9)
}

func TestBookCloseRejectsOpenStatus(t *testing.T) {
	b := NewBook(CalendarDays)
	require.NoError(t, b.Open(position()))
	_, err := b.Close("AAPL", day(5), 11, 100, domain.StatusOpen)
	assert.Error(t, err)
	assert.True(t, b.Has("AAPL"))
}

func TestParseBarsHeldMode(t *testing.T) {
	m, err := ParseBarsHeldMode("bars")
	require.NoError(t, err)
	assert.Equal(t, BarCount, m)
	_, err = ParseBarsHeldMode("weeks")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
