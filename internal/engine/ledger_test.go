package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibo/internal/domain"
)

func TestLedgerReserveRelease(t *testing.T) {
	l := NewLedger(10000)
	require.NoError(t, l.Reserve(4000))
	require.NoError(t, l.Reserve(5000))
	assert.Equal(t, 10000.0, l.Total())
	assert.Equal(t, 1000.0, l.Available())
	assert.Equal(t, 2, l.Open())

	err := l.Reserve(1500)
	assert.ErrorIs(t, err, domain.ErrInsufficientCapital)
	assert.Equal(t, 1000.0, l.Available())

	l.Release(4000, 250)
	assert.Equal(t, 10250.0, l.Total())
	assert.Equal(t, 5250.0, l.Available())

	l.Release(5000, -100)
	assert.Equal(t, 10150.0, l.Total())
	assert.Equal(t, 10150.0, l.Available())
	assert.Equal(t, 0.0, l.Committed())
	assert.Equal(t, 0, l.Open())
}

func TestLedgerRejectsNonPositiveCost(t *testing.T) {
	l := NewLedger(100)
	assert.ErrorIs(t, l.Reserve(0), domain.ErrInvalidRiskGeometry)
	assert.ErrorIs(t, l.Reserve(-5), domain.ErrInvalidRiskGeometry)
}

func TestLedgerAvailableNeverExceedsTotal(t *testing.T) {
	l := NewLedger(1000)
	costs := []float64{100.1, 250.37, 333.33, 99.99}
	for _, c := range costs {
		require.NoError(t, l.Reserve(c))
		assert.LessOrEqual(t, l.Available(), l.Total())
		assert.GreaterOrEqual(t, l.Available(), 0.0)
	}
	for i, c := range costs {
		l.Release(c, float64(i)-1.5)
		assert.LessOrEqual(t, l.Available(), l.Total()+1e-9)
		assert.GreaterOrEqual(t, l.Available(), 0.0)
	}
	assert.Equal(t, l.Total(), l.Available())
}
