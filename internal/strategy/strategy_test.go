package strategy

import (
	"errors"
	"math"
	"testing"

	"bibo/internal/domain"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name     string
	lookback int
	calls    int
}

func (s *stubStrategy) Name() string  { return s.name }
func (s *stubStrategy) Lookback() int { return s.lookback }
func (s *stubStrategy) Evaluate(_ []domain.IndicatorRow, _ *domain.IndicatorRow) bool {
	s.calls++
	return true
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	s := &stubStrategy{name: "test-strategy"}

	r.Register(s)

	got, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	if got.Name() != "test-strategy" {
		t.Errorf("Get returned strategy with Name() = %q, want %q", got.Name(), "test-strategy")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered strategy")
	}
	if _, err := r.Lookup("nonexistent"); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Lookup error = %v, want ErrInvalidConfig", err)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubStrategy{name: "beta"})
	r.Register(&stubStrategy{name: "alpha"})

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

func definedRow() domain.IndicatorRow {
	return domain.IndicatorRow{SMAShort: 1, SMAMedium: 1, SMALong: 1, ATR: 1}
}

func TestEvaluateAtSkipsUndefinedRows(t *testing.T) {
	rows := []domain.IndicatorRow{definedRow(), definedRow(), definedRow()}
	rows[0].SMALong = math.NaN()
	s := &stubStrategy{name: "stub", lookback: 2}

	if EvaluateAt(s, rows, 1, nil) {
		t.Error("EvaluateAt on window with NaN row = true, want false")
	}
	if !EvaluateAt(s, rows, 2, nil) {
		t.Error("EvaluateAt on defined window = false, want true")
	}
	if EvaluateAt(s, rows, 0, nil) {
		t.Error("EvaluateAt before lookback fills = true, want false")
	}
	if EvaluateAt(s, rows, 3, nil) {
		t.Error("EvaluateAt past end = true, want false")
	}
	if s.calls != 1 {
		t.Errorf("Evaluate called %d times, want 1", s.calls)
	}
}

func TestMarketUp(t *testing.T) {
	up := domain.IndicatorRow{Bar: domain.Bar{Close: 110}, SMAShort: 1, SMAMedium: 1, SMALong: 100, ATR: 1}
	down := up
	down.Close = 90
	undefined := up
	undefined.SMALong = math.NaN()
	undefined.Close = math.Inf(1)

	tests := []struct {
		name string
		row  *domain.IndicatorRow
		want bool
	}{
		{"above long SMA", &up, true},
		{"below long SMA", &down, false},
		{"undefined long SMA", &undefined, false},
		{"missing row", nil, false},
	}
	for _, tt := range tests {
		if got := MarketUp(tt.row); got != tt.want {
			t.Errorf("%s: MarketUp = %v, want %v", tt.name, got, tt.want)
		}
	}
}
