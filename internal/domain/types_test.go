package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	// Verify enum constants are defined correctly.
	if OrderSideBuy != "buy" {
		t.Errorf("OrderSideBuy = %q, want %q", OrderSideBuy, "buy")
	}
	if MarketUS != "us" {
		t.Error("Market constants have unexpected values")
	}

	intent := OrderIntent{Symbol: "AAPL", Quantity: 10, LimitPrice: 100, StopLoss: 98}
	if got := intent.Risk(); got != 20 {
		t.Errorf("intent.Risk() = %v, want 20", got)
	}

	pos := Position{Symbol: "AAPL", Quantity: 4, EntryPrice: 25}
	if got := pos.Cost(); got != 100 {
		t.Errorf("pos.Cost() = %v, want 100", got)
	}
	if pos.Status.Closed() {
		t.Error("zero-value Position should be open")
	}
}

func TestBarValidate(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		bar     Bar
		wantErr bool
	}{
		{"ok", Bar{Symbol: "X", Timestamp: day, Open: 10, High: 12, Low: 9, Close: 11, Volume: 100}, false},
		{"flat", Bar{Symbol: "X", Timestamp: day, Open: 10, High: 10, Low: 10, Close: 10}, false},
		{"high below close", Bar{Symbol: "X", Timestamp: day, Open: 10, High: 10.5, Low: 9, Close: 11}, true},
		{"low above open", Bar{Symbol: "X", Timestamp: day, Open: 10, High: 12, Low: 10.5, Close: 11}, true},
		{"negative volume", Bar{Symbol: "X", Timestamp: day, Open: 10, High: 12, Low: 9, Close: 11, Volume: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bar.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIndicatorRowDefined(t *testing.T) {
	row := IndicatorRow{SMAShort: 1, SMAMedium: 1, SMALong: 1, ATR: 0}
	if !row.Defined() {
		t.Error("row with all indicators set should be defined")
	}
	row.SMALong = math.NaN()
	if row.Defined() {
		t.Error("row with NaN SMALong should not be defined")
	}
}

func TestPositionStatusRoundTrip(t *testing.T) {
	for _, st := range []PositionStatus{StatusOpen, StatusClosedStopped, StatusClosedTarget, StatusClosedExpired} {
		got, err := ParsePositionStatus(st.String())
		if err != nil {
			t.Fatalf("ParsePositionStatus(%q): %v", st.String(), err)
		}
		if got != st {
			t.Errorf("ParsePositionStatus(%q) = %v, want %v", st.String(), got, st)
		}
	}
	if _, err := ParsePositionStatus("Liquidated"); err == nil {
		t.Error("ParsePositionStatus should reject unknown labels")
	}
	if StatusClosedTarget.String() != "Target Hit" {
		t.Errorf("StatusClosedTarget = %q, want %q", StatusClosedTarget.String(), "Target Hit")
	}
}

func TestTradingDate(t *testing.T) {
	ts := time.Date(2024, 3, 15, 4, 0, 0, 0, time.UTC)
	got := TradingDate(ts)
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("TradingDate(%v) = %v, want %v", ts, got, want)
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	if errors.Is(ErrInsufficientCapital, ErrInvalidRiskGeometry) {
		t.Error("sentinel errors must not match each other")
	}
}
