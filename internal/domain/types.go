// Package domain holds the value types shared by the indicator, strategy,
// engine and backtest packages.
package domain

import (
	"fmt"
	"math"
	"time"
)

// Market identifies an exchange region. Only the US equity market is traded.
type Market string

const (
	MarketUS Market = "us"
)

// Bar is a single OHLCV observation. Timestamps are normalised to the
// exchange-local trading date (midnight UTC of that date) for daily bars.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	TradeCount int64
	VWAP       float64
}

// Validate checks the OHLC envelope: high is the maximum and low the minimum
// of the bar, and volume is non-negative.
func (b Bar) Validate() error {
	if b.High < math.Max(b.Open, math.Max(b.Close, b.Low)) {
		return fmt.Errorf("bar %s %s: high %.4f below body", b.Symbol, b.Timestamp.Format(DateLayout), b.High)
	}
	if b.Low > math.Min(b.Open, math.Min(b.Close, b.High)) {
		return fmt.Errorf("bar %s %s: low %.4f above body", b.Symbol, b.Timestamp.Format(DateLayout), b.Low)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s %s: negative volume", b.Symbol, b.Timestamp.Format(DateLayout))
	}
	return nil
}

// DateLayout is the canonical date format used in logs, CSV files and
// storage keys.
const DateLayout = "2006-01-02"

// TradingDate truncates t to its calendar date in UTC.
func TradingDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IndicatorRow is a Bar enriched with moving averages and volatility. Any
// field that has not accumulated enough history is NaN.
type IndicatorRow struct {
	Bar

	SMAShort  float64
	SMAMedium float64
	SMALong   float64
	TrueRange float64
	ATR       float64
}

// Defined reports whether every indicator on the row has a value.
func (r IndicatorRow) Defined() bool {
	return !math.IsNaN(r.SMAShort) && !math.IsNaN(r.SMAMedium) &&
		!math.IsNaN(r.SMALong) && !math.IsNaN(r.ATR)
}

// Signal is an accepted entry decision for a symbol on a date. It carries the
// row that triggered it so the sizer can read close and ATR.
type Signal struct {
	Symbol   string
	Strategy string
	Date     time.Time
	Row      IndicatorRow
}

// PositionStatus is the lifecycle state of a simulated position.
type PositionStatus int

const (
	StatusOpen PositionStatus = iota
	StatusClosedStopped
	StatusClosedTarget
	StatusClosedExpired
)

var statusNames = map[PositionStatus]string{
	StatusOpen:          "Open",
	StatusClosedStopped: "Stopped Out",
	StatusClosedTarget:  "Target Hit",
	StatusClosedExpired: "Expired",
}

// String returns the outcome label written to trade logs.
func (s PositionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PositionStatus(%d)", int(s))
}

// Closed reports whether s is terminal.
func (s PositionStatus) Closed() bool {
	return s != StatusOpen
}

// ParsePositionStatus is the inverse of PositionStatus.String.
func ParsePositionStatus(s string) (PositionStatus, error) {
	for st, name := range statusNames {
		if name == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown position status %q", s)
}

// Position is an open or closed simulated trade. Exactly one open Position
// exists per symbol at a time.
type Position struct {
	Symbol     string
	EntryDate  time.Time
	EntryIndex int // index of the entry bar in the symbol's series
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Quantity   float64
	Status     PositionStatus
}

// Cost is the capital committed when the position was opened.
func (p Position) Cost() float64 {
	return p.Quantity * p.EntryPrice
}

// TradeRecord is the terminal snapshot of a closed Position.
type TradeRecord struct {
	Symbol     string
	EntryDate  time.Time
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Quantity   float64
	ExitDate   time.Time
	ExitPrice  float64
	Outcome    PositionStatus
	PnL        float64
	BarsHeld   int
}

// EquityPoint is one sample of the capital curve, taken once per simulated
// date after exits and entries have been applied.
type EquityPoint struct {
	Date             time.Time
	TotalCapital     float64
	AvailableCapital float64
	MarkedEquity     float64
	DrawdownPct      float64
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks a live order after submission.
type OrderStatus string

const (
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// OrderIntent is a bracket entry: a limit buy with attached stop-loss and
// take-profit legs.
type OrderIntent struct {
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Quantity      float64
	LimitPrice    float64
	StopLoss      float64
	TakeProfit    float64
	TimeInForce   string
}

// Risk is the loss if the stop leg fills.
func (o OrderIntent) Risk() float64 {
	return o.Quantity * (o.LimitPrice - o.StopLoss)
}

// Order is an OrderIntent acknowledged by a broker.
type Order struct {
	OrderIntent

	ID          string
	Status      OrderStatus
	Capital     float64 // account cash when the order was sized
	SubmittedAt time.Time
}

// Holding is a position reported by the broker.
type Holding struct {
	Symbol        string
	Qty           float64
	AvgEntryPrice float64
	UnrealizedPL  float64
}

// AccountInfo is a snapshot of the brokerage account.
type AccountInfo struct {
	Cash           float64
	Equity         float64
	PortfolioValue float64
	BuyingPower    float64
}
