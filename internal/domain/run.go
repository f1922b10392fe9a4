package domain

import "time"

// Rejections counts signals that did not open a position, by reason.
type Rejections struct {
	InvalidRiskGeometry int
	BelowMinimumSize    int
	InsufficientCapital int
}

// Total is the sum of all rejection counts.
func (r Rejections) Total() int {
	return r.InvalidRiskGeometry + r.BelowMinimumSize + r.InsufficientCapital
}

// BenchmarkResult is a fixed-share buy-and-hold of the benchmark symbol over
// the run's date range.
type BenchmarkResult struct {
	Symbol         string
	Shares         float64
	StartPrice     float64
	EndPrice       float64
	PctChange      float64
	MaxDrawdownPct float64
}

// Summary is the performance report for one simulation.
type Summary struct {
	TotalPnL          float64
	NumTrades         int
	Wins              int
	WinRate           float64
	AvgPnL            float64
	AvgBarsHeld       float64
	InitialCapital    float64
	FinalCapital      float64
	PctChange         float64
	MaxDrawdownPct    float64
	SignalsTotal      int
	SignalsTaken      int
	SignalsTakenPct   float64
	Rejections        Rejections
	SkippedSymbolDays int

	// Benchmark is nil when no benchmark series was available; Alpha is
	// only meaningful when it is set.
	Benchmark *BenchmarkResult
	Alpha     float64
}

// RunParams identifies the inputs of a simulation.
type RunParams struct {
	Strategy       string
	Start          time.Time
	End            time.Time
	Symbols        []string
	StopMultiple   float64
	TargetMultiple float64
	RiskFraction   float64
}

// Run is a completed backtest as persisted to the run store.
type Run struct {
	ID        string
	CreatedAt time.Time
	Params    RunParams
	Summary   Summary
	Trades    []TradeRecord
}
