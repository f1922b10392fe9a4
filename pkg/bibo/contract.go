package bibo

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Service and method names of the Signals gRPC service. Messages are
// google.protobuf.Struct values keyed by the field names below.
const (
	ServiceName      = "bibo.v1.Signals"
	EvaluateMethod   = "/" + ServiceName + "/Evaluate"
	RecentRunsMethod = "/" + ServiceName + "/RecentRuns"

	dateLayout = "2006-01-02"
)

// EvaluateRequest asks whether symbol signals on Date.
type EvaluateRequest struct {
	Symbol  string
	Date    time.Time // zero means the server's current trading date
	Capital float64   // zero means the server's default capital
}

// Evaluation is the server's answer for one symbol and date.
type Evaluation struct {
	Symbol     string
	Date       time.Time
	Signal     bool
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Quantity   float64
	// Rejection explains why a signal could not be sized.
	Rejection string
}

// RunSummary is a persisted backtest's headline numbers.
type RunSummary struct {
	ID             string
	CreatedAt      time.Time
	Strategy       string
	NumTrades      int
	TotalPnL       float64
	WinRate        float64
	PctChange      float64
	MaxDrawdownPct float64
}

// Encode converts r to its wire form.
func (r EvaluateRequest) Encode() *structpb.Struct {
	fields := map[string]*structpb.Value{
		"symbol":  structpb.NewStringValue(r.Symbol),
		"capital": structpb.NewNumberValue(r.Capital),
	}
	if !r.Date.IsZero() {
		fields["date"] = structpb.NewStringValue(r.Date.Format(dateLayout))
	}
	return &structpb.Struct{Fields: fields}
}

// DecodeEvaluateRequest is the inverse of EvaluateRequest.Encode.
func DecodeEvaluateRequest(s *structpb.Struct) (EvaluateRequest, error) {
	f := s.GetFields()
	r := EvaluateRequest{
		Symbol:  f["symbol"].GetStringValue(),
		Capital: f["capital"].GetNumberValue(),
	}
	if r.Symbol == "" {
		return r, fmt.Errorf("symbol is required")
	}
	if d := f["date"].GetStringValue(); d != "" {
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			return r, fmt.Errorf("date: %w", err)
		}
		r.Date = t
	}
	return r, nil
}

// Encode converts e to its wire form.
func (e Evaluation) Encode() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"symbol":      structpb.NewStringValue(e.Symbol),
		"date":        structpb.NewStringValue(e.Date.Format(dateLayout)),
		"signal":      structpb.NewBoolValue(e.Signal),
		"entry":       structpb.NewNumberValue(e.Entry),
		"stop_loss":   structpb.NewNumberValue(e.StopLoss),
		"take_profit": structpb.NewNumberValue(e.TakeProfit),
		"quantity":    structpb.NewNumberValue(e.Quantity),
		"rejection":   structpb.NewStringValue(e.Rejection),
	}}
}

// DecodeEvaluation is the inverse of Evaluation.Encode.
func DecodeEvaluation(s *structpb.Struct) (Evaluation, error) {
	f := s.GetFields()
	e := Evaluation{
		Symbol:     f["symbol"].GetStringValue(),
		Signal:     f["signal"].GetBoolValue(),
		Entry:      f["entry"].GetNumberValue(),
		StopLoss:   f["stop_loss"].GetNumberValue(),
		TakeProfit: f["take_profit"].GetNumberValue(),
		Quantity:   f["quantity"].GetNumberValue(),
		Rejection:  f["rejection"].GetStringValue(),
	}
	d, err := time.Parse(dateLayout, f["date"].GetStringValue())
	if err != nil {
		return e, fmt.Errorf("date: %w", err)
	}
	e.Date = d
	return e, nil
}

// EncodeRuns converts run summaries to their wire form.
func EncodeRuns(runs []RunSummary) *structpb.Struct {
	list := make([]*structpb.Value, len(runs))
	for i, r := range runs {
		list[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"id":               structpb.NewStringValue(r.ID),
			"created_at":       structpb.NewStringValue(r.CreatedAt.UTC().Format(time.RFC3339)),
			"strategy":         structpb.NewStringValue(r.Strategy),
			"num_trades":       structpb.NewNumberValue(float64(r.NumTrades)),
			"total_pnl":        structpb.NewNumberValue(r.TotalPnL),
			"win_rate":         structpb.NewNumberValue(r.WinRate),
			"pct_change":       structpb.NewNumberValue(r.PctChange),
			"max_drawdown_pct": structpb.NewNumberValue(r.MaxDrawdownPct),
		}})
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"runs": structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}
}

// DecodeRuns is the inverse of EncodeRuns.
func DecodeRuns(s *structpb.Struct) ([]RunSummary, error) {
	values := s.GetFields()["runs"].GetListValue().GetValues()
	out := make([]RunSummary, 0, len(values))
	for _, v := range values {
		f := v.GetStructValue().GetFields()
		created, err := time.Parse(time.RFC3339, f["created_at"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("created_at: %w", err)
		}
		out = append(out, RunSummary{
			ID:             f["id"].GetStringValue(),
			CreatedAt:      created,
			Strategy:       f["strategy"].GetStringValue(),
			NumTrades:      int(f["num_trades"].GetNumberValue()),
			TotalPnL:       f["total_pnl"].GetNumberValue(),
			WinRate:        f["win_rate"].GetNumberValue(),
			PctChange:      f["pct_change"].GetNumberValue(),
			MaxDrawdownPct: f["max_drawdown_pct"].GetNumberValue(),
		})
	}
	return out, nil
}

// RecentRunsRequest encodes a limit for RecentRuns.
func RecentRunsRequest(limit int) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"limit": structpb.NewNumberValue(float64(limit)),
	}}
}
