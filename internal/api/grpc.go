package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"bibo/internal/domain"
	"bibo/internal/engine"
	"bibo/internal/store"
	"bibo/pkg/bibo"
)

// SignalsServer is the server API for the Signals service.
type SignalsServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecentRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// SignalsServiceDesc describes the Signals service for grpc.Server. Both
// methods exchange google.protobuf.Struct messages.
var SignalsServiceDesc = grpc.ServiceDesc{
	ServiceName: bibo.ServiceName,
	HandlerType: (*SignalsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "RecentRuns", Handler: recentRunsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bibo/v1/signals.proto",
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SignalsServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: bibo.EvaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SignalsServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func recentRunsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SignalsServer).RecentRuns(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: bibo.RecentRunsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SignalsServer).RecentRuns(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Evaluator decides whether a symbol signals on a date.
type Evaluator interface {
	EvaluateSymbolToday(ctx context.Context, symbol string, asOf time.Time, capital float64) (*engine.Decision, error)
}

var _ SignalsServer = (*SignalService)(nil)

// SignalService implements SignalsServer over the live engine and the run
// store.
type SignalService struct {
	eval    Evaluator
	runs    store.RunStore
	capital float64
	today   func() time.Time
	log     *slog.Logger
}

// NewSignalService creates a SignalService. capital sizes requests that do
// not carry their own; today supplies the default date. runs may be nil.
func NewSignalService(eval Evaluator, runs store.RunStore, capital float64, today func() time.Time) *SignalService {
	if today == nil {
		today = func() time.Time { return domain.TradingDate(time.Now()) }
	}
	return &SignalService{
		eval:    eval,
		runs:    runs,
		capital: capital,
		today:   today,
		log:     slog.Default().With("component", "signals"),
	}
}

// Evaluate runs the entry strategy for one symbol and date.
func (s *SignalService) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := bibo.DecodeEvaluateRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Date.IsZero() {
		req.Date = s.today()
	}
	if req.Capital <= 0 {
		req.Capital = s.capital
	}

	d, err := s.eval.EvaluateSymbolToday(ctx, req.Symbol, req.Date, req.Capital)
	if err != nil {
		s.log.Warn("evaluate failed", "symbol", req.Symbol, "date", req.Date.Format(domain.DateLayout), "err", err)
		return nil, toStatus(err)
	}

	out := bibo.Evaluation{Symbol: req.Symbol, Date: domain.TradingDate(req.Date)}
	if d != nil {
		out.Signal = true
		out.Entry = d.Signal.Row.Close
		if d.Rejection != nil {
			out.Rejection = d.Rejection.Error()
		} else {
			out.StopLoss = d.Intent.StopLoss
			out.TakeProfit = d.Intent.TakeProfit
			out.Quantity = d.Intent.Quantity
		}
	}
	return out.Encode(), nil
}

// RecentRuns lists the newest persisted backtests.
func (s *SignalService) RecentRuns(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.runs == nil {
		return nil, status.Error(codes.Unimplemented, "no run store configured")
	}
	limit := int(in.GetFields()["limit"].GetNumberValue())
	if limit <= 0 {
		limit = 10
	}
	runs, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]bibo.RunSummary, len(runs))
	for i, r := range runs {
		out[i] = bibo.RunSummary{
			ID:             r.ID,
			CreatedAt:      r.CreatedAt,
			Strategy:       r.Params.Strategy,
			NumTrades:      r.Summary.NumTrades,
			TotalPnL:       r.Summary.TotalPnL,
			WinRate:        r.Summary.WinRate,
			PctChange:      r.Summary.PctChange,
			MaxDrawdownPct: r.Summary.MaxDrawdownPct,
		}
	}
	return bibo.EncodeRuns(out), nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrDataUnavailable), errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrExternalService):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
