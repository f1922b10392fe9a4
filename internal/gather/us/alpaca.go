package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"bibo/internal/domain"
	"bibo/internal/gather"
	"bibo/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.Provider = (*AlpacaProvider)(nil)
var _ gather.SnapshotProvider = (*AlpacaProvider)(nil)

// marketData is the subset of *marketdata.Client used here.
type marketData interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error)
}

// ---------------------------------------------------------------------------
// AlpacaProvider
// ---------------------------------------------------------------------------

// AlpacaProvider fetches split-adjusted daily bars from the Alpaca
// market-data API. Calls are paced by a shared rate limiter.
type AlpacaProvider struct {
	client  marketData
	feed    marketdata.Feed
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaProvider creates an AlpacaProvider. dataURL may be empty for the
// SDK default; feed is "iex" or "sip".
func NewAlpacaProvider(apiKey, apiSecret, dataURL, feed string, rateLimitPerMin int) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return newAlpacaProvider(marketdata.NewClient(opts), feed, rateLimitPerMin)
}

func newAlpacaProvider(client marketData, feed string, rateLimitPerMin int) *AlpacaProvider {
	f := marketdata.Feed(feed)
	if f == "" {
		f = marketdata.IEX
	}
	return &AlpacaProvider{
		client:  client,
		feed:    f,
		limiter: util.NewRateLimiter(rateLimitPerMin),
		log:     slog.Default().With("provider", "alpaca"),
	}
}

// DailyBars returns the symbol's daily bars within [start, end]. An empty
// response is ErrDataUnavailable; transport errors wrap ErrExternalService.
func (p *AlpacaProvider) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(symbol)
	raw, err := p.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.Split,
		Start:      start,
		End:        end.AddDate(0, 0, 1),
		Feed:       p.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w: %w", symbol, domain.ErrExternalService, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: no bars in %s..%s: %w", symbol,
			start.Format(domain.DateLayout), end.Format(domain.DateLayout), domain.ErrDataUnavailable)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, fromAlpaca(symbol, ab))
	}
	bars = gather.Normalize(symbol, bars)

	p.log.Debug("fetched daily bars", "symbol", symbol, "bars", len(bars))
	return bars, nil
}

// DailyBarSnapshot returns today's in-progress daily bar.
func (p *AlpacaProvider) DailyBarSnapshot(ctx context.Context, symbol string) (domain.Bar, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.Bar{}, err
	}
	symbol = strings.ToUpper(symbol)
	snap, err := p.client.GetSnapshot(symbol, marketdata.GetSnapshotRequest{Feed: p.feed})
	if err != nil {
		return domain.Bar{}, fmt.Errorf("GetSnapshot %s: %w: %w", symbol, domain.ErrExternalService, err)
	}
	if snap == nil || snap.DailyBar == nil {
		return domain.Bar{}, fmt.Errorf("%s: snapshot has no daily bar: %w", symbol, domain.ErrDataUnavailable)
	}
	b := fromAlpaca(symbol, *snap.DailyBar)
	b.Timestamp = domain.TradingDate(b.Timestamp)
	return b, nil
}

func fromAlpaca(symbol string, ab marketdata.Bar) domain.Bar {
	return domain.Bar{
		Symbol:     symbol,
		Timestamp:  tradingDateET(ab.Timestamp),
		Open:       ab.Open,
		High:       ab.High,
		Low:        ab.Low,
		Close:      ab.Close,
		Volume:     float64(ab.Volume),
		TradeCount: int64(ab.TradeCount),
		VWAP:       ab.VWAP,
	}
}

// tradingDateET maps an Alpaca daily bar timestamp (midnight New York) to
// its trading date at midnight UTC.
func tradingDateET(ts time.Time) time.Time {
	if et, err := time.LoadLocation("America/New_York"); err == nil {
		ts = ts.In(et)
	}
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
