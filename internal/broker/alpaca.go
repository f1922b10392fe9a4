package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"bibo/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*AlpacaBroker)(nil)

// tradingClient is the subset of *alpaca.Client used by AlpacaBroker.
type tradingClient interface {
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	CancelOrder(orderID string) error
	GetPositions() ([]alpaca.Position, error)
	GetAccount() (*alpaca.Account, error)
}

// AlpacaBroker implements the Broker interface using the Alpaca trading API.
type AlpacaBroker struct {
	client tradingClient
}

// NewAlpacaBroker creates a new AlpacaBroker configured with the given
// credentials and API endpoint (paper or live).
func NewAlpacaBroker(apiKey, apiSecret, baseURL string) *AlpacaBroker {
	return &AlpacaBroker{client: alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

func price(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v).Round(2)
	return &d
}

func timeInForce(s string) alpaca.TimeInForce {
	switch strings.ToLower(s) {
	case "day":
		return alpaca.Day
	default:
		return alpaca.GTC
	}
}

// SubmitBracket places a limit buy with a bracket order class. Prices are
// rounded to cents.
func (b *AlpacaBroker) SubmitBracket(ctx context.Context, in domain.OrderIntent) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.ClientOrderID == "" {
		in.ClientOrderID = NewClientOrderID()
	}
	qty := decimal.NewFromFloat(in.Quantity)

	o, err := b.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        in.Symbol,
		Qty:           &qty,
		Side:          alpaca.Buy,
		Type:          alpaca.Limit,
		TimeInForce:   timeInForce(in.TimeInForce),
		LimitPrice:    price(in.LimitPrice),
		ClientOrderID: in.ClientOrderID,
		OrderClass:    alpaca.Bracket,
		TakeProfit:    &alpaca.TakeProfit{LimitPrice: price(in.TakeProfit)},
		StopLoss:      &alpaca.StopLoss{StopPrice: price(in.StopLoss)},
	})
	if err != nil {
		return nil, fmt.Errorf("placing bracket for %s: %w: %w", in.Symbol, domain.ErrExternalService, err)
	}

	return &domain.Order{
		OrderIntent: in,
		ID:          o.ID,
		Status:      domain.OrderStatusSubmitted,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// CancelOrder requests cancellation of an open order via the Alpaca API.
func (b *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.client.CancelOrder(orderID); err != nil {
		return fmt.Errorf("cancelling %s: %w: %w", orderID, domain.ErrExternalService, err)
	}
	return nil
}

// GetHoldings returns all current positions from the Alpaca account.
func (b *AlpacaBroker) GetHoldings(ctx context.Context) ([]domain.Holding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	positions, err := b.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("listing positions: %w: %w", domain.ErrExternalService, err)
	}
	out := make([]domain.Holding, 0, len(positions))
	for _, p := range positions {
		out = append(out, domain.Holding{
			Symbol:        p.Symbol,
			Qty:           p.Qty.InexactFloat64(),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
		})
	}
	return out, nil
}

// GetAccount returns the current account information from the Alpaca API.
func (b *AlpacaBroker) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, err := b.client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("reading account: %w: %w", domain.ErrExternalService, err)
	}
	return &domain.AccountInfo{
		Cash:           a.Cash.InexactFloat64(),
		Equity:         a.Equity.InexactFloat64(),
		PortfolioValue: a.PortfolioValue.InexactFloat64(),
		BuyingPower:    a.BuyingPower.InexactFloat64(),
	}, nil
}
