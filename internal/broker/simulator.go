package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bibo/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker implements the Broker interface for paper runs and tests.
// Bracket entries fill immediately at their limit price; the exit legs are
// not simulated.
type SimulatorBroker struct {
	mu       sync.Mutex
	cash     float64
	holdings map[string]*domain.Holding
	orders   map[string]*domain.Order
	seq      int
}

// NewSimulatorBroker creates a SimulatorBroker holding cash and no
// positions.
func NewSimulatorBroker(cash float64) *SimulatorBroker {
	return &SimulatorBroker{
		cash:     cash,
		holdings: make(map[string]*domain.Holding),
		orders:   make(map[string]*domain.Order),
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// Hold seeds an existing position.
func (b *SimulatorBroker) Hold(symbol string, qty, avg float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdings[symbol] = &domain.Holding{Symbol: symbol, Qty: qty, AvgEntryPrice: avg}
}

// SubmitBracket fills the entry at its limit price.
func (b *SimulatorBroker) SubmitBracket(ctx context.Context, in domain.OrderIntent) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	cost := in.Quantity * in.LimitPrice
	if cost > b.cash {
		return nil, fmt.Errorf("%s: %w: need %.2f, have %.2f", in.Symbol, domain.ErrInsufficientCapital, cost, b.cash)
	}
	if in.ClientOrderID == "" {
		in.ClientOrderID = NewClientOrderID()
	}

	b.seq++
	o := &domain.Order{
		OrderIntent: in,
		ID:          fmt.Sprintf("sim-%d", b.seq),
		Status:      domain.OrderStatusFilled,
		Capital:     b.cash,
		SubmittedAt: time.Now().UTC(),
	}
	b.orders[o.ID] = o
	b.cash -= cost

	h, ok := b.holdings[in.Symbol]
	if !ok {
		h = &domain.Holding{Symbol: in.Symbol}
		b.holdings[in.Symbol] = h
	}
	total := h.Qty + in.Quantity
	h.AvgEntryPrice = (h.AvgEntryPrice*h.Qty + cost) / total
	h.Qty = total

	cp := *o
	return &cp, nil
}

// CancelOrder marks a submitted order cancelled. Filled orders cannot be
// cancelled.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	if o.Status != domain.OrderStatusSubmitted {
		return fmt.Errorf("order %s is %s", orderID, o.Status)
	}
	o.Status = domain.OrderStatusCancelled
	return nil
}

// GetHoldings returns all simulated positions sorted by symbol.
func (b *SimulatorBroker) GetHoldings(_ context.Context) ([]domain.Holding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Holding, 0, len(b.holdings))
	for _, h := range b.holdings {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// GetAccount values holdings at cost.
func (b *SimulatorBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	equity := b.cash
	for _, h := range b.holdings {
		equity += h.Qty * h.AvgEntryPrice
	}
	return &domain.AccountInfo{
		Cash:           b.cash,
		Equity:         equity,
		PortfolioValue: equity,
		BuyingPower:    b.cash,
	}, nil
}

// Orders returns every order submitted so far.
func (b *SimulatorBroker) Orders() []domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientOrderID < out[j].ClientOrderID })
	return out
}
