// Package broker defines the Broker interface and provides implementations
// for submitting bracket entries and reading account state.
package broker

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"bibo/internal/domain"
)

// Broker abstracts brokerage operations for the live scan.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// SubmitBracket sends a limit buy with attached stop-loss and
	// take-profit legs.
	SubmitBracket(ctx context.Context, intent domain.OrderIntent) (*domain.Order, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, orderID string) error

	// GetHoldings returns all current positions held at the brokerage.
	GetHoldings(ctx context.Context) ([]domain.Holding, error)

	// GetAccount returns a snapshot of the account's financial metrics.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)
}

var (
	idMu   sync.Mutex
	idMono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	idMono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewClientOrderID returns a time-sortable ULID for ClientOrderID, so a
// retried submission can be matched to the original.
func NewClientOrderID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), idMono).String()
}
