package backtest

import (
	"time"

	"github.com/google/uuid"

	"bibo/internal/domain"
)

// NewRun packages a result for the run store under a fresh ID.
func NewRun(res *Result) *domain.Run {
	return &domain.Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Params:    res.Params,
		Summary:   res.Summary,
		Trades:    res.Trades,
	}
}
