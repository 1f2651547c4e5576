package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"CPITracker/internal/domain"
	"CPITracker/internal/ports"
)

var (
	// ErrInsufficientData means there is no observation day or an empty basket.
	ErrInsufficientData = errors.New("not enough data to calculate CPI")
	// ErrZeroBaseCost means the base basket costs nothing and the ratio is undefined.
	ErrZeroBaseCost = errors.New("base cost is zero, cannot calculate CPI")
)

var hundred = decimal.NewFromInt(100)

// IndexCalculator compares the earliest and the latest basket in the ledger.
type IndexCalculator struct {
	history ports.PriceHistory
}

// NewIndexCalculator binds the calculator to a price history.
func NewIndexCalculator(history ports.PriceHistory) *IndexCalculator {
	return &IndexCalculator{history: history}
}

// Compute is read-only and safe to call at any time.
func (c *IndexCalculator) Compute(ctx context.Context) (domain.IndexResult, error) {
	var result domain.IndexResult

	baseDay, ok, err := c.history.EarliestObservationDay(ctx)
	if err != nil {
		return result, fmt.Errorf("find base period: %w", err)
	}
	if !ok {
		return result, ErrInsufficientData
	}
	currentDay, ok, err := c.history.LatestObservationDay(ctx)
	if err != nil {
		return result, fmt.Errorf("find current period: %w", err)
	}
	if !ok {
		return result, ErrInsufficientData
	}
	result.BaseDay = baseDay
	result.CurrentDay = currentDay

	if result.BaseBasket, err = c.history.BasketOn(ctx, baseDay); err != nil {
		return result, fmt.Errorf("load base basket: %w", err)
	}
	if len(result.BaseBasket) == 0 {
		return result, ErrInsufficientData
	}
	if result.CurrentBasket, err = c.history.BasketOn(ctx, currentDay); err != nil {
		return result, fmt.Errorf("load current basket: %w", err)
	}
	if len(result.CurrentBasket) == 0 {
		return result, ErrInsufficientData
	}

	result.BaseCost = domain.BasketCost(result.BaseBasket)
	result.CurrentCost = domain.BasketCost(result.CurrentBasket)
	if result.BaseCost.IsZero() {
		return result, ErrZeroBaseCost
	}

	result.Index = result.CurrentCost.Div(result.BaseCost).Mul(hundred)
	return result, nil
}
