package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trend describes the direction of the index relative to the base period.
type Trend string

const (
	TrendIncrease Trend = "increase"
	TrendDecrease Trend = "decrease"
	TrendStable   Trend = "stable"
)

var hundred = decimal.NewFromInt(100)

// IndexResult captures both baskets and the derived index.
type IndexResult struct {
	BaseDay       time.Time
	CurrentDay    time.Time
	BaseBasket    []BasketItem
	CurrentBasket []BasketItem
	BaseCost      decimal.Decimal
	CurrentCost   decimal.Decimal
	Index         decimal.Decimal
}

// Trend compares the index with 100.
func (r IndexResult) Trend() Trend {
	switch r.Index.Cmp(hundred) {
	case 1:
		return TrendIncrease
	case -1:
		return TrendDecrease
	default:
		return TrendStable
	}
}

// Change is the absolute percent distance from the base period.
func (r IndexResult) Change() decimal.Decimal {
	return r.Index.Sub(hundred).Abs()
}

// Interpretation renders the trend as a sentence.
func (r IndexResult) Interpretation() string {
	switch r.Trend() {
	case TrendIncrease:
		return fmt.Sprintf("Prices have increased by %s%% since the base period.", r.Change().StringFixed(2))
	case TrendDecrease:
		return fmt.Sprintf("Prices have decreased by %s%% since the base period.", r.Change().StringFixed(2))
	default:
		return "Prices have remained stable since the base period."
	}
}
