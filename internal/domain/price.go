package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrPriceNotFound means the locator matched no element.
	ErrPriceNotFound = errors.New("price element not found")
	// ErrPriceUnparseable means the matched element holds no number.
	ErrPriceUnparseable = errors.New("price text not parseable")
)

// Observation is a single immutable price reading.
type Observation struct {
	ProductID  int64
	Value      decimal.Decimal
	ObservedAt time.Time
}

// BasketItem is the price a product contributes to a basket.
type BasketItem struct {
	ProductID int64
	Name      string
	Value     decimal.Decimal
}

// BasketCost sums the item values.
func BasketCost(items []BasketItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Value)
	}
	return total
}

// ExportRecord is the flat projection of an observation joined with its product.
type ExportRecord struct {
	ProductKey  uuid.UUID
	ProductName string
	Category    string
	Price       decimal.Decimal
	ObservedAt  time.Time
	SourceURL   string
}

// DayOf returns the calendar day of t (in t's own location) as midnight UTC.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
