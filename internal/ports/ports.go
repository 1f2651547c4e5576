package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"CPITracker/internal/domain"
)

// ProductRegistry reconciles source URLs with internal product identities.
type ProductRegistry interface {
	Resolve(ctx context.Context, url, name, category string) (domain.Product, error)
}

// PriceHistory is the append-only ledger of price observations.
type PriceHistory interface {
	HasObservationOn(ctx context.Context, productID int64, day time.Time) (bool, error)
	Append(ctx context.Context, productID int64, value decimal.Decimal, at time.Time) error
	EarliestObservationDay(ctx context.Context) (time.Time, bool, error)
	LatestObservationDay(ctx context.Context) (time.Time, bool, error)
	BasketOn(ctx context.Context, day time.Time) ([]domain.BasketItem, error)
}

// RecentObservations feeds the export projection.
type RecentObservations interface {
	RecentObservations(ctx context.Context, limit int) ([]domain.ExportRecord, error)
}

// Store is the full persistence handle owned by one process run.
type Store interface {
	ProductRegistry
	PriceHistory
	RecentObservations
	Close() error
}

// PageFetcher downloads raw page content.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// DayGuard coordinates collection across overlapping runs.
type DayGuard interface {
	Claim(ctx context.Context, productID int64, day time.Time) (bool, error)
	Release(ctx context.Context, productID int64, day time.Time) error
}

// ObservationPublisher fans out freshly stored observations.
type ObservationPublisher interface {
	PublishObservation(ctx context.Context, product domain.Product, obs domain.Observation) error
}

// Notifier streams the index report to a chat or other channel.
type Notifier interface {
	PublishReport(ctx context.Context, report string) error
}
