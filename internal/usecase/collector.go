package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"CPITracker/internal/domain"
	"CPITracker/internal/metrics"
	"CPITracker/internal/ports"
)

// Extractor turns fetched page content into a price.
type Extractor func(content []byte, locator string) (decimal.Decimal, error)

// CollectorDeps wires the driven adapters into the collection pass.
type CollectorDeps struct {
	Registry  ports.ProductRegistry
	History   ports.PriceHistory
	Fetcher   ports.PageFetcher
	Extract   Extractor
	Guard     ports.DayGuard
	Publisher ports.ObservationPublisher
	Metrics   *metrics.Collection
	Logger    *slog.Logger
	Clock     func() time.Time
	Pause     time.Duration
}

// Collector runs one collection pass over the tracked products.
type Collector struct {
	registry  ports.ProductRegistry
	history   ports.PriceHistory
	fetcher   ports.PageFetcher
	extract   Extractor
	guard     ports.DayGuard
	publisher ports.ObservationPublisher
	metrics   *metrics.Collection
	logger    *slog.Logger
	clock     func() time.Time
	pause     time.Duration
}

// NewCollector constructs the orchestration component.
func NewCollector(deps CollectorDeps) *Collector {
	c := &Collector{
		registry:  deps.Registry,
		history:   deps.History,
		fetcher:   deps.Fetcher,
		extract:   deps.Extract,
		guard:     deps.Guard,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		clock:     deps.Clock,
		pause:     deps.Pause,
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Run processes products in list order. Per-product fetch and extraction
// failures land in the report; storage faults abort the run.
func (c *Collector) Run(ctx context.Context, products []domain.TrackedProduct) (RunReport, error) {
	var report RunReport
	if c.registry == nil || c.history == nil || c.fetcher == nil || c.extract == nil {
		return report, fmt.Errorf("collector is not fully configured")
	}

	report.StartedAt = c.clock()
	fetches := 0

	for i, entry := range products {
		if err := entry.Validate(); err != nil {
			c.logger.Warn("skip invalid product entry", "index", i, "name", entry.Name, "error", err)
			report.Invalid++
			c.metrics.IncResult(metrics.ResultInvalid)
			continue
		}

		log := c.logger.With("product", entry.Name, "url", entry.URL)
		log.Info("processing product")

		product, err := c.registry.Resolve(ctx, entry.URL, entry.Name, entry.Category)
		if err != nil {
			return report, fmt.Errorf("resolve product %s: %w", entry.URL, err)
		}
		log = log.With("product_id", product.ID)
		log.Debug("product resolved", "product_key", product.Key)

		today := c.clock()
		collected, err := c.history.HasObservationOn(ctx, product.ID, today)
		if err != nil {
			return report, fmt.Errorf("check observation for %s: %w", entry.URL, err)
		}
		if collected {
			log.Info("already collected today, skipping")
			report.AlreadyCollected++
			c.metrics.IncResult(metrics.ResultSkipped)
			continue
		}

		if c.guard != nil {
			claimed, err := c.guard.Claim(ctx, product.ID, today)
			if err != nil {
				return report, fmt.Errorf("claim %s: %w", entry.URL, err)
			}
			if !claimed {
				log.Info("claimed by a concurrent run, skipping")
				report.AlreadyCollected++
				c.metrics.IncResult(metrics.ResultSkipped)
				continue
			}
		}

		if fetches > 0 {
			if err := c.wait(ctx); err != nil {
				c.releaseClaim(ctx, log, product.ID, today)
				return report, err
			}
		}
		fetches++

		value, err := c.collect(ctx, entry)
		if err != nil {
			log.Warn("could not retrieve price", "error", err)
			report.Failures = append(report.Failures, ProductFailure{Product: entry, Err: err})
			c.metrics.IncResult(metrics.ResultFailed)
			c.releaseClaim(ctx, log, product.ID, today)
			continue
		}

		observedAt := c.clock()
		if err := c.history.Append(ctx, product.ID, value, observedAt); err != nil {
			c.releaseClaim(ctx, log, product.ID, today)
			return report, fmt.Errorf("append price for %s: %w", entry.URL, err)
		}
		log.Info("price collected", "price", value.StringFixed(2))
		report.Collected++
		c.metrics.IncResult(metrics.ResultCollected)

		c.publish(ctx, log, product, domain.Observation{ProductID: product.ID, Value: value, ObservedAt: observedAt})
	}

	report.FinishedAt = c.clock()
	c.metrics.RunFinished(report.FinishedAt, report.Collected)
	return report, nil
}

func (c *Collector) collect(ctx context.Context, entry domain.TrackedProduct) (decimal.Decimal, error) {
	start := time.Now()

	content, err := c.fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		c.metrics.ObserveFetch(start, "fetch_error")
		return decimal.Zero, fmt.Errorf("fetch: %w", err)
	}

	value, err := c.extract(content, entry.Locator)
	if err != nil {
		outcome := "extract_error"
		if errors.Is(err, domain.ErrPriceNotFound) {
			outcome = "not_found"
		}
		c.metrics.ObserveFetch(start, outcome)
		return decimal.Zero, fmt.Errorf("extract: %w", err)
	}

	c.metrics.ObserveFetch(start, "ok")
	return value, nil
}

func (c *Collector) wait(ctx context.Context) error {
	if c.pause <= 0 {
		return nil
	}
	timer := time.NewTimer(c.pause)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Collector) releaseClaim(ctx context.Context, log *slog.Logger, productID int64, day time.Time) {
	if c.guard == nil {
		return
	}
	if err := c.guard.Release(context.WithoutCancel(ctx), productID, day); err != nil {
		log.Warn("release day claim", "error", err)
	}
}

func (c *Collector) publish(ctx context.Context, log *slog.Logger, product domain.Product, obs domain.Observation) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishObservation(ctx, product, obs); err != nil {
		log.Warn("publish observation", "error", err)
	}
}
