package usecase

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CPITracker/internal/domain"
	"CPITracker/internal/infrastructure/cache"
	"CPITracker/internal/infrastructure/parser"
	"CPITracker/internal/infrastructure/storage"
	"CPITracker/internal/metrics"
)

type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, url)
	page, ok := s.pages[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return []byte(page), nil
}

type recordingPublisher struct {
	events []domain.Observation
}

func (r *recordingPublisher) PublishObservation(ctx context.Context, product domain.Product, obs domain.Observation) error {
	r.events = append(r.events, obs)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var collectionDay = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

func trackedProducts() []domain.TrackedProduct {
	return []domain.TrackedProduct{
		{Name: "Shoe A", Category: "shoes", URL: "https://shop.example/a", Locator: ".price"},
		{Name: "Shoe B", Category: "shoes", URL: "https://shop.example/b", Locator: ".price"},
	}
}

func stubPages() *stubFetcher {
	return &stubFetcher{pages: map[string]string{
		"https://shop.example/a": `<span class="price">$1,234.56 USD</span>`,
		"https://shop.example/b": `<span class="price">Sale: 19.99</span>`,
	}}
}

func TestCollectorRunIsIdempotentPerDay(t *testing.T) {
	ctx := context.Background()
	ledger := storage.NewMemoryLedger()
	fetcher := stubPages()
	m := metrics.NewCollection()

	collector := NewCollector(CollectorDeps{
		Extract:  parser.ExtractPrice,
		Registry: ledger,
		History:  ledger,
		Fetcher:  fetcher,
		Metrics:  m,
		Clock:    fixedClock(collectionDay),
	})

	first, err := collector.Run(ctx, trackedProducts())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Collected)
	assert.Equal(t, OutcomeSuccess, first.Outcome())

	second, err := collector.Run(ctx, trackedProducts())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Collected)
	assert.Equal(t, 2, second.AlreadyCollected)
	assert.Len(t, fetcher.calls, 2, "second run must not fetch again")

	basket, err := ledger.BasketOn(ctx, collectionDay)
	require.NoError(t, err)
	require.Len(t, basket, 2)
	assert.True(t, basket[0].Value.Equal(decimal.RequireFromString("1234.56")))
	assert.True(t, basket[1].Value.Equal(decimal.RequireFromString("19.99")))

	recent, err := ledger.RecentObservations(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 2, "exactly one observation per product per day")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProductsTotal.WithLabelValues(metrics.ResultCollected)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProductsTotal.WithLabelValues(metrics.ResultSkipped)))
}

func TestCollectorNextDayCollectsAgain(t *testing.T) {
	ctx := context.Background()
	ledger := storage.NewMemoryLedger()
	fetcher := stubPages()

	now := collectionDay
	collector := NewCollector(CollectorDeps{
		Extract:  parser.ExtractPrice,
		Registry: ledger,
		History:  ledger,
		Fetcher:  fetcher,
		Clock:    func() time.Time { return now },
	})

	_, err := collector.Run(ctx, trackedProducts())
	require.NoError(t, err)

	now = collectionDay.Add(24 * time.Hour)
	report, err := collector.Run(ctx, trackedProducts())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Collected)
}

func TestCollectorSkipsInvalidAndContinuesAfterFailures(t *testing.T) {
	ctx := context.Background()
	ledger := storage.NewMemoryLedger()
	fetcher := stubPages()
	fetcher.pages["https://shop.example/c"] = `<span class="stock">Out of stock</span>`
	publisher := &recordingPublisher{}

	products := []domain.TrackedProduct{
		{Name: "No URL", Category: "shoes", Locator: ".price"},
		{Name: "Offline", Category: "shoes", URL: "https://shop.example/offline", Locator: ".price"},
		{Name: "Missing element", Category: "shoes", URL: "https://shop.example/c", Locator: ".price"},
		{Name: "No number", Category: "shoes", URL: "https://shop.example/c", Locator: ".stock"},
		{Name: "Shoe B", Category: "shoes", URL: "https://shop.example/b", Locator: ".price"},
	}

	report, err := NewCollector(CollectorDeps{
		Extract:   parser.ExtractPrice,
		Registry:  ledger,
		History:   ledger,
		Fetcher:   fetcher,
		Publisher: publisher,
		Clock:     fixedClock(collectionDay),
	}).Run(ctx, products)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, 1, report.Collected)
	require.Len(t, report.Failures, 3)
	assert.Equal(t, OutcomePartial, report.Outcome())
	assert.Equal(t, 5, report.Processed())
	assert.ErrorIs(t, report.Failures[1].Err, domain.ErrPriceNotFound)
	assert.ErrorIs(t, report.Failures[2].Err, domain.ErrPriceUnparseable)
	require.Len(t, publisher.events, 1)
	assert.True(t, publisher.events[0].Value.Equal(decimal.RequireFromString("19.99")))
}

type brokenHistory struct {
	*storage.Ledger
}

func (brokenHistory) Append(context.Context, int64, decimal.Decimal, time.Time) error {
	return domain.ErrStorage
}

func TestCollectorStorageFaultAbortsRun(t *testing.T) {
	ledger := storage.NewMemoryLedger()
	fetcher := stubPages()

	report, err := NewCollector(CollectorDeps{
		Extract:  parser.ExtractPrice,
		Registry: ledger,
		History:  brokenHistory{ledger},
		Fetcher:  fetcher,
		Clock:    fixedClock(collectionDay),
	}).Run(context.Background(), trackedProducts())

	require.ErrorIs(t, err, domain.ErrStorage)
	assert.Len(t, fetcher.calls, 1, "the run stops at the first storage fault")
	assert.Zero(t, report.Collected)
}

func TestCollectorPausesBetweenFetches(t *testing.T) {
	ledger := storage.NewMemoryLedger()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCollector(CollectorDeps{
		Extract:  parser.ExtractPrice,
		Registry: ledger,
		History:  ledger,
		Fetcher:  stubPages(),
		Clock:    fixedClock(collectionDay),
		Pause:    time.Hour,
	}).Run(ctx, trackedProducts())
	require.ErrorIs(t, err, context.Canceled)
}

func TestCollectorDayGuardAcrossRuns(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	fetcher := stubPages()
	delete(fetcher.pages, "https://shop.example/b")

	ledger := storage.NewMemoryLedger()
	deps := CollectorDeps{
		Extract:  parser.ExtractPrice,
		Registry: ledger,
		History:  ledger,
		Fetcher:  fetcher,
		Guard:    cache.NewDayGuard(rdb, "cpi", "run-a", time.Hour),
		Clock:    fixedClock(collectionDay),
	}

	report, err := NewCollector(deps).Run(ctx, trackedProducts())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Collected)
	require.Len(t, report.Failures, 1)

	a, err := ledger.Resolve(ctx, "https://shop.example/a", "", "")
	require.NoError(t, err)
	b, err := ledger.Resolve(ctx, "https://shop.example/b", "", "")
	require.NoError(t, err)
	assert.True(t, mr.Exists("cpi:collect:"+itoa(a.ID)+":2025-03-03"))
	assert.False(t, mr.Exists("cpi:collect:"+itoa(b.ID)+":2025-03-03"), "failed fetches release their claim")

	// A concurrent run with its own (empty) ledger still respects the claim on A.
	other := storage.NewMemoryLedger()
	deps.Registry, deps.History = other, other
	fetcher.pages["https://shop.example/b"] = `<span class="price">5.00</span>`
	report, err = NewCollector(deps).Run(ctx, trackedProducts())
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlreadyCollected)
	assert.Equal(t, 1, report.Collected)
}

func TestCollectorReleasesClaimOnStorageFault(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ledger := storage.NewMemoryLedger()
	deps := CollectorDeps{
		Extract:  parser.ExtractPrice,
		Registry: ledger,
		History:  brokenHistory{ledger},
		Fetcher:  stubPages(),
		Guard:    cache.NewDayGuard(rdb, "cpi", "run-a", time.Hour),
		Clock:    fixedClock(collectionDay),
	}

	_, err := NewCollector(deps).Run(ctx, trackedProducts())
	require.ErrorIs(t, err, domain.ErrStorage)
	assert.Empty(t, mr.Keys(), "no claim survives a failed append")

	deps.History = ledger
	report, err := NewCollector(deps).Run(ctx, trackedProducts())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Collected)
	assert.Zero(t, report.AlreadyCollected)

	a, err := ledger.Resolve(ctx, "https://shop.example/a", "", "")
	require.NoError(t, err)
	stored, err := ledger.HasObservationOn(ctx, a.ID, collectionDay)
	require.NoError(t, err)
	assert.True(t, stored)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestCollectorRequiresExtractor(t *testing.T) {
	ledger := storage.NewMemoryLedger()
	fetcher := stubPages()

	_, err := NewCollector(CollectorDeps{
		Registry: ledger,
		History:  ledger,
		Fetcher:  fetcher,
	}).Run(context.Background(), trackedProducts())
	require.ErrorContains(t, err, "not fully configured")
	assert.Empty(t, fetcher.calls)
}
