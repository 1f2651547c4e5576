package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"CPITracker/internal/domain"
	"CPITracker/internal/ports"
)

// Ledger keeps products in an arena indexed by source URL and observations as
// records pointing into that arena. With a path it persists every write to a
// JSON snapshot; without one it lives in memory only.
type Ledger struct {
	mu       sync.RWMutex
	path     string
	now      func() time.Time
	products []domain.Product
	byURL    map[string]int
	records  []ledgerRecord
}

type ledgerRecord struct {
	product int
	value   decimal.Decimal
	at      time.Time
	day     time.Time
}

type snapshot struct {
	Products     []snapshotProduct     `json:"products"`
	Observations []snapshotObservation `json:"observations"`
}

type snapshotProduct struct {
	ID        int64     `json:"id"`
	Key       uuid.UUID `json:"product_uuid"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	URL       string    `json:"source_url"`
	CreatedAt time.Time `json:"created_at"`
}

type snapshotObservation struct {
	ProductID   int64           `json:"product_id"`
	Price       decimal.Decimal `json:"price"`
	CollectedAt time.Time       `json:"date_collected"`
}

var _ ports.Store = (*Ledger)(nil)

// NewMemoryLedger returns an empty ledger that is never written to disk.
func NewMemoryLedger() *Ledger {
	return &Ledger{now: time.Now, byURL: map[string]int{}}
}

// OpenFileLedger loads the snapshot at path, or starts empty if it does not exist yet.
func OpenFileLedger(path string) (*Ledger, error) {
	l := NewMemoryLedger()
	l.path = path

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, storageErr("read ledger", err)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, storageErr("decode ledger", err)
	}

	for i, p := range snap.Products {
		if p.ID != int64(i+1) {
			return nil, storageErr("decode ledger", fmt.Errorf("product %d out of order", p.ID))
		}
		l.products = append(l.products, domain.Product{
			ID: p.ID, Key: p.Key, URL: p.URL, Name: p.Name, Category: p.Category, CreatedAt: p.CreatedAt,
		})
		l.byURL[p.URL] = i
	}
	for _, o := range snap.Observations {
		idx, ok := l.index(o.ProductID)
		if !ok {
			return nil, storageErr("decode ledger", fmt.Errorf("observation references unknown product %d", o.ProductID))
		}
		l.records = append(l.records, ledgerRecord{product: idx, value: o.Price, at: o.CollectedAt, day: domain.DayOf(o.CollectedAt)})
	}

	return l, nil
}

// Resolve returns the product for url, creating it on first sight.
func (l *Ledger) Resolve(ctx context.Context, url, name, category string) (domain.Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.byURL[url]; ok {
		return l.products[idx], nil
	}

	product := domain.Product{
		ID:        int64(len(l.products) + 1),
		Key:       uuid.New(),
		URL:       url,
		Name:      name,
		Category:  category,
		CreatedAt: l.now().UTC(),
	}
	l.products = append(l.products, product)
	l.byURL[url] = len(l.products) - 1

	if err := l.persist(); err != nil {
		l.products = l.products[:len(l.products)-1]
		delete(l.byURL, url)
		return domain.Product{}, err
	}
	return product, nil
}

// HasObservationOn reports whether productID was observed on day.
func (l *Ledger) HasObservationOn(ctx context.Context, productID int64, day time.Time) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.index(productID)
	if !ok {
		return false, nil
	}
	target := domain.DayOf(day)
	for _, r := range l.records {
		if r.product == idx && r.day.Equal(target) {
			return true, nil
		}
	}
	return false, nil
}

// Append records an observation.
func (l *Ledger) Append(ctx context.Context, productID int64, value decimal.Decimal, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.index(productID)
	if !ok {
		return storageErr("append price", fmt.Errorf("unknown product %d", productID))
	}
	if value.IsNegative() {
		return fmt.Errorf("append price: negative value %s", value)
	}

	l.records = append(l.records, ledgerRecord{product: idx, value: value, at: at, day: domain.DayOf(at)})
	if err := l.persist(); err != nil {
		l.records = l.records[:len(l.records)-1]
		return err
	}
	return nil
}

// EarliestObservationDay returns the first day with any observation.
func (l *Ledger) EarliestObservationDay(ctx context.Context) (time.Time, bool, error) {
	return l.boundaryDay(func(candidate, current time.Time) bool { return candidate.Before(current) })
}

// LatestObservationDay returns the last day with any observation.
func (l *Ledger) LatestObservationDay(ctx context.Context) (time.Time, bool, error) {
	return l.boundaryDay(func(candidate, current time.Time) bool { return candidate.After(current) })
}

func (l *Ledger) boundaryDay(better func(candidate, current time.Time) bool) (time.Time, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.records) == 0 {
		return time.Time{}, false, nil
	}
	day := l.records[0].day
	for _, r := range l.records[1:] {
		if better(r.day, day) {
			day = r.day
		}
	}
	return day, true, nil
}

// BasketOn picks the first-inserted observation of each product on day.
func (l *Ledger) BasketOn(ctx context.Context, day time.Time) ([]domain.BasketItem, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	target := domain.DayOf(day)
	seen := map[int]struct{}{}
	var basket []domain.BasketItem
	for _, r := range l.records {
		if !r.day.Equal(target) {
			continue
		}
		if _, ok := seen[r.product]; ok {
			continue
		}
		seen[r.product] = struct{}{}
		p := l.products[r.product]
		basket = append(basket, domain.BasketItem{ProductID: p.ID, Name: p.Name, Value: r.value})
	}

	sort.Slice(basket, func(i, j int) bool { return basket[i].ProductID < basket[j].ProductID })
	return basket, nil
}

// RecentObservations returns up to limit records, newest first.
func (l *Ledger) RecentObservations(ctx context.Context, limit int) ([]domain.ExportRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	order := make([]int, len(l.records))
	for i := range order {
		order[i] = len(l.records) - 1 - i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return l.records[order[i]].at.After(l.records[order[j]].at)
	})
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}

	out := make([]domain.ExportRecord, 0, len(order))
	for _, i := range order {
		r := l.records[i]
		p := l.products[r.product]
		out = append(out, domain.ExportRecord{
			ProductKey:  p.Key,
			ProductName: p.Name,
			Category:    p.Category,
			Price:       r.value,
			ObservedAt:  r.at,
			SourceURL:   p.URL,
		})
	}
	return out, nil
}

// Close is a no-op; every write is already flushed.
func (l *Ledger) Close() error {
	return nil
}

func (l *Ledger) index(productID int64) (int, bool) {
	idx := int(productID - 1)
	if idx < 0 || idx >= len(l.products) {
		return 0, false
	}
	return idx, true
}

// persist rewrites the snapshot atomically; callers hold the write lock.
func (l *Ledger) persist() error {
	if l.path == "" {
		return nil
	}

	snap := snapshot{
		Products:     make([]snapshotProduct, 0, len(l.products)),
		Observations: make([]snapshotObservation, 0, len(l.records)),
	}
	for _, p := range l.products {
		snap.Products = append(snap.Products, snapshotProduct{
			ID: p.ID, Key: p.Key, Name: p.Name, Category: p.Category, URL: p.URL, CreatedAt: p.CreatedAt,
		})
	}
	for _, r := range l.records {
		snap.Observations = append(snap.Observations, snapshotObservation{
			ProductID: l.products[r.product].ID, Price: r.value, CollectedAt: r.at,
		})
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return storageErr("encode ledger", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return storageErr("write ledger", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return storageErr("write ledger", err)
	}
	if err := tmp.Close(); err != nil {
		return storageErr("write ledger", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return storageErr("write ledger", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}
