package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"CPITracker/internal/domain"
	"CPITracker/internal/ports"
)

const defaultClaimTTL = 36 * time.Hour

// DayGuard claims (product, day) pairs in Redis so overlapping collection runs
// never fetch the same product twice on one day.
type DayGuard struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	owner  string
}

var _ ports.DayGuard = (*DayGuard)(nil)

// NewDayGuard wraps a Redis client; owner is stored as the claim value for debugging.
func NewDayGuard(rdb *redis.Client, prefix, owner string, ttl time.Duration) *DayGuard {
	if prefix == "" {
		prefix = "cpi"
	}
	if ttl <= 0 {
		ttl = defaultClaimTTL
	}
	return &DayGuard{rdb: rdb, prefix: prefix, ttl: ttl, owner: owner}
}

// Claim returns false when another run already holds the pair.
func (g *DayGuard) Claim(ctx context.Context, productID int64, day time.Time) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, g.key(productID, day), g.owner, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim collection day: %w: %w", domain.ErrStorage, err)
	}
	return ok, nil
}

// Release drops a claim so a later run may retry the product the same day.
func (g *DayGuard) Release(ctx context.Context, productID int64, day time.Time) error {
	if err := g.rdb.Del(ctx, g.key(productID, day)).Err(); err != nil {
		return fmt.Errorf("release collection day: %w: %w", domain.ErrStorage, err)
	}
	return nil
}

func (g *DayGuard) key(productID int64, day time.Time) string {
	return fmt.Sprintf("%s:collect:%d:%s", g.prefix, productID, domain.DayOf(day).Format(time.DateOnly))
}
