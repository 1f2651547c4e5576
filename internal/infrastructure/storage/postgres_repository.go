package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"CPITracker/internal/domain"
	"CPITracker/internal/ports"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          BIGSERIAL PRIMARY KEY,
		product_key UUID NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		category    TEXT NOT NULL,
		source_url  TEXT NOT NULL UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS prices (
		id           BIGSERIAL PRIMARY KEY,
		product_id   BIGINT NOT NULL REFERENCES products (id),
		price        NUMERIC NOT NULL CHECK (price >= 0),
		collected_at TIMESTAMPTZ NOT NULL,
		collected_on DATE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS prices_product_day_idx ON prices (product_id, collected_on)`,
	`CREATE INDEX IF NOT EXISTS prices_collected_at_idx ON prices (collected_at DESC, id DESC)`,
}

// PoolConfig tunes the pgx pool.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// PostgresRepository persists products and the price ledger into Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

var _ ports.Store = (*PostgresRepository)(nil)

// OpenPostgres connects, pings and makes sure the schema exists.
func OpenPostgres(ctx context.Context, dsn string, poolCfg PoolConfig) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = poolCfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storageErr("connect postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storageErr("ping postgres", err)
	}

	repo := NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// NewPostgresRepository wraps an existing pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, sb: newBuilder()}
}

func newBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// Migrate creates the tables when missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return storageErr("migrate schema", err)
		}
	}
	return nil
}

// Resolve inserts the product on first sight and returns the stored row either way.
// The no-op update keeps the first-seen metadata and lets RETURNING fire on conflict.
func (r *PostgresRepository) Resolve(ctx context.Context, url, name, category string) (domain.Product, error) {
	query, args, err := resolveQuery(r.sb, uuid.New(), url, name, category)
	if err != nil {
		return domain.Product{}, fmt.Errorf("build resolve query: %w", err)
	}

	var p domain.Product
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&p.ID, &p.Key, &p.URL, &p.Name, &p.Category, &p.CreatedAt); err != nil {
		return domain.Product{}, storageErr("resolve product", err)
	}
	return p, nil
}

// HasObservationOn compares calendar days, not timestamps.
func (r *PostgresRepository) HasObservationOn(ctx context.Context, productID int64, day time.Time) (bool, error) {
	query, args, err := hasObservationQuery(r.sb, productID, domain.DayOf(day))
	if err != nil {
		return false, fmt.Errorf("build observation query: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, storageErr("check observation", err)
	}
	return exists, nil
}

// Append writes an immutable price row.
func (r *PostgresRepository) Append(ctx context.Context, productID int64, value decimal.Decimal, at time.Time) error {
	query, args, err := appendQuery(r.sb, productID, value, at)
	if err != nil {
		return fmt.Errorf("build append query: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return storageErr("append price", err)
	}
	return nil
}

// EarliestObservationDay returns MIN(collected_on).
func (r *PostgresRepository) EarliestObservationDay(ctx context.Context) (time.Time, bool, error) {
	return r.boundaryDay(ctx, "MIN(collected_on)")
}

// LatestObservationDay returns MAX(collected_on).
func (r *PostgresRepository) LatestObservationDay(ctx context.Context) (time.Time, bool, error) {
	return r.boundaryDay(ctx, "MAX(collected_on)")
}

func (r *PostgresRepository) boundaryDay(ctx context.Context, aggregate string) (time.Time, bool, error) {
	query, args, err := r.sb.Select(aggregate).From("prices").ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("build day query: %w", err)
	}

	var day *time.Time
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&day); err != nil {
		return time.Time{}, false, storageErr("query observation day", err)
	}
	if day == nil {
		return time.Time{}, false, nil
	}
	return domain.DayOf(*day), true, nil
}

// BasketOn keeps the lowest price id per product for the day.
func (r *PostgresRepository) BasketOn(ctx context.Context, day time.Time) ([]domain.BasketItem, error) {
	query, args, err := basketQuery(r.sb, domain.DayOf(day))
	if err != nil {
		return nil, fmt.Errorf("build basket query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query basket", err)
	}
	defer rows.Close()

	var basket []domain.BasketItem
	for rows.Next() {
		var (
			item  domain.BasketItem
			price string
		)
		if err := rows.Scan(&item.ProductID, &item.Name, &price); err != nil {
			return nil, storageErr("scan basket", err)
		}
		if item.Value, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("decode price %q: %w", price, err)
		}
		basket = append(basket, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("basket rows", err)
	}
	return basket, nil
}

// RecentObservations joins prices with products, newest first.
func (r *PostgresRepository) RecentObservations(ctx context.Context, limit int) ([]domain.ExportRecord, error) {
	query, args, err := recentQuery(r.sb, limit)
	if err != nil {
		return nil, fmt.Errorf("build export query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query recent prices", err)
	}
	defer rows.Close()

	var out []domain.ExportRecord
	for rows.Next() {
		var (
			rec   domain.ExportRecord
			price string
		)
		if err := rows.Scan(&rec.ProductKey, &rec.ProductName, &rec.Category, &price, &rec.ObservedAt, &rec.SourceURL); err != nil {
			return nil, storageErr("scan recent price", err)
		}
		if rec.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("decode price %q: %w", price, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("recent price rows", err)
	}
	return out, nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func resolveQuery(sb sq.StatementBuilderType, key uuid.UUID, url, name, category string) (string, []interface{}, error) {
	return sb.Insert("products").
		Columns("product_key", "name", "category", "source_url").
		Values(key, name, category, url).
		Suffix("ON CONFLICT (source_url) DO UPDATE SET source_url = EXCLUDED.source_url " +
			"RETURNING id, product_key, source_url, name, category, created_at").
		ToSql()
}

func hasObservationQuery(sb sq.StatementBuilderType, productID int64, day time.Time) (string, []interface{}, error) {
	inner := sb.Select("1").From("prices").
		Where(sq.Eq{"product_id": productID, "collected_on": day})
	innerSQL, args, err := inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "SELECT EXISTS (" + innerSQL + ")", args, nil
}

func appendQuery(sb sq.StatementBuilderType, productID int64, value decimal.Decimal, at time.Time) (string, []interface{}, error) {
	return sb.Insert("prices").
		Columns("product_id", "price", "collected_at", "collected_on").
		Values(
			productID,
			sq.Expr("CAST(? AS NUMERIC)", value.String()),
			at,
			domain.DayOf(at),
		).
		ToSql()
}

func basketQuery(sb sq.StatementBuilderType, day time.Time) (string, []interface{}, error) {
	return sb.Select("pr.product_id", "p.name", "pr.price::text").
		Options("DISTINCT ON (pr.product_id)").
		From("prices pr").
		Join("products p ON p.id = pr.product_id").
		Where(sq.Eq{"pr.collected_on": day}).
		OrderBy("pr.product_id", "pr.id").
		ToSql()
}

func recentQuery(sb sq.StatementBuilderType, limit int) (string, []interface{}, error) {
	q := sb.Select("p.product_key", "p.name", "p.category", "pr.price::text", "pr.collected_at", "p.source_url").
		From("prices pr").
		Join("products p ON p.id = pr.product_id").
		OrderBy("pr.collected_at DESC", "pr.id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q.ToSql()
}
