package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"CPITracker/internal/config"
	"CPITracker/internal/domain"
	"CPITracker/internal/infrastructure/cache"
	"CPITracker/internal/infrastructure/events"
	"CPITracker/internal/infrastructure/export"
	"CPITracker/internal/infrastructure/parser"
	"CPITracker/internal/infrastructure/storage"
	"CPITracker/internal/infrastructure/telegram"
	"CPITracker/internal/logging"
	"CPITracker/internal/metrics"
	"CPITracker/internal/ports"
	"CPITracker/internal/usecase"
)

// Application owns the persistence handle of one process run.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	store  ports.Store
}

// New opens the configured store.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	baseLogger.Debug("store opened", "driver", cfg.Database.Driver)
	return &Application{cfg: cfg, logger: baseLogger, store: store}, nil
}

// OpenStore picks the ledger backend.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (ports.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		repo, err := storage.OpenPostgres(ctx, cfg.DSN, storage.PoolConfig{MaxConns: cfg.MaxConns})
		if err != nil && !errors.Is(err, domain.ErrStorage) {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.DriverFile:
		ledger, err := storage.OpenFileLedger(cfg.Path)
		if err != nil {
			return nil, err
		}
		return ledger, nil
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", ErrConfiguration, cfg.Driver)
	}
}

// Close releases the store.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// Collect runs one collection pass followed by the CSV export.
func (a *Application) Collect(ctx context.Context, productsPath string, stdout io.Writer) error {
	if productsPath == "" {
		productsPath = a.cfg.Collector.ProductsFile
	}
	products, err := config.LoadProducts(productsPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	a.logger.Info("products loaded", "count", len(products), "file", productsPath)

	guard, closeGuard, err := a.dayGuard(ctx)
	if err != nil {
		return err
	}
	defer closeGuard()

	publisher, closePublisher := a.publisher()
	defer closePublisher()

	loc := a.cfg.Collector.Location()
	collectionMetrics := metrics.NewCollection()
	collector := usecase.NewCollector(usecase.CollectorDeps{
		Registry:  a.store,
		History:   a.store,
		Fetcher:   parser.NewPageFetcher(&http.Client{Timeout: a.cfg.Collector.RequestTimeout}, a.cfg.Collector.UserAgent, a.logger.With("component", "fetcher")),
		Extract:   parser.ExtractPrice,
		Guard:     guard,
		Publisher: publisher,
		Metrics:   collectionMetrics,
		Logger:    a.logger.With("component", "collector"),
		Clock:     func() time.Time { return time.Now().In(loc) },
		Pause:     a.cfg.Collector.Pause,
	})

	a.logger.Info("starting price collection")
	report, err := collector.Run(ctx, products)
	if err != nil {
		return fmt.Errorf("collection run: %w", err)
	}
	a.logger.Info("price collection finished", "outcome", report.Outcome(), "collected", report.Collected)
	if err := usecase.WriteRunSummary(stdout, report); err != nil {
		return err
	}

	exporter := export.NewCSVExporter(a.store, a.cfg.Export.Path, a.cfg.Export.Limit, loc)
	rows, err := exporter.Export(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if rows == 0 {
		a.logger.Info("no data to export")
	} else {
		a.logger.Info("exported recent prices", "rows", rows, "file", a.cfg.Export.Path)
	}

	if err := collectionMetrics.WriteTextfile(a.cfg.Metrics.TextfilePath); err != nil {
		a.logger.Warn("write metrics textfile", "path", a.cfg.Metrics.TextfilePath, "error", err)
	}

	if report.Outcome() == usecase.OutcomePartial {
		return fmt.Errorf("%w: %d invalid, %d failed", ErrPartialRun, report.Invalid, len(report.Failures))
	}
	return nil
}

// Analyze computes the index and prints the report; a configured Telegram
// chat receives the same text.
func (a *Application) Analyze(ctx context.Context, stdout io.Writer) error {
	result, err := usecase.NewIndexCalculator(a.store).Compute(ctx)
	switch {
	case errors.Is(err, usecase.ErrInsufficientData):
		fmt.Fprintln(stdout, "Not enough data to calculate CPI. Run the collector first.")
		return err
	case errors.Is(err, usecase.ErrZeroBaseCost):
		fmt.Fprintln(stdout, "Base cost is zero, cannot calculate CPI.")
		return err
	case err != nil:
		return fmt.Errorf("compute index: %w", err)
	}

	var buf bytes.Buffer
	if err := usecase.WriteIndexReport(&buf, result); err != nil {
		return err
	}
	if _, err := stdout.Write(buf.Bytes()); err != nil {
		return err
	}

	if tg := a.cfg.Notifications.Telegram; tg.Enabled() {
		var notifier ports.Notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
		if err := notifier.PublishReport(ctx, buf.String()); err != nil {
			a.logger.Warn("publish report", "error", err)
		}
	}
	return nil
}

func (a *Application) dayGuard(ctx context.Context) (ports.DayGuard, func(), error) {
	rc := a.cfg.Redis
	if rc.Addr == "" {
		return nil, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: rc.Addr, DB: rc.DB, Password: rc.Password})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w: %w", domain.ErrStorage, err)
	}

	owner := fmt.Sprintf("collector@%d", time.Now().Unix())
	return cache.NewDayGuard(rdb, rc.Prefix, owner, rc.ClaimTTL), func() { _ = rdb.Close() }, nil
}

func (a *Application) publisher() (ports.ObservationPublisher, func()) {
	nc := a.cfg.NATS
	if nc.URL == "" {
		return nil, func() {}
	}

	conn, err := nats.Connect(nc.URL, nats.Name("cpi-collector"), nats.Timeout(3*time.Second))
	if err != nil {
		a.logger.Warn("nats unavailable, price events disabled", "url", nc.URL, "error", err)
		return nil, func() {}
	}
	return events.New(conn, nc.Subject, "cpi-collector"), func() {
		if err := conn.Drain(); err != nil {
			conn.Close()
		}
	}
}
