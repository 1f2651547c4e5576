package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"CPITracker/internal/ports"
)

// DefaultLimit caps the export to the most recent observations.
const DefaultLimit = 1000

const timestampLayout = "2006-01-02 15:04:05"

var header = []string{"product_uuid", "product_name", "category", "price", "date_collected", "source_url"}

// CSVExporter writes the newest observations to a delimited file.
type CSVExporter struct {
	source ports.RecentObservations
	path   string
	limit  int
	loc    *time.Location
}

// NewCSVExporter binds the ledger projection to an output path. Timestamps
// are written in loc, or UTC when loc is nil, whatever zone the store returns.
func NewCSVExporter(source ports.RecentObservations, path string, limit int, loc *time.Location) *CSVExporter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CSVExporter{source: source, path: path, limit: limit, loc: loc}
}

// Export returns the number of rows written; with no observations no file is produced.
func (e *CSVExporter) Export(ctx context.Context) (int, error) {
	records, err := e.source.RecentObservations(ctx, e.limit)
	if err != nil {
		return 0, fmt.Errorf("load recent observations: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(e.path), filepath.Base(e.path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.ProductKey.String(),
			rec.ProductName,
			rec.Category,
			rec.Price.StringFixed(2),
			rec.ObservedAt.In(e.loc).Format(timestampLayout),
			rec.SourceURL,
		}
		if err := w.Write(row); err != nil {
			_ = tmp.Close()
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("flush export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), e.path); err != nil {
		return 0, fmt.Errorf("publish export file: %w", err)
	}

	return len(records), nil
}
