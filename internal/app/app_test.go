package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CPITracker/internal/config"
	"CPITracker/internal/domain"
	"CPITracker/internal/usecase"
)

func newShop(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/milk":
			fmt.Fprint(w, `<html><body><span class="price">$1.50</span></body></html>`)
		case "/bread":
			fmt.Fprint(w, `<html><body><div id="cost">Now only 2.50 USD</div></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, products string) config.Config {
	t.Helper()
	dir := t.TempDir()
	productsPath := filepath.Join(dir, "products.json")
	require.NoError(t, os.WriteFile(productsPath, []byte(products), 0o600))

	return config.Config{
		Database:  config.DatabaseConfig{Driver: config.DriverFile, Path: filepath.Join(dir, "cpi_data.json")},
		Collector: config.CollectorConfig{ProductsFile: productsPath},
		Export:    config.ExportConfig{Path: filepath.Join(dir, "export.csv"), Limit: 1000},
		Logging:   config.LoggingConfig{Level: "error", Format: "text"},
	}
}

func TestCollectThenAnalyze(t *testing.T) {
	shop := newShop(t)
	cfg := testConfig(t, fmt.Sprintf(`[
		{"name": "Milk", "category": "Dairy", "url": "%[1]s/milk", "price_selector": ".price"},
		{"name": "Bread", "category": "Bakery", "url": "%[1]s/bread", "price_selector": "#cost"}
	]`, shop.URL))
	ctx := context.Background()

	application, err := New(ctx, cfg, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, application.Collect(ctx, "", &out))
	assert.Contains(t, out.String(), "2 collected")

	exported, err := os.ReadFile(cfg.Export.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(exported)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "product_uuid,product_name,category,price,date_collected,source_url", lines[0])

	out.Reset()
	require.NoError(t, application.Collect(ctx, "", &out))
	assert.Contains(t, out.String(), "2 already collected today")

	out.Reset()
	require.NoError(t, application.Analyze(ctx, &out))
	assert.Contains(t, out.String(), "Total Base Cost: 4.00")
	assert.Contains(t, out.String(), "CPI: 100.00")
	assert.Contains(t, out.String(), "Prices have remained stable since the base period.")

	require.NoError(t, application.Close())

	reopened, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, reopened.Analyze(ctx, &out))
	assert.Contains(t, out.String(), "CPI: 100.00")
}

func TestCollectPartialRun(t *testing.T) {
	shop := newShop(t)
	cfg := testConfig(t, fmt.Sprintf(`[
		{"name": "Milk", "category": "Dairy", "url": "%[1]s/milk", "price_selector": ".price"},
		{"name": "Ghost", "category": "Misc", "url": "%[1]s/missing", "price_selector": ".price"},
		{"name": "No selector", "category": "Misc", "url": "%[1]s/bread"}
	]`, shop.URL))
	ctx := context.Background()

	application, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer application.Close()

	var out bytes.Buffer
	err = application.Collect(ctx, "", &out)
	require.ErrorIs(t, err, ErrPartialRun)
	assert.Equal(t, ExitPartial, ExitCode(err))
	assert.Contains(t, out.String(), "1 collected")
	assert.Contains(t, out.String(), "Ghost")
}

func TestCollectMissingProductsFile(t *testing.T) {
	cfg := testConfig(t, `[]`)
	ctx := context.Background()

	application, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer application.Close()

	err = application.Collect(ctx, filepath.Join(t.TempDir(), "nope.json"), &bytes.Buffer{})
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, ExitConfiguration, ExitCode(err))

	err = application.Collect(ctx, "", &bytes.Buffer{})
	require.ErrorIs(t, err, config.ErrNoProducts)
	assert.Equal(t, ExitConfiguration, ExitCode(err))
}

func TestAnalyzeWithoutData(t *testing.T) {
	cfg := testConfig(t, `[]`)
	ctx := context.Background()

	application, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer application.Close()

	var out bytes.Buffer
	err = application.Analyze(ctx, &out)
	require.ErrorIs(t, err, usecase.ErrInsufficientData)
	assert.Equal(t, ExitNoIndex, ExitCode(err))
	assert.Contains(t, out.String(), "Not enough data")
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), config.DatabaseConfig{Driver: "sqlite"})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"storage", fmt.Errorf("append: %w: %w", domain.ErrStorage, errors.New("disk full")), ExitStorage},
		{"config", fmt.Errorf("%w: bad", ErrConfiguration), ExitConfiguration},
		{"partial", fmt.Errorf("%w: 1 failed", ErrPartialRun), ExitPartial},
		{"insufficient", usecase.ErrInsufficientData, ExitNoIndex},
		{"zero base", fmt.Errorf("compute: %w", usecase.ErrZeroBaseCost), ExitNoIndex},
		{"other", errors.New("boom"), ExitStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
