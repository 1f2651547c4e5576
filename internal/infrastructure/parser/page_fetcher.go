package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"CPITracker/internal/ports"
)

const (
	// DefaultUserAgent mimics a desktop browser; some retailers reject bare clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	defaultFetchTimeout = 15 * time.Second
	maxPageBytes        = 8 << 20
)

// PageFetcher downloads product pages over HTTP.
type PageFetcher struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

var _ ports.PageFetcher = (*PageFetcher)(nil)

// NewPageFetcher wires an HTTP client; a nil client gets a 15s timeout.
func NewPageFetcher(client *http.Client, userAgent string, log *slog.Logger) *PageFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &PageFetcher{client: client, userAgent: userAgent, logger: log}
}

// Fetch returns the raw page body; any non-2xx status is an error.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%s returned %s", pageURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}

	f.debug("page fetched", "url", pageURL, "bytes", len(body))
	return body, nil
}

func (f *PageFetcher) debug(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
