// Package fetcher pulls fresh paragraph text from the external generator
// (metaphorpsum.com by default). The generator is flaky enough to warrant a
// circuit breaker in front of it.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"parasearch/pkg/config"
	apperrors "parasearch/pkg/errors"
	"parasearch/pkg/resilience"
)

// maxParagraphSize caps how much generator output is accepted.
const maxParagraphSize = 1 << 20

// Client fetches paragraphs over HTTP.
type Client struct {
	url     string
	http    *http.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// New creates a Client for the configured generator URL.
func New(cfg config.SourcesConfig) *Client {
	return &Client{
		url: cfg.ParagraphURL,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		breaker: resilience.NewCircuitBreaker("paragraph-source", resilience.CircuitBreakerConfig{}),
		logger:  slog.Default().With("component", "paragraph-fetcher"),
	}
}

// Fetch retrieves one paragraph of text, retrying once on transient
// failures. Failures (including an open circuit) are reported as
// ErrSourceUnavailable.
func (c *Client) Fetch(ctx context.Context) (string, error) {
	var text string
	err := c.breaker.Execute(func() error {
		return resilience.Retry(ctx, "paragraph-fetch", resilience.RetryConfig{
			MaxAttempts:  2,
			InitialDelay: 200 * time.Millisecond,
		}, func() error {
			var fetchErr error
			text, fetchErr = c.fetchOnce(ctx)
			return fetchErr
		})
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err)
	}
	return text, nil
}

func (c *Client) fetchOnce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching paragraph: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paragraph source returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxParagraphSize))
	if err != nil {
		return "", fmt.Errorf("reading paragraph body: %w", err)
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", fmt.Errorf("paragraph source returned empty body")
	}
	c.logger.Debug("paragraph fetched", "bytes", len(text))
	return text, nil
}
