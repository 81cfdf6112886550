// Package http provides a pricing.Oracle backed by the market data HTTP API.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quantdesk/agentmem/pkg/errors"
)

// DefaultTimeout bounds a single price lookup.
const DefaultTimeout = 10 * time.Second

// Config holds the settings for the HTTP price client.
type Config struct {
	// BaseURL is the root of the market data API, e.g. "http://localhost:8080"
	BaseURL string

	// Timeout bounds each request; zero means DefaultTimeout
	Timeout time.Duration
}

// Client implements the pricing.Oracle interface over the market data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a price client for the given API endpoint.
func NewClient(config Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if base == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "pricing base URL is required")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// priceResponse mirrors the market data API envelope.
type priceResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Price *float64 `json:"price"`
	} `json:"data"`
}

// CurrentPrice implements the pricing.Oracle interface. Transport errors,
// non-2xx responses, API-level error codes and absent prices all map to
// errors.ErrPriceUnavailable so the caller has a single condition to retry on.
func (c *Client) CurrentPrice(ctx context.Context, market, symbol string) (float64, error) {
	if market == "" || symbol == "" {
		return 0, errors.Wrap(errors.ErrInvalidInput, "market and symbol are required")
	}

	endpoint := fmt.Sprintf("%s/api/kline/price?market=%s&symbol=%s",
		c.baseURL, url.QueryEscape(market), url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(errors.ErrPriceUnavailable, "price request for %s:%s failed: %v", market, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, errors.Wrap(errors.ErrPriceUnavailable, "price request for %s:%s returned status %d", market, symbol, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, errors.Wrap(errors.ErrPriceUnavailable, "failed to read price response for %s:%s: %v", market, symbol, err)
	}

	var parsed priceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, errors.Wrap(errors.ErrPriceUnavailable, "malformed price response for %s:%s: %v", market, symbol, err)
	}

	if parsed.Code != 0 {
		return 0, errors.Wrap(errors.ErrPriceUnavailable, "price API error for %s:%s: code=%d msg=%s", market, symbol, parsed.Code, parsed.Msg)
	}
	if parsed.Data == nil || parsed.Data.Price == nil {
		return 0, errors.Wrap(errors.ErrPriceUnavailable, "no price in response for %s:%s", market, symbol)
	}

	return *parsed.Data.Price, nil
}
