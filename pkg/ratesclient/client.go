/**
 * @description
 * This package provides a client for the external FX rates provider. It
 * encapsulates the logic for making authenticated HTTP requests to the rates
 * endpoint, parsing responses, and caching quotes briefly so a burst of
 * conversions does not hammer the provider.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, sync, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Exact decimal rates.
 */
package ratesclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const defaultCacheTTL = 30 * time.Second

// Client is a client for the FX rates API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	mu    sync.Mutex
	cache map[string]cachedRate
	ttl   time.Duration
}

type cachedRate struct {
	rate      decimal.Decimal
	expiresAt time.Time
}

// NewClient creates a new rates API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: make(map[string]cachedRate),
		ttl:   defaultCacheTTL,
	}
}

// RateResponse is the expected response from the rates endpoint.
type RateResponse struct {
	Data struct {
		From string          `json:"from"`
		To   string          `json:"to"`
		Rate decimal.Decimal `json:"rate"`
	} `json:"data"`
}

// ErrorResponse represents an error from the rates API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("rates api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown rates api error"
}

// Rate returns the to-currency-per-from-currency quote, serving from the
// short-lived cache when fresh.
func (c *Client) Rate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	key := fromCurrency + "/" + toCurrency

	c.mu.Lock()
	if cached, ok := c.cache[key]; ok && time.Now().Before(cached.expiresAt) {
		c.mu.Unlock()
		return cached.rate, nil
	}
	c.mu.Unlock()

	rate, err := c.fetch(ctx, fromCurrency, toCurrency)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.cache[key] = cachedRate{rate: rate, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return rate, nil
}

func (c *Client) fetch(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/v1/rates?from=%s&to=%s", c.BaseURL, fromCurrency, toCurrency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && len(apiErr.Errors) > 0 {
			return decimal.Zero, &apiErr
		}
		return decimal.Zero, fmt.Errorf("rates api returned status %d", resp.StatusCode)
	}

	var parsed RateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse rate response: %w", err)
	}
	if !parsed.Data.Rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("rates api returned non-positive rate for %s/%s", fromCurrency, toCurrency)
	}
	return parsed.Data.Rate, nil
}
