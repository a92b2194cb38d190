// Package pricefeed fetches spot prices from a Coingecko-compatible HTTP
// API. The scanner uses it for the reference-currency conversion (ETH/USD);
// it is not a trading data source.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client queries the simple-price endpoint of a Coingecko-compatible API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a price feed client.
//
// baseURL is the API root, e.g. "https://api.coingecko.com/api/v3". apiKey
// may be empty for keyless public access.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SpotPrice returns the price of asset quoted in currency, e.g.
// ("ethereum", "usd").
func (c *Client) SpotPrice(ctx context.Context, asset, currency string) (float64, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s",
		c.baseURL, url.QueryEscape(asset), url.QueryEscape(currency))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pricefeed: HTTP %d: %s", resp.StatusCode, string(body))
	}

	// Response shape: {"ethereum": {"usd": 2501.12}}
	var payload map[string]map[string]float64
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("pricefeed: decode response: %w", err)
	}

	price, ok := payload[asset][currency]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("pricefeed: no %s/%s price in response", asset, currency)
	}
	return price, nil
}
