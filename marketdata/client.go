package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// BaseURL is the metalpriceapi.com endpoint the platform has always used.
const BaseURL = "https://api.metalpriceapi.com/v1"

// Client fetches spot prices from metalpriceapi.com.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a metalprice API client.
func NewClient(apiKey string) *Client {
	return &Client{
		baseURL: BaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type latestResponse struct {
	Success bool               `json:"success"`
	Rates   map[string]float64 `json:"rates"`
}

// Fetch requests USD-based rates for XAU, AED and RUB and derives the gold
// spot price from the inverse XAU rate.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("base", "USD")
	q.Set("currencies", "XAU,AED,RUB")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/latest?"+q.Encode(), nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, fmt.Errorf("metalprice API status %d: %s", resp.StatusCode, body)
	}

	var lr latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return Snapshot{}, fmt.Errorf("decode rates: %w", err)
	}
	if !lr.Success || lr.Rates == nil {
		return Snapshot{}, fmt.Errorf("metalprice API returned unsuccessful response")
	}

	xau := lr.Rates["XAU"]
	if xau <= 0 {
		return Snapshot{}, fmt.Errorf("metalprice API returned invalid XAU rate %v", xau)
	}

	defaults := Defaults()
	snap := Snapshot{
		GoldPrice:    1 / xau,
		YearlyGrowth: defaults.YearlyGrowth,
		CurrencyRates: map[string]float64{
			"AED": rateOr(lr.Rates, "AED", defaults.CurrencyRates["AED"]),
			"RUB": rateOr(lr.Rates, "RUB", defaults.CurrencyRates["RUB"]),
		},
		Timestamp: time.Now().UTC(),
	}
	return snap, nil
}

func rateOr(rates map[string]float64, key string, fallback float64) float64 {
	if v, ok := rates[key]; ok && v > 0 {
		return v
	}
	return fallback
}
