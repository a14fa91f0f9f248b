// Package deribit is a minimal client for the Deribit v2 HTTP API.
package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	MainnetURL = "https://www.deribit.com/api/v2"
	TestnetURL = "https://test.deribit.com/api/v2"
)

type RESTClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewRESTClient(baseURL, clientID, clientSecret string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// BaseURL picks the test or live endpoint.
func BaseURL(useTestAPI bool) string {
	if useTestAPI {
		return TestnetURL
	}
	return MainnetURL
}

// GetInstruments lists the instruments of a currency and kind.
func (c *RESTClient) GetInstruments(ctx context.Context, currency, kind string) ([]Instrument, error) {
	params := url.Values{}
	params.Set("currency", currency)
	params.Set("kind", kind)

	var result []Instrument
	if err := c.call(ctx, "/public/get_instruments", params, false, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Buy places a market buy order for amount contracts of an instrument.
func (c *RESTClient) Buy(ctx context.Context, instrumentName, amount string) (*BuyResponse, error) {
	params := url.Values{}
	params.Set("instrument_name", instrumentName)
	params.Set("amount", amount)
	params.Set("type", "market")

	var result BuyResponse
	if err := c.call(ctx, "/private/buy", params, true, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RESTClient) call(ctx context.Context, path string, params url.Values, private bool, out interface{}) error {
	endpoint := c.baseURL + path + "?" + params.Encode()

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if private {
		req.SetBasicAuth(c.clientID, c.clientSecret)
	}

	// Execute the HTTP request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// Deribit reports API errors in the envelope, with or without a 2xx status
	var rawResp Response
	if err := json.Unmarshal(body, &rawResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("deribit error (%d): %s", resp.StatusCode, body)
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if rawResp.Error != nil {
		return rawResp.Error
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deribit error (%d): %s", resp.StatusCode, body)
	}

	if err := json.Unmarshal(rawResp.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
