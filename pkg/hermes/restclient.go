// Package hermes is a small client for the Pyth Hermes price service.
package hermes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrFutureTimestamp is returned when Hermes rejects a timestamp that is not yet published.
var ErrFutureTimestamp = errors.New("hermes: timestamp is in the future")

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetLatestPriceUpdates fetches the most recent update for the given feed ids.
func (c *RESTClient) GetLatestPriceUpdates(ctx context.Context, ids []string) (*PriceUpdate, error) {
	return c.getPriceUpdate(ctx, "/v2/updates/price/latest", ids)
}

// GetPriceUpdatesAtTimestamp fetches the first update published at or after publishTime.
func (c *RESTClient) GetPriceUpdatesAtTimestamp(ctx context.Context, publishTime int64, ids []string) (*PriceUpdate, error) {
	return c.getPriceUpdate(ctx, fmt.Sprintf("/v2/updates/price/%d", publishTime), ids)
}

func (c *RESTClient) getPriceUpdate(ctx context.Context, path string, ids []string) (*PriceUpdate, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no price feed ids")
	}

	query := url.Values{}
	for _, id := range ids {
		query.Add("ids[]", id)
	}
	query.Set("encoding", "hex")
	query.Set("parsed", "true")
	endpoint := c.baseURL + path + "?" + query.Encode()

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	// Execute the HTTP request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	// Check HTTP status code
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(string(body)), "future") {
			return nil, fmt.Errorf("%w: %s", ErrFutureTimestamp, body)
		}
		return nil, fmt.Errorf("hermes error (%d): %s", resp.StatusCode, body)
	}

	var update PriceUpdate
	if err := json.NewDecoder(resp.Body).Decode(&update); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(update.Binary.Data) == 0 || len(update.Parsed) == 0 {
		return nil, fmt.Errorf("hermes returned an empty update for %v", ids)
	}

	return &update, nil
}
