// Package cashback provides the client for the external cashback service.
package cashback

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/rbarros/cashback-system/internal/domain"
)

// Client encapsulates the HTTP interaction with the external cashback
// service. Retry policy lives here; callers see a single bounded call.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type cashbackResponse struct {
	Cashback json.Number `json:"cashback"`
}

// NewClient creates a client for the external cashback service at the
// given URL. Every request, retries included, is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc.StandardClient(),
	}
}

// AccumulatedCashback requests the cashback value reported by the
// external service for the given CPF. Any upstream failure (transport
// error, non-200 status, malformed body, missing or zero cashback
// field) is reported as domain.ErrCashbackUnavailable.
func (c *Client) AccumulatedCashback(ctx context.Context, cpf string) (decimal.Decimal, error) {
	if c == nil || c.baseURL == "" {
		return decimal.Zero, fmt.Errorf("%w: client not configured", domain.ErrCashbackUnavailable)
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	reqURL := fmt.Sprintf("%s?cpf=%s", base, url.QueryEscape(cpf))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrCashbackUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: unexpected status %d", domain.ErrCashbackUnavailable, resp.StatusCode)
	}

	var result cashbackResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode response: %s", domain.ErrCashbackUnavailable, err)
	}

	if result.Cashback == "" {
		return decimal.Zero, fmt.Errorf("%w: missing cashback field", domain.ErrCashbackUnavailable)
	}

	value, err := decimal.NewFromString(result.Cashback.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed cashback field", domain.ErrCashbackUnavailable)
	}

	if value.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: empty cashback value", domain.ErrCashbackUnavailable)
	}

	return value, nil
}
