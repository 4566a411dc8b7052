package marketplace

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

	"marketplace-trading-bot-go/internal/guard"
	"marketplace-trading-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HTTPClient talks to the marketplace REST API. Every request passes the
// circuit breaker first and then the rate limiter; the client owns the
// sleeping the limiter asks for, bounded by the request context.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *guard.RateLimiter
	breaker    *guard.CircuitBreaker
	log        *zap.SugaredLogger
}

// NewHTTPClient builds a client against baseURL authenticated by apiKey.
func NewHTTPClient(baseURL, apiKey string, limiter *guard.RateLimiter, breaker *guard.CircuitBreaker, log *zap.SugaredLogger) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    limiter,
		breaker:    breaker,
		log:        log,
	}
}

// acquireSlot waits out the limiter's pacing delay, or its retry-after
// signal when the window is exhausted, until a request slot is granted or
// the context ends.
func (c *HTTPClient) acquireSlot(ctx context.Context) error {
	for {
		wait, err := c.limiter.Acquire()
		if err != nil {
			var limited *guard.RateLimitedError
			if !errors.As(err, &limited) {
				return err
			}
			c.log.Debugw("local rate limit reached", "retry_after", limited.RetryAfter)
			if sleepErr := sleepCtx(ctx, limited.RetryAfter); sleepErr != nil {
				return sleepErr
			}
			continue
		}
		if wait > 0 {
			if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
				return sleepErr
			}
		}
		return nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return &models.TransientAPIError{Op: "wait", Cause: ctx.Err()}
	case <-timer.C:
		return nil
	}
}

// doRequest performs one guarded API call and classifies the outcome.
// Transport failures and 5xx responses count against the breaker; a
// well-formed API refusal does not, because the service answered.
func (c *HTTPClient) doRequest(ctx context.Context, method, endpoint string, params url.Values, body any) ([]byte, error) {
	if err := c.breaker.CheckAndThrow(); err != nil {
		return nil, err
	}
	if err := c.acquireSlot(ctx); err != nil {
		return nil, err
	}

	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &models.ValidationError{Field: "request_body", Reason: err.Error()}
		}
		reader = strings.NewReader(string(payload))
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, &models.ValidationError{Field: "request", Reason: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, &models.TransientAPIError{Op: method + " " + endpoint, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, &models.TransientAPIError{Op: method + " " + endpoint, Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		// Remote quota, distinct from our local limiter. Not a breaker
		// failure: the service is healthy, just telling us to slow down.
		return nil, &models.TransientAPIError{
			Op:          method + " " + endpoint,
			Cause:       fmt.Errorf("status %d", resp.StatusCode),
			RateLimited: true,
		}
	case resp.StatusCode >= 500:
		c.breaker.RecordFailure()
		return nil, &models.TransientAPIError{
			Op:    method + " " + endpoint,
			Cause: fmt.Errorf("status %d: %s", resp.StatusCode, string(data)),
		}
	case resp.StatusCode >= 400:
		c.breaker.RecordSuccess()
		var apiErr models.APIError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Code != 0 {
			return nil, &apiErr
		}
		return nil, &models.APIError{Code: resp.StatusCode, Msg: string(data)}
	}

	c.breaker.RecordSuccess()
	return data, nil
}

// --- Client interface implementation ---

func (c *HTTPClient) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/v1/account/balance", nil, nil)
	if err != nil {
		return decimal.Zero, err
	}
	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return decimal.Zero, &models.TransientAPIError{Op: "GetBalance", Cause: err}
	}
	return out.Balance, nil
}

// Search returns current listings for an item, cheapest first.
func (c *HTTPClient) Search(ctx context.Context, itemName string) ([]models.Listing, error) {
	params := url.Values{}
	params.Set("item", itemName)
	params.Set("sort", "price_asc")
	data, err := c.doRequest(ctx, http.MethodGet, "/v1/market/search", params, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Listings []models.Listing `json:"listings"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &models.TransientAPIError{Op: "Search", Cause: err}
	}
	return out.Listings, nil
}

func (c *HTTPClient) BuyItems(ctx context.Context, saleIDs []string) (*BuyResult, error) {
	if len(saleIDs) == 0 {
		return nil, &models.ValidationError{Field: "sale_ids", Reason: "empty"}
	}
	body := map[string]any{"sale_ids": saleIDs}
	data, err := c.doRequest(ctx, http.MethodPost, "/v1/market/buy", nil, body)
	if err != nil {
		return nil, err
	}
	var result BuyResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &models.TransientAPIError{Op: "BuyItems", Cause: err}
	}
	return &result, nil
}

func (c *HTTPClient) ListItems(ctx context.Context, requests []ListRequest) (*ListResult, error) {
	if len(requests) == 0 {
		return nil, &models.ValidationError{Field: "requests", Reason: "empty"}
	}
	body := map[string]any{"items": requests}
	data, err := c.doRequest(ctx, http.MethodPost, "/v1/market/list", nil, body)
	if err != nil {
		return nil, err
	}
	var result ListResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &models.TransientAPIError{Op: "ListItems", Cause: err}
	}
	return &result, nil
}

func (c *HTTPClient) EditPrice(ctx context.Context, updates []PriceUpdate) (*EditResult, error) {
	if len(updates) == 0 {
		return nil, &models.ValidationError{Field: "updates", Reason: "empty"}
	}
	body := map[string]any{"updates": updates}
	data, err := c.doRequest(ctx, http.MethodPost, "/v1/market/edit-price", nil, body)
	if err != nil {
		return nil, err
	}
	var result EditResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &models.TransientAPIError{Op: "EditPrice", Cause: err}
	}
	return &result, nil
}

func (c *HTTPClient) GetInventory(ctx context.Context) ([]models.InventoryItem, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/v1/account/inventory", nil, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Items []models.InventoryItem `json:"items"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &models.TransientAPIError{Op: "GetInventory", Cause: err}
	}
	return out.Items, nil
}

func (c *HTTPClient) GetSalesHistory(ctx context.Context, itemName string) ([]models.Sale, error) {
	params := url.Values{}
	params.Set("item", itemName)
	params.Set("days", "30")
	data, err := c.doRequest(ctx, http.MethodGet, "/v1/market/sales", params, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Sales []models.Sale `json:"sales"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &models.TransientAPIError{Op: "GetSalesHistory", Cause: err}
	}
	return out.Sales, nil
}
