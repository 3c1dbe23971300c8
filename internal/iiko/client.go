package iiko

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"posbridge/internal/metrics"
)

const (
	tokenPath          = "/api/1/access_token"
	createPath         = "/api/1/deliveries/create"
	searchPath         = "/api/1/deliveries/by_delivery_date_and_phone"
	changePaymentsPath = "/api/1/deliveries/change_payments"

	// SearchTimeLayout is the date format the delivery search expects.
	SearchTimeLayout = "2006-01-02 15:04:05.000"

	maxErrorBody = 4096
)

// ErrMissingToken is returned when the token endpoint answers 2xx without a token.
var ErrMissingToken = errors.New("iiko access token missing in response")

// APIError is a non-2xx reply from the POS.
type APIError struct {
	Op         string
	StatusCode int
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("iiko %s: status %d", e.Op, e.StatusCode)
}

// Client talks to the iiko Cloud API.
type Client struct {
	baseURL      string
	client       *http.Client
	tokens       *TokenCache
	tokenTimeout time.Duration
	orderTimeout time.Duration
	metrics      *metrics.Registry
}

// NewClient creates a POS client. Tokens are shared through the cache, so
// several clients for the same base URL may share one.
func NewClient(baseURL string, tokens *TokenCache, tokenTimeout, orderTimeout time.Duration, m *metrics.Registry) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{},
		tokens:       tokens,
		tokenTimeout: tokenTimeout,
		orderTimeout: orderTimeout,
		metrics:      m,
	}
}

// Token returns a bearer token for the api login, fetching a new one on a
// cache miss. Fetch failures are not retried.
func (c *Client) Token(ctx context.Context, apiLogin string) (string, error) {
	if t, ok := c.tokens.Get(c.baseURL, apiLogin); ok {
		return t, nil
	}

	var resp tokenResponse
	if err := c.post(ctx, "token", tokenPath, "", c.tokenTimeout, tokenRequest{APILogin: apiLogin}, &resp); err != nil {
		return "", err
	}
	token := resp.value()
	if token == "" {
		return "", ErrMissingToken
	}
	c.metrics.TokenFetched()
	c.tokens.Put(c.baseURL, apiLogin, token)
	return token, nil
}

// CreateDelivery submits a new delivery order and returns the raw reply.
func (c *Client) CreateDelivery(ctx context.Context, token string, req DeliveryCreateRequest) (Response, error) {
	var out Response
	if err := c.post(ctx, "create", createPath, token, c.orderTimeout, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindDeliveries lists orders for a phone number within the date window.
func (c *Client) FindDeliveries(ctx context.Context, token string, req SearchRequest) ([]DeliverySummary, error) {
	var resp searchResponse
	if err := c.post(ctx, "search", searchPath, token, c.orderTimeout, req, &resp); err != nil {
		return nil, err
	}
	var out []DeliverySummary
	for _, org := range resp.OrdersByOrganizations {
		out = append(out, org.Orders...)
	}
	return out, nil
}

// ChangePayments replaces the payments of an existing order.
func (c *Client) ChangePayments(ctx context.Context, token string, req ChangePaymentsRequest) (Response, error) {
	var out Response
	if err := c.post(ctx, "change_payments", changePaymentsPath, token, c.orderTimeout, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, op, path, token string, timeout time.Duration, in, out any) (err error) {
	started := time.Now()
	defer func() { c.metrics.ObservePOS(op, started, err) }()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("iiko %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read iiko %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: errorBody(raw)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode iiko %s response: %w", op, err)
	}
	return nil
}

// errorBody keeps a JSON error body as-is and quotes anything else.
func errorBody(raw []byte) json.RawMessage {
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}
