package gateway

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

	"github.com/shopspring/decimal"
)

const paymentIntentPath = "/payment_intent"

var (
	ErrMissingToken   = errors.New("ZIINA_API_TOKEN or ZIINA_API_KEY is missing")
	ErrNoRedirect     = errors.New("gateway response missing redirect_url")
	errNonPositiveSum = errors.New("amount must be positive")

	minorUnitsPerMajor = decimal.NewFromInt(100)
)

// IntentRequest is what the storefront hands over when checkout starts.
type IntentRequest struct {
	Amount      string
	OrderID     string
	PaymentID   string
	Name        string
	Email       string
	Phone       string
	CallbackURL string
	CancelURL   string
}

type intentBody struct {
	Amount       int64          `json:"amount"`
	CurrencyCode string         `json:"currency_code"`
	SuccessURL   string         `json:"success_url"`
	CancelURL    string         `json:"cancel_url"`
	Metadata     IntentMetadata `json:"metadata"`
}

// IntentMetadata travels with the payment and comes back on the webhook.
type IntentMetadata struct {
	OrderID       string `json:"tilda_order_id"`
	PaymentID     string `json:"tilda_payment_id"`
	Amount        string `json:"tilda_amount"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	CallbackURL   string `json:"tilda_callback_url,omitempty"`
}

// Client creates payment intents on the Ziina API.
type Client struct {
	apiURL     string
	token      string
	currency   string
	successURL string
	client     *http.Client
}

func NewClient(apiURL, token, currency, successURL string, timeout time.Duration) *Client {
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		token:      token,
		currency:   currency,
		successURL: successURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// MinorUnits converts a decimal amount string to the smallest currency
// unit, rounding half away from zero.
func MinorUnits(amount string) (int64, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(amount), ",", "."))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if !d.IsPositive() {
		return 0, errNonPositiveSum
	}
	return d.Mul(minorUnitsPerMajor).Round(0).IntPart(), nil
}

// CreateIntent registers a payment and returns the hosted checkout URL.
func (c *Client) CreateIntent(ctx context.Context, in IntentRequest) (string, error) {
	if c.token == "" {
		return "", ErrMissingToken
	}
	minor, err := MinorUnits(in.Amount)
	if err != nil {
		return "", err
	}
	paymentID := in.PaymentID
	if paymentID == "" {
		paymentID = "manual"
	}

	payload, err := json.Marshal(intentBody{
		Amount:       minor,
		CurrencyCode: c.currency,
		SuccessURL:   c.successURL,
		CancelURL:    in.CancelURL,
		Metadata: IntentMetadata{
			OrderID:       in.OrderID,
			PaymentID:     paymentID,
			Amount:        in.Amount,
			CustomerName:  in.Name,
			CustomerEmail: in.Email,
			CustomerPhone: in.Phone,
			CallbackURL:   in.CallbackURL,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment intent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+paymentIntentPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("payment intent request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read payment intent response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return "", fmt.Errorf("payment intent: status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("payment intent: status %d", resp.StatusCode)
	}

	var out struct {
		RedirectURL string `json:"redirect_url"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode payment intent response: %w", err)
	}
	if out.RedirectURL == "" {
		return "", ErrNoRedirect
	}
	return out.RedirectURL, nil
}
