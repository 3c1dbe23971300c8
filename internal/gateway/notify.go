package gateway

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const paidState = "paid"

// Signature is the storefront's notification signature:
// md5(login + amount + orderid + paymentid + state + secret).
func Signature(login, amount, orderID, paymentID, state, secret string) string {
	sum := md5.Sum([]byte(login + amount + orderID + paymentID + state + secret))
	return hex.EncodeToString(sum[:])
}

// Notification is the body relayed to the storefront.
type Notification struct {
	PaymentSystem string `json:"payment_system"`
	OrderID       string `json:"order_id"`
	Amount        string `json:"amount"`
	PaymentID     string `json:"payment_id"`
	State         string `json:"state"`
	Signature     string `json:"signature"`
}

// Notifier confirms completed payments to the storefront.
type Notifier struct {
	login      string
	secret     string
	defaultURL string
	client     *http.Client
}

func NewNotifier(login, secret, defaultURL string, timeout time.Duration) *Notifier {
	return &Notifier{login: login, secret: secret, defaultURL: defaultURL, client: &http.Client{Timeout: timeout}}
}

// Build signs the notification for a completed intent.
func (n *Notifier) Build(p PaymentIntent) Notification {
	amount := p.AmountString()
	return Notification{
		PaymentSystem: n.login,
		OrderID:       p.OrderID(),
		Amount:        amount,
		PaymentID:     p.ID,
		State:         paidState,
		Signature:     Signature(n.login, amount, p.OrderID(), p.ID, paidState, n.secret),
	}
}

// TargetURL is the callback stored on the intent, else the configured one.
func (n *Notifier) TargetURL(p PaymentIntent) string {
	if u := p.Metadata["tilda_callback_url"]; u != "" {
		return u
	}
	return n.defaultURL
}

// Notify posts the signed notification and returns the storefront status.
func (n *Notifier) Notify(ctx context.Context, p PaymentIntent) (int, error) {
	body, err := json.Marshal(n.Build(p))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.TargetURL(p), bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("storefront notification failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("storefront notification: status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// HasSecret reports whether notifications can be signed meaningfully.
func (n *Notifier) HasSecret() bool { return n.secret != "" }
