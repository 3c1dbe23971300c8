package gateway

import (
	"strings"

	"github.com/shopspring/decimal"

	"posbridge/internal/extract"
)

// PaymentIntent is the part of a gateway event the bridge acts on.
type PaymentIntent struct {
	ID       string
	Status   string
	Amount   int64 // minor units
	Metadata map[string]string
}

// ParseEvent reads a gateway webhook body. The intent is either wrapped in
// payment_intent or is the body itself.
func ParseEvent(f extract.Fields) PaymentIntent {
	src := f.Object("payment_intent", "data")
	if src == nil {
		src = f
	}
	pi := PaymentIntent{
		ID:       src.String("id"),
		Status:   strings.ToLower(src.String("status")),
		Metadata: map[string]string{},
	}
	if amt, err := decimal.NewFromString(src.String("amount")); err == nil {
		pi.Amount = amt.IntPart()
	}
	for k, v := range src.Object("metadata") {
		pi.Metadata[k] = extract.Stringify(v)
	}
	return pi
}

// Completed reports whether the payment went through.
func (p PaymentIntent) Completed() bool {
	return p.Status == "completed" || p.Status == "succeeded"
}

// OrderID is the storefront order id stored at intent creation.
func (p PaymentIntent) OrderID() string { return p.Metadata["tilda_order_id"] }

// AmountString prefers the storefront's own amount text, so the relayed
// signature matches what the storefront computed.
func (p PaymentIntent) AmountString() string {
	if a := strings.TrimSpace(p.Metadata["tilda_amount"]); a != "" {
		return a
	}
	return decimal.New(p.Amount, -2).String()
}

// OrderFields synthesizes storefront order fields for a completed payment,
// for deployments where the payment itself creates the POS order.
func (p PaymentIntent) OrderFields() extract.Fields {
	f := extract.Fields{
		"orderid":        p.OrderID(),
		"amount":         p.AmountString(),
		"paymentid":      p.ID,
		"payment_status": "paid",
	}
	for src, dst := range map[string]string{
		"customer_name":  "name",
		"customer_email": "email",
		"customer_phone": "phone",
		"city":           "city",
		"products":       "products",
	} {
		if v := p.Metadata[src]; v != "" {
			f[dst] = v
		}
	}
	return f
}
