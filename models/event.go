package models

import "time"

// Order sync event types
const (
	SyncEventCreated        = "created"
	SyncEventPaymentApplied = "payment_applied"
	SyncEventFailed         = "failed"
)

// OrderSyncEvent is the message payload published after every order webhook run
type OrderSyncEvent struct {
	Event          string         `json:"event"`           // created | payment_applied | failed
	RequestID      string         `json:"request_id"`      // correlation id of the inbound webhook
	City           string         `json:"city"`            // resolved tenant key
	ExternalNumber string         `json:"external_number"` // storefront order id as sent to the POS
	POSOrderID     string         `json:"pos_order_id"`    // id returned by the POS, if known
	MappedItems    int            `json:"mapped_items"`
	UnmappedItems  int            `json:"unmapped_items"`
	Unmapped       []UnmappedLine `json:"unmapped,omitempty"`
	Paid           bool           `json:"paid"`
	Total          string         `json:"total"` // decimal string, empty when not declared
	Error          string         `json:"error,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// UnmappedLine is a product line that matched no catalog row
type UnmappedLine struct {
	Name         string `json:"name"`
	ModifierText string `json:"modifierText"`
	Raw          string `json:"raw"`
}
