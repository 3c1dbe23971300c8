package models

import "github.com/shopspring/decimal"

// CanonicalOrder is the normalized view of one storefront request
type CanonicalOrder struct {
	Name         string
	Email        string
	Phone        string
	DeliveryType string
	City         string // the storefront's own city field, not the tenant key
	Address      string
	Office       string
	DeliveryDate string
	DeliveryTime string
	Messenger    string
	Products     any // raw product list: []any, map or text
	Total        decimal.NullDecimal
	OrderID      string
	PaymentID    string
	Paid         bool
}

// LineItem is one parsed product line
type LineItem struct {
	Raw          string
	Name         string
	ModifierText string
	WeightKey    string
	Quantity     int
	CandidateIDs []string // priority order, highest first
	POSProductID string   // explicit POS id field, skips catalog lookup
}
