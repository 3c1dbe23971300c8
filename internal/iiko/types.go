package iiko

import "encoding/json"

// Order service types
const (
	ServicePickup  = "Pickup"
	ServiceCourier = "DeliveryByCourier"
)

type DeliveryCreateRequest struct {
	OrganizationID  string `json:"organizationId"`
	TerminalGroupID string `json:"terminalGroupId"`
	Order           Order  `json:"order"`
}

type Order struct {
	ExternalNumber   string    `json:"externalNumber"`
	OrderServiceType string    `json:"orderServiceType"`
	Phone            string    `json:"phone"`
	Customer         Customer  `json:"customer"`
	Comment          string    `json:"comment"`
	Items            []Item    `json:"items"`
	Payments         []Payment `json:"payments,omitempty"`
}

type Customer struct {
	Name string `json:"name"`
}

type Item struct {
	Type      string         `json:"type"`
	ProductID string         `json:"productId"`
	Amount    int            `json:"amount"`
	Modifiers []ItemModifier `json:"modifiers,omitempty"`
}

type ItemModifier struct {
	ProductID string `json:"productId"`
	Amount    int    `json:"amount"`
}

type Payment struct {
	PaymentTypeKind       string  `json:"paymentTypeKind"`
	Sum                   float64 `json:"sum"`
	PaymentTypeID         string  `json:"paymentTypeId"`
	IsProcessedExternally bool    `json:"isProcessedExternally"`
}

type tokenRequest struct {
	APILogin string `json:"apiLogin"`
}

type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"accessToken"`
	Snake       string `json:"access_token"`
}

func (r tokenResponse) value() string {
	for _, t := range []string{r.Token, r.AccessToken, r.Snake} {
		if t != "" {
			return t
		}
	}
	return ""
}

// SearchRequest is the body of a by-phone-and-date delivery search.
type SearchRequest struct {
	Phone            string   `json:"phone"`
	DeliveryDateFrom string   `json:"deliveryDateFrom"`
	DeliveryDateTo   string   `json:"deliveryDateTo"`
	OrganizationIDs  []string `json:"organizationIds"`
	RowsCount        int      `json:"rowsCount"`
}

type searchResponse struct {
	OrdersByOrganizations []struct {
		OrganizationID string            `json:"organizationId"`
		Orders         []DeliverySummary `json:"orders"`
	} `json:"ordersByOrganizations"`
}

// DeliverySummary is one order returned by the delivery search.
type DeliverySummary struct {
	ID             string `json:"id"`
	ExternalNumber string `json:"externalNumber"`
	CreationStatus string `json:"creationStatus"`
	Order          *struct {
		Sum     float64 `json:"sum"`
		Comment string  `json:"comment"`
		Status  string  `json:"status"`
	} `json:"order"`
}

type ChangePaymentsRequest struct {
	OrganizationID string    `json:"organizationId"`
	OrderID        string    `json:"orderId"`
	Payments       []Payment `json:"payments"`
}

// Response is a raw POS reply passed through to the webhook caller.
type Response = json.RawMessage
