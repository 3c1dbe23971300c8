package models

// Tenant is one storefront/city pairing with its POS credentials.
// Built from static configuration at startup and never mutated.
type Tenant struct {
	Key               string `yaml:"-" json:"-"`
	APILogin          string `yaml:"apiLogin" json:"apiLogin" validate:"required"`
	OrganizationID    string `yaml:"organizationId" json:"organizationId" validate:"required"`
	TerminalGroupID   string `yaml:"terminalGroupId" json:"terminalGroupId" validate:"required"`
	PaymentTypeID     string `yaml:"paymentTypeId" json:"paymentTypeId"`
	PaymentTypeKind   string `yaml:"paymentTypeKind" json:"paymentTypeKind"`
	FallbackProductID string `yaml:"fallbackProductId" json:"fallbackProductId"`
}

// PaymentKind returns the configured payment type kind, defaulting to Card.
func (t Tenant) PaymentKind() string {
	if t.PaymentTypeKind == "" {
		return "Card"
	}
	return t.PaymentTypeKind
}
