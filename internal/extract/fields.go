package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"posbridge/models"
)

// Known spellings per logical field, highest priority first.
var (
	OrderIDKeys      = []string{"orderid", "order_id", "ORDERID", "ORDER_ID", "orderId", "payment_order_id"}
	PaymentIDKeys    = []string{"paymentid", "payment_id", "PAYMENT_ID", "paymentId"}
	AmountKeys       = []string{"amount", "AMOUNT"}
	TotalKeys        = []string{"price", "total", "amount", "sum", "subtotal", "ORDER_SUM", "AMOUNT"}
	NameKeys         = []string{"name", "NAME", "Name"}
	EmailKeys        = []string{"email", "EMAIL", "Email"}
	PhoneKeys        = []string{"phone", "PHONE", "Phone"}
	DeliveryTypeKeys = []string{"delivery_type", "deliveryType", "DELIVERY_TYPE", "delivery"}
	CityKeys         = []string{"city", "CITY"}
	AddressKeys      = []string{"building", "address", "ADDRESS", "street"}
	OfficeKeys       = []string{"office", "flat", "apartment"}
	DeliveryDateKeys = []string{"delivery_date", "deliveryDate", "DELIVERY_DATE"}
	DeliveryTimeKeys = []string{"delivery_time", "deliveryTime", "DELIVERY_TIME"}
	MessengerKeys    = []string{"messenger", "MESSENGER"}
	ProductsKeys     = []string{"products", "PRODUCTS"}
	PaymentKeys      = []string{"payment", "PAYMENT"}
	ProjectIDKeys    = []string{"projectid", "projectId", "project_id", "PROJECTID", "PROJECT_ID"}
	PageIDKeys       = []string{"pageid", "pageId", "page_id", "PAGEID"}
	RefererKeys      = []string{"referer", "referrer", "REFERER"}
	CallbackURLKeys  = []string{"callback_url", "CALLBACK_URL"}
	PaidStatusKeys   = []string{"payment_status", "paymentStatus", "status", "paid", "is_paid", "success", "payment_success"}
)

var nonAmountChars = regexp.MustCompile(`[^\d.]`)

// Extract builds the canonical order from a decoded payload. A nested
// payment object fills in order id, total and products when the top level
// lacks them.
func Extract(f Fields) models.CanonicalOrder {
	payment := f.Object(PaymentKeys...)

	o := models.CanonicalOrder{
		Name:         f.String(NameKeys...),
		Email:        f.String(EmailKeys...),
		Phone:        f.String(PhoneKeys...),
		DeliveryType: f.String(DeliveryTypeKeys...),
		City:         f.String(CityKeys...),
		Address:      f.String(AddressKeys...),
		Office:       f.String(OfficeKeys...),
		DeliveryDate: f.String(DeliveryDateKeys...),
		DeliveryTime: f.String(DeliveryTimeKeys...),
		Messenger:    f.String(MessengerKeys...),
		OrderID:      f.String(OrderIDKeys...),
		PaymentID:    f.String(PaymentIDKeys...),
		Total:        ExtractTotal(f),
	}
	o.Products, _ = f.Lookup(ProductsKeys...)

	if payment != nil {
		if o.OrderID == "" {
			o.OrderID = payment.String(OrderIDKeys...)
		}
		if !o.Total.Valid {
			o.Total = ExtractTotal(payment)
		}
		if o.Products == nil {
			o.Products, _ = payment.Lookup(ProductsKeys...)
		}
	}

	o.Paid = InferPaid(f, o.PaymentID)
	return o
}

// ExtractTotal returns the first positive amount among the total-like fields.
func ExtractTotal(f Fields) decimal.NullDecimal {
	for _, k := range TotalKeys {
		v, ok := f.Lookup(k)
		if !ok {
			continue
		}
		if d, ok := ParseAmount(Stringify(v)); ok {
			return decimal.NullDecimal{Decimal: d, Valid: true}
		}
	}
	return decimal.NullDecimal{}
}

// ParseAmount reads a loosely formatted money amount ("1 500,50 руб.").
// Only positive amounts are accepted.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.Replace(s, ",", ".", 1)
	s = nonAmountChars.ReplaceAllString(s, "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// InferPaid reports whether the payload describes a paid order: a payment
// id is present, or a status-like field reads as affirmative.
func InferPaid(f Fields, paymentID string) bool {
	if paymentID != "" {
		return true
	}
	for _, k := range PaidStatusKeys {
		s := NormalizeString(f.String(k))
		if s == "" {
			continue
		}
		if s == "1" || s == "true" || s == "yes" {
			return true
		}
		if strings.Contains(s, "unpaid") || strings.Contains(s, "not paid") ||
			strings.Contains(s, "неоплач") || strings.Contains(s, "не оплач") {
			continue
		}
		if strings.Contains(s, "paid") || strings.Contains(s, "success") || strings.Contains(s, "оплач") {
			return true
		}
	}
	return false
}

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeString collapses non-breaking spaces and whitespace runs, trims
// and lower-cases.
func NormalizeString(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}
