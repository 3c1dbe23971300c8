package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"posbridge/internal/catalog"
	"posbridge/internal/extract"
	"posbridge/internal/iiko"
	"posbridge/models"
)

const (
	maxExternalNumber   = 50
	defaultCustomerName = "Клиент"
	productItemType     = "Product"

	courierOverrideWarning = "ВНИМАНИЕ: запрошена курьерская доставка, но адрес не заполнен. Заказ оформлен как самовывоз, уточните адрес у клиента."
)

var courierMarkers = []string{"курьер", "доставк", "courier", "delivery"}

// Draft is a built POS order plus what the builder learned on the way.
type Draft struct {
	Request        iiko.DeliveryCreateRequest
	Unmapped       []models.LineItem
	MappedItems    int
	CourierDenied  bool
	UsedFallback   bool
	ExternalNumber string
}

// Build assembles the delivery payload for one tenant. Items without a
// catalog match are reported in Draft.Unmapped; when none match the tenant
// fallback product is used, and without one ErrUnmappedCatalog is returned.
func Build(t models.Tenant, order models.CanonicalOrder, items []models.LineItem, rows []models.CatalogMapping, now time.Time) (*Draft, error) {
	matched, unmapped := catalog.MatchItems(t.Key, rows, items)

	posItems := make([]iiko.Item, 0, len(matched))
	for _, m := range matched {
		it := iiko.Item{Type: productItemType, ProductID: m.POSProductID, Amount: m.Item.Quantity}
		if m.POSModifierID != "" {
			it.Modifiers = []iiko.ItemModifier{{ProductID: m.POSModifierID, Amount: 1}}
		}
		posItems = append(posItems, it)
	}

	d := &Draft{Unmapped: unmapped}
	if len(posItems) == 0 {
		if t.FallbackProductID == "" {
			return nil, ErrUnmappedCatalog
		}
		posItems = append(posItems, iiko.Item{Type: productItemType, ProductID: t.FallbackProductID, Amount: 1})
		d.UsedFallback = true
	}
	d.MappedItems = len(posItems)

	serviceType := iiko.ServicePickup
	if wantsCourier(order.DeliveryType) {
		if addressComplete(order.Address) {
			serviceType = iiko.ServiceCourier
		} else {
			d.CourierDenied = true
		}
	}

	d.ExternalNumber = ExternalNumber(order.OrderID, now)
	name := order.Name
	if name == "" {
		name = defaultCustomerName
	}

	d.Request = iiko.DeliveryCreateRequest{
		OrganizationID:  t.OrganizationID,
		TerminalGroupID: t.TerminalGroupID,
		Order: iiko.Order{
			ExternalNumber:   d.ExternalNumber,
			OrderServiceType: serviceType,
			Phone:            SanitizePhone(order.Phone),
			Customer:         iiko.Customer{Name: name},
			Comment:          Comment(t.Key, order, items, d.CourierDenied),
			Items:            posItems,
		},
	}
	return d, nil
}

// ExternalNumber is the storefront order id cut to the POS limit, or the
// current time in milliseconds when there is no id.
func ExternalNumber(orderID string, now time.Time) string {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return strconv.FormatInt(now.UnixMilli(), 10)
	}
	if r := []rune(orderID); len(r) > maxExternalNumber {
		return string(r[:maxExternalNumber])
	}
	return orderID
}

func wantsCourier(deliveryType string) bool {
	dt := extract.NormalizeString(deliveryType)
	for _, m := range courierMarkers {
		if strings.Contains(dt, m) {
			return true
		}
	}
	return false
}

func addressComplete(address string) bool {
	for _, r := range address {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// Comment renders the staff-facing order note.
func Comment(city string, o models.CanonicalOrder, items []models.LineItem, courierDenied bool) string {
	var lines []string
	add := func(format, v string) {
		if v != "" {
			lines = append(lines, fmt.Sprintf(format, v))
		}
	}

	add("Город: %s", city)
	add("Tilda order: %s", o.OrderID)
	add("Payment: %s", o.PaymentID)
	add("Доставка: %s", o.DeliveryType)
	if courierDenied {
		lines = append(lines, courierOverrideWarning)
	}

	joinNonEmpty := func(parts ...string) {
		var kept []string
		for i := 0; i+1 < len(parts); i += 2 {
			if parts[i+1] != "" {
				kept = append(kept, parts[i]+parts[i+1])
			}
		}
		if len(kept) > 0 {
			lines = append(lines, strings.Join(kept, ", "))
		}
	}
	joinNonEmpty("Дата: ", o.DeliveryDate, "Время: ", o.DeliveryTime)
	joinNonEmpty("Город (поле): ", o.City, "Адрес: ", o.Address, "Этаж/кв: ", o.Office)
	add("Мессенджер: %s", o.Messenger)

	if len(items) > 0 {
		lines = append(lines, "Состав:")
		for _, it := range items {
			line := "- " + it.Name
			if it.ModifierText != "" {
				line += " (" + it.ModifierText + ")"
			}
			line += fmt.Sprintf(" x%d", it.Quantity)
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
