package webhook

import (
	"strings"

	"posbridge/internal/extract"
)

// Kind is the inferred origin of a webhook body.
type Kind string

const (
	KindGateway    Kind = "gateway"
	KindStorefront Kind = "storefront"
	KindProbe      Kind = "probe"
	KindUnknown    Kind = "unknown"
)

var (
	signatureHeaders = []string{"X-Ziina-Signature", "X-Webhook-Signature", "X-Hmac-Signature", "X-Signature"}
	authOnlyKeys     = map[string]bool{"secret": true, "token": true, "test": true}
	storefrontKeys   = concat(extract.ProductsKeys, extract.OrderIDKeys, extract.PaymentKeys,
		extract.PhoneKeys, []string{"formid", "formname", "tranid"})
)

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// Classify tells gateway notifications from storefront submissions. header
// returns a request header value by name.
func Classify(header func(string) string, f extract.Fields) Kind {
	for _, h := range signatureHeaders {
		if header(h) != "" {
			return KindGateway
		}
	}
	if isGatewayBody(f) {
		return KindGateway
	}
	for _, k := range storefrontKeys {
		if _, ok := f[k]; ok {
			return KindStorefront
		}
	}
	for k := range f {
		if !authOnlyKeys[strings.ToLower(k)] {
			return KindUnknown
		}
	}
	return KindProbe
}

func isGatewayBody(f extract.Fields) bool {
	if f.Object("payment_intent") != nil {
		return true
	}
	if _, ok := f["event"]; ok && f.Object("data") != nil {
		return true
	}
	_, hasID := f["id"]
	_, hasStatus := f["status"]
	_, hasCurrency := f["currency_code"]
	return hasID && hasStatus && (hasCurrency || f.Object("metadata") != nil)
}
