package catalog

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"posbridge/internal/extract"
	"posbridge/models"
)

// Product keys, highest priority first. Identifier groups are tried in
// order: explicit POS id, variant-level external id, product-level external
// id, then generic codes.
var (
	nameKeys         = []string{"name", "title", "product", "product_name"}
	modifierKeys     = []string{"modifier", "variant", "option"}
	quantityKeys     = []string{"quantity", "qty", "count"}
	posIDKeys        = []string{"iiko_product_id", "iikoProductId", "pos_product_id"}
	variantIDKeys    = []string{"variant_externalid", "variantExternalId", "variant_external_id"}
	productIDKeys    = []string{"externalid", "external_id", "tilda_product_id", "tildaProductId", "product_id", "productId"}
	genericIDKeys    = []string{"id", "sku", "article", "code"}
	optionsKey       = "options"
	optionVariantKey = "variant"
)

var (
	linePattern  = regexp.MustCompile(`(?i)^(.*?)\s*-\s*(\d+)\s*x\s*([\d.,]+)\s*=\s*([\d.,]+)\s*(.*)?$`)
	parenPattern = regexp.MustCompile(`^(.*)\(([^()]*)\)\s*$`)
	entrySplit   = regexp.MustCompile(`;\s*`)
	weightRe     = regexp.MustCompile(`(\d{2,4})\s*(?:гр|г|g)(?:[^\p{L}\p{N}_]|$)`)
	bareWeightRe = regexp.MustCompile(`^\d{2,4}$`)
)

// ParseProducts accepts a structured product array, a JSON encoded array or
// object, or a `;` delimited text blob of "name - qty x price = total" lines.
func ParseProducts(raw any) []models.LineItem {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		items := make([]models.LineItem, 0, len(v))
		for _, entry := range v {
			obj, ok := asFields(entry)
			if !ok {
				continue
			}
			items = append(items, parseProductObject(obj))
		}
		return items
	case map[string]any:
		return []models.LineItem{parseProductObject(extract.Fields(v))}
	case extract.Fields:
		return []models.LineItem{parseProductObject(v)}
	default:
		return parseProductText(extract.Stringify(v))
	}
}

func asFields(v any) (extract.Fields, bool) {
	switch t := v.(type) {
	case map[string]any:
		return extract.Fields(t), true
	case extract.Fields:
		return t, true
	}
	return nil, false
}

func parseProductObject(p extract.Fields) models.LineItem {
	modifier := p.String(modifierKeys...)
	if modifier == "" {
		modifier = optionVariants(p)
	}

	item := models.LineItem{
		Raw:          extract.Stringify(map[string]any(p)),
		Name:         p.String(nameKeys...),
		ModifierText: modifier,
		WeightKey:    ParseWeightKey(modifier),
		Quantity:     ClampQuantity(p.String(quantityKeys...)),
	}

	if posID := p.String(posIDKeys...); posID != "" {
		item.POSProductID = posID
		item.CandidateIDs = append(item.CandidateIDs, posID)
	}
	item.CandidateIDs = appendIDs(item.CandidateIDs, p, variantIDKeys)
	item.CandidateIDs = appendOptionIDs(item.CandidateIDs, p)
	item.CandidateIDs = appendIDs(item.CandidateIDs, p, productIDKeys)
	item.CandidateIDs = appendIDs(item.CandidateIDs, p, genericIDKeys)
	return item
}

func appendIDs(ids []string, p extract.Fields, keys []string) []string {
	for _, k := range keys {
		if s := p.String(k); s != "" && !contains(ids, s) {
			ids = append(ids, s)
		}
	}
	return ids
}

// appendOptionIDs picks up variant external ids from a storefront options list.
func appendOptionIDs(ids []string, p extract.Fields) []string {
	opts, _ := p[optionsKey].([]any)
	for _, o := range opts {
		obj, ok := asFields(o)
		if !ok {
			continue
		}
		ids = appendIDs(ids, obj, productIDKeys[:2])
	}
	return ids
}

func optionVariants(p extract.Fields) string {
	opts, _ := p[optionsKey].([]any)
	var parts []string
	for _, o := range opts {
		obj, ok := asFields(o)
		if !ok {
			continue
		}
		if v := obj.String(optionVariantKey); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

func parseProductText(s string) []models.LineItem {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return ParseProducts(v)
		}
	}

	var items []models.LineItem
	for _, part := range entrySplit.Split(s, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		title := part
		qty := 1
		if m := linePattern.FindStringSubmatch(part); m != nil {
			title = strings.TrimSpace(m[1])
			qty = ClampQuantity(m[2])
		}

		name, modifier := title, ""
		if m := parenPattern.FindStringSubmatch(title); m != nil {
			name = strings.TrimSpace(m[1])
			modifier = strings.TrimSpace(m[2])
		}
		items = append(items, models.LineItem{
			Raw:          part,
			Name:         name,
			ModifierText: modifier,
			WeightKey:    ParseWeightKey(modifier),
			Quantity:     qty,
		})
	}
	return items
}

// ParseWeightKey extracts the gram weight ("250 г" -> "250") used to tell
// apart same-named items sold in different weights.
func ParseWeightKey(text string) string {
	m := weightRe.FindStringSubmatch(extract.NormalizeString(text))
	if m == nil {
		return ""
	}
	return m[1]
}

// mappingWeightKey also treats a bare 2-4 digit catalog modifier as a weight.
func mappingWeightKey(text string) string {
	if w := ParseWeightKey(text); w != "" {
		return w
	}
	if s := extract.NormalizeString(text); bareWeightRe.MatchString(s) {
		return s
	}
	return ""
}

// ClampQuantity parses a quantity, defaulting to 1 for anything that is not
// a positive number. Fractions are rounded down, with 1 as the floor.
func ClampQuantity(s string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || f < 1 {
		return 1
	}
	if f > 1e6 {
		return 1e6
	}
	return int(f)
}

// IsCanonicalUUID reports whether s has the 8-4-4-4-12 UUID shape.
func IsCanonicalUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
