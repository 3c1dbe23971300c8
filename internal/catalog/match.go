package catalog

import (
	"posbridge/internal/extract"
	"posbridge/models"
)

// Match is a line item resolved to a POS catalog entry.
type Match struct {
	Item          models.LineItem
	POSProductID  string
	POSModifierID string
}

// Index is a tenant-scoped view over the catalog rows.
type Index struct {
	byID   map[string]models.CatalogMapping
	byName map[string][]models.CatalogMapping
}

// NewIndex keeps only the rows of city that carry a POS product id.
func NewIndex(city string, rows []models.CatalogMapping) *Index {
	idx := &Index{
		byID:   map[string]models.CatalogMapping{},
		byName: map[string][]models.CatalogMapping{},
	}
	city = extract.NormalizeString(city)
	for _, r := range rows {
		if r.POSProductID == "" || extract.NormalizeString(r.City) != city {
			continue
		}
		if r.ExternalProductID != "" {
			if _, dup := idx.byID[r.ExternalProductID]; !dup {
				idx.byID[r.ExternalProductID] = r
			}
		}
		if name := extract.NormalizeString(r.Name); name != "" {
			idx.byName[name] = append(idx.byName[name], r)
		}
	}
	return idx
}

// Lookup resolves one item: an explicit POS id, then catalog rows keyed by the
// item's identifiers in priority order, then a UUID-shaped identifier taken
// as a POS id, then name plus modifier.
func (idx *Index) Lookup(item models.LineItem) (Match, bool) {
	if item.POSProductID != "" {
		m := Match{Item: item, POSProductID: item.POSProductID}
		if r, ok := idx.byID[item.POSProductID]; ok {
			m.POSModifierID = r.POSModifierID
		}
		return m, true
	}
	for _, id := range item.CandidateIDs {
		if r, ok := idx.byID[id]; ok {
			return Match{Item: item, POSProductID: r.POSProductID, POSModifierID: r.POSModifierID}, true
		}
	}
	for _, id := range item.CandidateIDs {
		if IsCanonicalUUID(id) {
			return Match{Item: item, POSProductID: id}, true
		}
	}

	itemMod := extract.NormalizeString(item.ModifierText)
	for _, r := range idx.byName[extract.NormalizeString(item.Name)] {
		rowWeight := mappingWeightKey(r.Modifier)
		if item.WeightKey != "" && rowWeight != "" {
			if item.WeightKey != rowWeight {
				continue
			}
		} else if extract.NormalizeString(r.Modifier) != itemMod {
			continue
		}
		return Match{Item: item, POSProductID: r.POSProductID, POSModifierID: r.POSModifierID}, true
	}
	return Match{}, false
}

// MatchItems splits items into resolved matches and the ones left unmapped.
func MatchItems(city string, rows []models.CatalogMapping, items []models.LineItem) (matched []Match, unmapped []models.LineItem) {
	idx := NewIndex(city, rows)
	for _, it := range items {
		if m, ok := idx.Lookup(it); ok {
			matched = append(matched, m)
			continue
		}
		unmapped = append(unmapped, it)
	}
	return matched, unmapped
}
