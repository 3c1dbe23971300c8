package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"posbridge/internal/extract"
	"posbridge/models"
)

//go:embed data/mappings.json
var embeddedMappings []byte

// Source loads the full catalog mapping table.
type Source interface {
	Load(ctx context.Context) ([]models.CatalogMapping, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]models.CatalogMapping, error)

func (f SourceFunc) Load(ctx context.Context) ([]models.CatalogMapping, error) { return f(ctx) }

// Column aliases shared by CSV headers and JSON rows.
var (
	cityCols       = []string{"city", "город", "citykey"}
	productIDCols  = []string{"tilda_product_id", "tilda product id", "tilda_productid", "tildaproductid"}
	nameCols       = []string{"tilda_product_name", "tilda name", "product_name", "tildaname"}
	modifierCols   = []string{"tilda_modifier", "tilda_modifier_value", "modifier", "tildamodifier"}
	posProductCols = []string{"iiko_product_id", "iiko product id", "iiko_productid", "iikoproductid"}
	posModCols     = []string{"iiko_modifier_id", "iiko modifier id", "iiko_modifierid", "iikomodifierid"}
)

// StaticSource serves rows decoded from a JSON document. Malformed JSON
// yields an empty catalog, as does a document that is not an array.
type StaticSource struct {
	Rows []models.CatalogMapping
}

func (s StaticSource) Load(context.Context) ([]models.CatalogMapping, error) { return s.Rows, nil }

// NewJSONSource decodes the inline mapping document once.
func NewJSONSource(raw string) StaticSource {
	rows, err := ParseJSON([]byte(raw))
	if err != nil {
		return StaticSource{}
	}
	return StaticSource{Rows: rows}
}

// NewEmbeddedSource serves the catalog compiled into the binary.
func NewEmbeddedSource() StaticSource {
	rows, _ := ParseJSON(embeddedMappings)
	return StaticSource{Rows: rows}
}

// FileSource reads a CSV or JSON file on every load; the extension decides.
type FileSource struct {
	Path string
}

func (s FileSource) Load(context.Context) ([]models.CatalogMapping, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(s.Path), ".json") {
		return ParseJSON(raw)
	}
	return ParseCSV(bytes.NewReader(raw))
}

// CSVURLSource downloads a published CSV sheet.
type CSVURLSource struct {
	URL    string
	Client *http.Client
}

// NewCSVURLSource builds a source with its own bounded client.
func NewCSVURLSource(url string, timeout time.Duration) *CSVURLSource {
	return &CSVURLSource{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (s *CSVURLSource) Load(ctx context.Context) ([]models.CatalogMapping, error) {
	if s.URL == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build mapping request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch mapping csv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch mapping csv: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return ParseCSV(resp.Body)
}

// ParseJSON decodes an array of mapping objects. Keys are matched
// case-insensitively against the column aliases.
func ParseJSON(raw []byte) ([]models.CatalogMapping, error) {
	var list []map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("decode mapping json: %w", err)
	}
	rows := make([]models.CatalogMapping, 0, len(list))
	for _, obj := range list {
		lowered := make(extract.Fields, len(obj))
		for k, v := range obj {
			lowered[extract.NormalizeString(k)] = v
		}
		rows = append(rows, rowFromFields(lowered))
	}
	return rows, nil
}

// ParseCSV reads a header row followed by mapping rows. Header names are
// normalized before alias lookup; short rows are padded with blanks.
func ParseCSV(r io.Reader) ([]models.CatalogMapping, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse mapping csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = extract.NormalizeString(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows []models.CatalogMapping
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		f := make(extract.Fields, len(header))
		for i, h := range header {
			if i < len(rec) {
				f[h] = rec[i]
			}
		}
		rows = append(rows, rowFromFields(f))
	}
	return rows, nil
}

func rowFromFields(f extract.Fields) models.CatalogMapping {
	return models.CatalogMapping{
		City:              f.String(cityCols...),
		ExternalProductID: f.String(productIDCols...),
		Name:              f.String(nameCols...),
		Modifier:          f.String(modifierCols...),
		POSProductID:      f.String(posProductCols...),
		POSModifierID:     f.String(posModCols...),
	}
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
