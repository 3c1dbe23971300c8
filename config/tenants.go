package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"posbridge/models"
)

// TenantDirectory is the static tenant set plus the lookup tables used to
// resolve a storefront request to one of them.
type TenantDirectory struct {
	DefaultCity     string
	ProjectIDToCity map[string]string
	PageIDToCity    map[string]string
	Tenants         map[string]models.Tenant
}

type tenantFile struct {
	DefaultCity     string                   `yaml:"defaultCity" json:"defaultCity"`
	ProjectIDToCity map[string]string        `yaml:"projectIdToCity" json:"projectIdToCity"`
	ProjectidToCity map[string]string        `yaml:"projectidToCity" json:"projectidToCity"`
	ProjectIDCity   map[string]string        `yaml:"projectIdCity" json:"projectIdCity"`
	PageIDToCity    map[string]string        `yaml:"pageIdToCity" json:"pageIdToCity"`
	Cities          map[string]models.Tenant `yaml:"cities" json:"cities"`
}

// LoadTenants reads the tenant directory from the inline document or, if
// that is empty, from the configured file. Both JSON and YAML are accepted.
// Tenants missing credentials are returned in skipped and left out.
func LoadTenants(cfg TenantsConfig) (dir *TenantDirectory, skipped []string, err error) {
	raw := []byte(strings.TrimSpace(cfg.JSON))
	if len(raw) == 0 && cfg.File != "" {
		raw, err = os.ReadFile(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("read tenants file: %w", err)
		}
	}
	return ParseTenants(raw)
}

// ParseTenants decodes a tenant directory document.
func ParseTenants(raw []byte) (*TenantDirectory, []string, error) {
	dir := &TenantDirectory{
		ProjectIDToCity: map[string]string{},
		PageIDToCity:    map[string]string{},
		Tenants:         map[string]models.Tenant{},
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return dir, nil, nil
	}

	// JSON documents may carry tabs, which YAML rejects
	var f tenantFile
	var err error
	if trimmed := strings.TrimSpace(string(raw)); strings.HasPrefix(trimmed, "{") {
		err = json.Unmarshal([]byte(trimmed), &f)
	} else {
		err = yaml.Unmarshal(raw, &f)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("decode tenants: %w", err)
	}

	dir.DefaultCity = f.DefaultCity
	for _, m := range []map[string]string{f.ProjectIDCity, f.ProjectidToCity, f.ProjectIDToCity} {
		for k, v := range m {
			dir.ProjectIDToCity[strings.TrimSpace(k)] = v
		}
	}
	for k, v := range f.PageIDToCity {
		dir.PageIDToCity[strings.TrimSpace(k)] = v
	}

	validate := validator.New()
	var skipped []string
	for key, t := range f.Cities {
		norm := strings.ToLower(strings.TrimSpace(key))
		if err := validate.Struct(t); err != nil {
			skipped = append(skipped, norm)
			continue
		}
		t.Key = norm
		dir.Tenants[norm] = t
	}
	sort.Strings(skipped)
	return dir, skipped, nil
}
