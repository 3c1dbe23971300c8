package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TILDA_IIKO_MAPPING_MODE", " CSV_URL ")
	t.Setenv("TILDA_WEBHOOK_SECRET", "one, two ,,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://api-ru.iiko.services", cfg.Iiko.BaseURL)
	assert.Equal(t, 50*time.Minute, cfg.Iiko.TokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Iiko.ReconcileLookback)
	assert.Equal(t, 24*time.Hour, cfg.Iiko.ReconcileAhead)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.TTL)
	assert.Equal(t, "csv_url", cfg.Catalog.Mode)
	assert.Equal(t, []string{"one", "two"}, cfg.Storefront.Secrets())
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUnknownCatalogMode(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	cfg.Catalog.Mode = "ftp"
	assert.Error(t, cfg.Validate())

	cfg.Catalog.Mode = "file"
	cfg.Catalog.File = ""
	assert.Error(t, cfg.Validate())
}

func TestGatewayToken_FallsBackToKey(t *testing.T) {
	g := GatewayConfig{APIKey: "key"}
	assert.Equal(t, "key", g.Token())
	g.APIToken = "token"
	assert.Equal(t, "token", g.Token())
}

func TestParseTenants_JSON(t *testing.T) {
	doc := `{
		"defaultCity": "msk",
		"projectidToCity": {"820503": "msk"},
		"pageIdToCity": {"10124533": "spb"},
		"cities": {
			"MSK": {"apiLogin": "login", "organizationId": "org", "terminalGroupId": "tg", "fallbackProductId": "fb"},
			"spb": {"apiLogin": "", "organizationId": "", "terminalGroupId": ""}
		}
	}`

	dir, skipped, err := ParseTenants([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "msk", dir.DefaultCity)
	assert.Equal(t, "msk", dir.ProjectIDToCity["820503"])
	assert.Equal(t, "spb", dir.PageIDToCity["10124533"])
	require.Contains(t, dir.Tenants, "msk")
	assert.Equal(t, "msk", dir.Tenants["msk"].Key)
	assert.Equal(t, "Card", dir.Tenants["msk"].PaymentKind())
	assert.Equal(t, []string{"spb"}, skipped)
}

func TestParseTenants_YAMLAndEmpty(t *testing.T) {
	doc := `
cities:
  omsk:
    apiLogin: a
    organizationId: o
    terminalGroupId: t
    paymentTypeId: p
    paymentTypeKind: External
`
	dir, skipped, err := ParseTenants([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, "External", dir.Tenants["omsk"].PaymentKind())

	dir, _, err = ParseTenants(nil)
	require.NoError(t, err)
	assert.Empty(t, dir.Tenants)

	_, _, err = ParseTenants([]byte("cities: [1, 2"))
	assert.Error(t, err)
}
