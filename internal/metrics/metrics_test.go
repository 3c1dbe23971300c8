package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()
	r.Webhook("storefront")
	r.Webhook("storefront")
	r.OrderCreated("msk")
	r.Unmapped(3)
	r.Unmapped(0)
	r.CatalogRefreshed(10, nil)
	r.CatalogRefreshed(0, errors.New("down"))
	r.ObservePOS("create", time.Now(), errors.New("502"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.WebhooksTotal.WithLabelValues("storefront")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.OrdersCreated.WithLabelValues("msk")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.UnmappedItems))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CatalogRefresh.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.UpstreamErrors.WithLabelValues("create")))
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.Webhook("probe")
		r.OrderCreated("msk")
		r.PaymentApplied("msk")
		r.TokenFetched()
		r.ObservePOS("token", time.Now(), nil)
	})
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.TokenFetched()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "posbridge_token_fetches_total 1")
}
