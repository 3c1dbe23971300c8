package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the bridge's collectors on a private registry. A nil
// *Registry is valid and records nothing.
type Registry struct {
	reg             *prometheus.Registry
	WebhooksTotal   *prometheus.CounterVec
	OrdersCreated   *prometheus.CounterVec
	PaymentsApplied *prometheus.CounterVec
	UnmappedItems   prometheus.Counter
	TokenFetches    prometheus.Counter
	CatalogRefresh  *prometheus.CounterVec
	UpstreamErrors  *prometheus.CounterVec
	POSLatencySec   *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "posbridge_webhooks_total", Help: "Webhooks received, by inferred kind."}, []string{"kind"})
	created := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "posbridge_orders_created_total", Help: "POS orders created, by city."}, []string{"city"})
	applied := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "posbridge_payments_applied_total", Help: "Payments applied to existing POS orders, by city."}, []string{"city"})
	unmapped := prometheus.NewCounter(prometheus.CounterOpts{Name: "posbridge_unmapped_items_total", Help: "Product lines that matched no catalog row."})
	tokens := prometheus.NewCounter(prometheus.CounterOpts{Name: "posbridge_token_fetches_total", Help: "POS access tokens fetched upstream."})
	catalog := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "posbridge_catalog_refresh_total", Help: "Catalog reloads, by result."}, []string{"result"})
	upstream := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "posbridge_upstream_errors_total", Help: "Failed POS calls, by operation."}, []string{"op"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "posbridge_pos_latency_seconds",
		Help:    "POS call latency, by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	r.MustRegister(webhooks, created, applied, unmapped, tokens, catalog, upstream, latency)
	return &Registry{
		reg:             r,
		WebhooksTotal:   webhooks,
		OrdersCreated:   created,
		PaymentsApplied: applied,
		UnmappedItems:   unmapped,
		TokenFetches:    tokens,
		CatalogRefresh:  catalog,
		UpstreamErrors:  upstream,
		POSLatencySec:   latency,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) Webhook(kind string) {
	if r != nil {
		r.WebhooksTotal.WithLabelValues(kind).Inc()
	}
}

func (r *Registry) OrderCreated(city string) {
	if r != nil {
		r.OrdersCreated.WithLabelValues(city).Inc()
	}
}

func (r *Registry) PaymentApplied(city string) {
	if r != nil {
		r.PaymentsApplied.WithLabelValues(city).Inc()
	}
}

func (r *Registry) Unmapped(n int) {
	if r != nil && n > 0 {
		r.UnmappedItems.Add(float64(n))
	}
}

func (r *Registry) TokenFetched() {
	if r != nil {
		r.TokenFetches.Inc()
	}
}

func (r *Registry) CatalogRefreshed(_ int, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.CatalogRefresh.WithLabelValues(result).Inc()
}

// ObservePOS records one POS call.
func (r *Registry) ObservePOS(op string, started time.Time, err error) {
	if r == nil {
		return
	}
	r.POSLatencySec.WithLabelValues(op).Observe(time.Since(started).Seconds())
	if err != nil {
		r.UpstreamErrors.WithLabelValues(op).Inc()
	}
}
