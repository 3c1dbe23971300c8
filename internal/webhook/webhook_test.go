package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posbridge/internal/bridge"
	"posbridge/internal/gateway"
	"posbridge/internal/iiko"
	"posbridge/internal/metrics"
	"posbridge/internal/tenant"
	"posbridge/models"
)

type fakeOrders struct {
	calls []bridge.Request
	res   *bridge.Result
	err   error
}

func (f *fakeOrders) Process(_ context.Context, req bridge.Request) (*bridge.Result, error) {
	f.calls = append(f.calls, req)
	res := f.res
	if res == nil {
		res = &bridge.Result{RequestID: req.RequestID}
	}
	return res, f.err
}

type fakeGateway struct {
	in       gateway.IntentRequest
	redirect string
	err      error
}

func (f *fakeGateway) CreateIntent(_ context.Context, in gateway.IntentRequest) (string, error) {
	f.in = in
	return f.redirect, f.err
}

type fakeNotifier struct {
	intents []gateway.PaymentIntent
	err     error
}

func (f *fakeNotifier) Notify(_ context.Context, p gateway.PaymentIntent) (int, error) {
	f.intents = append(f.intents, p)
	if f.err != nil {
		return http.StatusBadGateway, f.err
	}
	return http.StatusOK, nil
}

func do(t *testing.T, s *Server, method, target, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if strings.HasPrefix(strings.TrimSpace(body), "{") {
		req.Header.Set("Content-Type", "application/json")
	} else if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

const orderBody = `{"orderid":"1001","name":"Anna","phone":"+7 900 000-00-00","products":["Pizza - 1x500 = 500"],"paymentsystem":"cash"}`

func TestOrderRejectsNonPost(t *testing.T) {
	s := NewServer(Options{Orders: &fakeOrders{}})
	for _, path := range []string{"/api/tilda-iiko", "/api/webhook", "/api/init-payment"} {
		resp, _ := do(t, s, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
	}
}

func TestOrderSecret(t *testing.T) {
	orders := &fakeOrders{res: &bridge.Result{City: "msk", Action: bridge.ActionCreated}}
	s := NewServer(Options{Orders: orders, Secrets: []string{"s1", "s2"}})

	resp, body := do(t, s, http.MethodPost, "/api/tilda-iiko", orderBody, map[string]string{"X-Webhook-Secret": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", body["error"])
	debug, ok := body["debug"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, digest("nope"), debug["providedSha256"])
	assert.Len(t, debug["expectedSha256"], 2)
	assert.Empty(t, orders.calls)

	resp, body = do(t, s, http.MethodPost, "/api/tilda-iiko?secret=s2", orderBody, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Len(t, orders.calls, 1)
}

func TestOrderProbe(t *testing.T) {
	orders := &fakeOrders{}
	s := NewServer(Options{Orders: orders})

	resp, body := do(t, s, http.MethodPost, "/api/tilda-iiko", "test=test", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["probe"])
	assert.NotEmpty(t, body["requestId"])
	assert.Empty(t, orders.calls)
}

func TestOrderSuccess(t *testing.T) {
	orders := &fakeOrders{res: &bridge.Result{
		City:        "msk",
		Action:      bridge.ActionCreated,
		MappedItems: 1,
		Unmapped:    []models.UnmappedLine{{Name: "Cola", Raw: "Cola - 1x100 = 100"}},
		POS:         json.RawMessage(`{"orderInfo":{"id":"abc"}}`),
	}}
	s := NewServer(Options{Orders: orders})

	resp, body := do(t, s, http.MethodPost, "/api/tilda-iiko?city=msk", orderBody, map[string]string{
		"Referer":      "https://shop.example.com/spb/menu",
		"X-Request-ID": "req-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "req-1", body["requestId"])
	assert.Equal(t, "msk", body["city"])
	assert.Equal(t, "created", body["action"])
	assert.EqualValues(t, 1, body["mappedItems"])
	assert.Equal(t, map[string]any{"orderInfo": map[string]any{"id": "abc"}}, body["iiko"])
	unmapped := body["unmappedItems"].([]any)
	require.Len(t, unmapped, 1)
	assert.Equal(t, "Cola", unmapped[0].(map[string]any)["name"])

	require.Len(t, orders.calls, 1)
	hints := orders.calls[0].Hints
	assert.Equal(t, "msk", hints.QueryCity)
	assert.Equal(t, "https://shop.example.com/spb/menu", hints.Referer)
	assert.Equal(t, "1001", orders.calls[0].Fields.String("orderid"))
}

func TestOrderErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "unknown city",
			err:    &tenant.UnknownTenantError{Key: "nsk"},
			status: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "Unknown city", body["error"])
			},
		},
		{
			name:   "unmapped",
			err:    bridge.ErrUnmappedCatalog,
			status: http.StatusBadRequest,
		},
		{
			name:   "validation",
			err:    bridge.Invalid("organizationId", "missing"),
			status: http.StatusBadRequest,
		},
		{
			name:   "upstream",
			err:    &iiko.APIError{Op: "deliveries/create", StatusCode: http.StatusUnprocessableEntity, Body: json.RawMessage(`{"errorDescription":"bad"}`)},
			status: http.StatusUnprocessableEntity,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, map[string]any{"errorDescription": "bad"}, body["iikoError"])
			},
		},
		{
			name:   "other",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "boom", body["error"])
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewServer(Options{Orders: &fakeOrders{res: &bridge.Result{City: "msk"}, err: tc.err}})
			resp, body := do(t, s, http.MethodPost, "/api/tilda-iiko", orderBody, nil)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, false, body["ok"])
			if tc.check != nil {
				tc.check(t, body)
			}
		})
	}
}

func TestOrderBadForm(t *testing.T) {
	s := NewServer(Options{Orders: &fakeOrders{}})
	resp, body := do(t, s, http.MethodPost, "/api/tilda-iiko", "name=%zz", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["ok"])
	assert.Contains(t, body["error"], "body: malformed form body")
	assert.Contains(t, body, "city")
}

const gatewayBody = `{"event":"payment_intent.status.updated","data":{"id":"pi_1","status":"completed","amount":12550,"metadata":{"tilda_order_id":"1001","tilda_payment_id":"p-9","tilda_amount":"125.50","city":"dubai"}}}`

func TestPaymentWebhookRelaysCompletedIntent(t *testing.T) {
	notifier := &fakeNotifier{}
	orders := &fakeOrders{}
	s := NewServer(Options{Orders: orders, Notifier: notifier})

	resp, body := do(t, s, http.MethodPost, "/api/webhook", gatewayBody, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"received": true}, body)
	require.Len(t, notifier.intents, 1)
	assert.Equal(t, "1001", notifier.intents[0].OrderID())
	assert.Empty(t, orders.calls)
}

func TestPaymentWebhookAcksRelayFailure(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("storefront down")}
	s := NewServer(Options{Orders: &fakeOrders{}, Notifier: notifier})

	resp, body := do(t, s, http.MethodPost, "/api/webhook", gatewayBody, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])
}

func TestPaymentWebhookCreatesOrderWhenEnabled(t *testing.T) {
	orders := &fakeOrders{res: &bridge.Result{City: "dubai", Action: bridge.ActionCreated}}
	s := NewServer(Options{Orders: orders, Notifier: &fakeNotifier{}, PaymentCreatesOrder: true})

	resp, _ := do(t, s, http.MethodPost, "/api/webhook", gatewayBody, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, orders.calls, 1)
	assert.Equal(t, "dubai", orders.calls[0].Hints.BodyCity)
	assert.Equal(t, "paid", orders.calls[0].Fields.String("payment_status"))
}

func TestPaymentWebhookIgnoresPendingIntent(t *testing.T) {
	notifier := &fakeNotifier{}
	s := NewServer(Options{Orders: &fakeOrders{}, Notifier: notifier})

	body := `{"id":"pi_2","status":"pending","currency_code":"AED","metadata":{"tilda_order_id":"7"}}`
	resp, _ := do(t, s, http.MethodPost, "/api/webhook", body, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, notifier.intents)
}

func TestPaymentWebhookForwardsStorefrontOrder(t *testing.T) {
	orders := &fakeOrders{res: &bridge.Result{City: "msk", Action: bridge.ActionCreated}}
	s := NewServer(Options{Orders: orders})

	resp, body := do(t, s, http.MethodPost, "/api/webhook", orderBody, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])
	assert.EqualValues(t, http.StatusOK, body["orderStatus"])
	assert.Len(t, orders.calls, 1)
}

func TestPaymentWebhookUnknownBody(t *testing.T) {
	orders := &fakeOrders{}
	s := NewServer(Options{Orders: orders})

	resp, body := do(t, s, http.MethodPost, "/api/webhook", `{"hello":"world"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])
	assert.Empty(t, orders.calls)
}

func TestInitPayment(t *testing.T) {
	gw := &fakeGateway{redirect: "https://pay.example.com/pi_1"}
	s := NewServer(Options{Orders: &fakeOrders{}, Gateway: gw})

	resp, _ := do(t, s, http.MethodPost, "/api/init-payment", "amount=125.50&orderid=1001&name=Anna&CALLBACK_URL=https%3A%2F%2Fcb", map[string]string{
		"X-Forwarded-Host": "shop.example.com",
	})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "https://pay.example.com/pi_1", resp.Header.Get("Location"))
	assert.Equal(t, "125.50", gw.in.Amount)
	assert.Equal(t, "1001", gw.in.OrderID)
	assert.Equal(t, "https://cb", gw.in.CallbackURL)
	assert.Equal(t, "https://shop.example.com/orderfailed", gw.in.CancelURL)
}

func TestInitPaymentFailures(t *testing.T) {
	cases := []struct {
		name string
		gw   IntentCreator
		body string
		want string
	}{
		{"missing amount", &fakeGateway{}, "orderid=1", "Missing amount"},
		{"missing order", &fakeGateway{}, "amount=10", "Missing orderid"},
		{"no gateway", nil, "amount=10&orderid=1", "Configuration Error: Missing Ziina Token"},
		{"no token", &fakeGateway{err: gateway.ErrMissingToken}, "amount=10&orderid=1", "Configuration Error: Missing Ziina Token"},
		{"no redirect", &fakeGateway{err: gateway.ErrNoRedirect}, "amount=10&orderid=1", "Failed to initiate payment: No redirect URL"},
		{"upstream", &fakeGateway{err: errors.New("rejected")}, "amount=10&orderid=1", "Internal Server Error: rejected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewServer(Options{Orders: &fakeOrders{}, Gateway: tc.gw})
			req := httptest.NewRequest(http.MethodPost, "/api/init-payment", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			resp, err := s.App().Test(req)
			require.NoError(t, err)
			raw, _ := io.ReadAll(resp.Body)
			assert.Equal(t, tc.want, string(raw))
			assert.GreaterOrEqual(t, resp.StatusCode, 400)
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	s := NewServer(Options{Orders: &fakeOrders{}, Metrics: reg})

	resp, body := do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	do(t, s, http.MethodPost, "/api/webhook", `{"hello":"world"}`, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), `kind="unknown"`)
}

func TestClassify(t *testing.T) {
	noHeaders := func(string) string { return "" }
	cases := []struct {
		name   string
		header func(string) string
		body   map[string]any
		want   Kind
	}{
		{"signature header", func(h string) string {
			if h == "X-Ziina-Signature" {
				return "sig"
			}
			return ""
		}, map[string]any{"anything": 1}, KindGateway},
		{"intent object", noHeaders, map[string]any{"payment_intent": map[string]any{"id": "pi"}}, KindGateway},
		{"event envelope", noHeaders, map[string]any{"event": "x", "data": map[string]any{"id": "pi"}}, KindGateway},
		{"bare intent", noHeaders, map[string]any{"id": "pi", "status": "completed", "currency_code": "AED"}, KindGateway},
		{"storefront order", noHeaders, map[string]any{"orderid": "1", "products": []any{}}, KindStorefront},
		{"storefront form", noHeaders, map[string]any{"formid": "form1"}, KindStorefront},
		{"empty", noHeaders, map[string]any{}, KindProbe},
		{"test ping", noHeaders, map[string]any{"test": "test", "secret": "s"}, KindProbe},
		{"unrelated", noHeaders, map[string]any{"foo": "bar"}, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.header, tc.body))
		})
	}
}

func TestSecretMatches(t *testing.T) {
	assert.True(t, secretMatches("b", []string{"a", "b"}))
	assert.False(t, secretMatches("", []string{"a"}))
	assert.False(t, secretMatches("ab", []string{"a", "b"}))
	assert.Len(t, digest("x"), 12)
	assert.Empty(t, digest(""))
}
