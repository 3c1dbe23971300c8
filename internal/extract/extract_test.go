package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBody(t *testing.T) {
	f, kind, err := ParseBody([]byte(`  {"orderid": "123", "amount": 15.50}  `))
	require.NoError(t, err)
	assert.Equal(t, BodyJSON, kind)
	assert.Equal(t, "123", f.String(OrderIDKeys...))
	assert.Equal(t, "15.50", f.String(AmountKeys...))

	f, kind, err = ParseBody([]byte("ORDERID=77&name=%D0%98%D0%B2%D0%B0%D0%BD&tag=a&tag=b"))
	require.NoError(t, err)
	assert.Equal(t, BodyForm, kind)
	assert.Equal(t, "77", f.String(OrderIDKeys...))
	assert.Equal(t, "Иван", f.String(NameKeys...))
	assert.Equal(t, []any{"a", "b"}, f["tag"])

	f, kind, err = ParseBody(nil)
	require.NoError(t, err)
	assert.Equal(t, BodyEmpty, kind)
	assert.Empty(t, f)

	_, _, err = ParseBody([]byte("a=%zz"))
	assert.Error(t, err)
}

func TestFields_FirstNonEmptyWins(t *testing.T) {
	f := Fields{"orderid": "  ", "order_id": nil, "ORDERID": "A-1", "orderId": "B-2"}
	assert.Equal(t, "A-1", f.String(OrderIDKeys...))
	assert.Equal(t, "", f.String("missing"))
}

func TestFields_ObjectFromJSONText(t *testing.T) {
	f := Fields{"payment": `{"orderid":"9","amount":"100"}`}
	p := f.Object(PaymentKeys...)
	require.NotNil(t, p)
	assert.Equal(t, "9", p.String(OrderIDKeys...))

	assert.Nil(t, Fields{"payment": "not json"}.Object(PaymentKeys...))
}

func TestExtract_NestedPaymentFallback(t *testing.T) {
	f, _, err := ParseBody([]byte(`{
		"Name": "Anna",
		"phone": "89001234567",
		"payment": {"orderid": "5501", "amount": "1 200,50", "products": ["x"]}
	}`))
	require.NoError(t, err)

	o := Extract(f)
	assert.Equal(t, "Anna", o.Name)
	assert.Equal(t, "5501", o.OrderID)
	require.True(t, o.Total.Valid)
	assert.Equal(t, "1200.5", o.Total.Decimal.String())
	assert.Equal(t, []any{"x"}, o.Products)
	assert.False(t, o.Paid)
}

func TestExtract_TopLevelBeatsPayment(t *testing.T) {
	o := Extract(Fields{
		"orderid":  "top",
		"total":    "10",
		"products": "A - 1 x 10 = 10",
		"payment":  Fields{"orderid": "nested", "amount": "99"},
	})
	assert.Equal(t, "top", o.OrderID)
	assert.Equal(t, "10", o.Total.Decimal.String())
	assert.Equal(t, "A - 1 x 10 = 10", o.Products)
}

func TestParseAmount(t *testing.T) {
	d, ok := ParseAmount("15,50 AED")
	require.True(t, ok)
	assert.Equal(t, "15.5", d.String())

	_, ok = ParseAmount("0")
	assert.False(t, ok)
	_, ok = ParseAmount("free")
	assert.False(t, ok)
	_, ok = ParseAmount("1.2.3")
	assert.False(t, ok)
}

func TestInferPaid(t *testing.T) {
	cases := []struct {
		name      string
		fields    Fields
		paymentID string
		want      bool
	}{
		{"payment id", Fields{}, "pi_1", true},
		{"flag one", Fields{"paid": "1"}, "", true},
		{"flag yes", Fields{"is_paid": " YES "}, "", true},
		{"success status", Fields{"status": "payment_success"}, "", true},
		{"cyrillic", Fields{"payment_status": "Оплачен"}, "", true},
		{"unpaid", Fields{"status": "unpaid"}, "", false},
		{"cyrillic unpaid", Fields{"status": "Не оплачен"}, "", false},
		{"pending", Fields{"status": "pending"}, "", false},
		{"nothing", Fields{}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InferPaid(tc.fields, tc.paymentID))
		})
	}
}

func TestNormalizeString(t *testing.T) {
	assert.Equal(t, "санкт петербург", NormalizeString("  Санкт \t Петербург "))
	assert.Equal(t, "", NormalizeString("   "))
}
