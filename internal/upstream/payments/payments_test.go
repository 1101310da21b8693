package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnmchuo/agentboard-billing/internal/billing"
)

func newPaymentsServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}
		body, ok := routes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPayment(t *testing.T) {
	srv := newPaymentsServer(t, map[string]string{
		"/payments/pay_1": `{"reference":"ref_1","amount":{"value":100.5,"currency":"USD"},
			"first_name":"Alice","last_name":"Smith","status":"completed","created_at":"2025-01-15T10:00:00Z"}`,
	})

	p, err := New(srv.URL, time.Second).Payment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "ref_1", p.Reference)
	assert.Equal(t, 100.5, p.Amount.Value)
	assert.Equal(t, "Alice Smith", p.CustomerName())
}

func TestPayment_Invalid(t *testing.T) {
	srv := newPaymentsServer(t, map[string]string{
		"/payments/no_amount": `{"reference":"ref_1","first_name":"Alice"}`,
		"/payments/flat":      `{"transaction_id":"t1","amount":100,"customer_name":"Bob"}`,
	})
	c := New(srv.URL, time.Second)

	_, err := c.Payment(context.Background(), "no_amount")
	assert.ErrorIs(t, err, billing.ErrMissingField)

	_, err = c.Payment(context.Background(), "flat")
	assert.ErrorIs(t, err, billing.ErrMalformedInput)

	_, err = c.Payment(context.Background(), "unknown")
	assert.ErrorIs(t, err, billing.ErrUpstreamUnavailable)
}

func TestCompletedPayments(t *testing.T) {
	srv := newPaymentsServer(t, map[string]string{
		"/payments?status=completed": `[
			{"reference":"ref_1","amount":{"value":100},"first_name":"Alice","status":"completed"},
			{"reference":"ref_2","amount":{"value":200},"first_name":"Bob","status":"completed"}
		]`,
	})

	payments, err := New(srv.URL, time.Second).CompletedPayments(context.Background())
	require.NoError(t, err)
	require.Len(t, payments, 2)

	rec := billing.Reconcile(payments)
	assert.Equal(t, 300.0, rec.TotalRevenue)
	assert.Equal(t, []string{"Alice", "Bob"}, rec.Customers)
}

func TestCompletedPayments_InvalidEntry(t *testing.T) {
	srv := newPaymentsServer(t, map[string]string{
		"/payments?status=completed": `[{"reference":"ref_1","first_name":"Alice"}]`,
	})

	_, err := New(srv.URL, time.Second).CompletedPayments(context.Background())
	assert.ErrorIs(t, err, billing.ErrMissingField)
}
