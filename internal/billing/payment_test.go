package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payment(ref string, amount float64, first, last string) PaymentRecord {
	return PaymentRecord{
		Reference: ref,
		Amount:    &Money{Value: amount, Currency: "USD"},
		FirstName: first,
		LastName:  last,
		Status:    "completed",
		CreatedAt: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestInvoiceFromPayment(t *testing.T) {
	inv, err := InvoiceFromPayment(payment("ref_1", 100.5, "Alice", "Smith"))
	require.NoError(t, err)

	assert.Regexp(t, `^inv_[0-9a-f]{12}$`, inv.ID)
	assert.Equal(t, "Alice Smith", inv.CustomerName)
	assert.Empty(t, inv.TeamID)
	assert.Equal(t, StatusIssued, inv.Status)
	assert.Equal(t, 100.5, inv.TotalAmount)
	assert.Equal(t, 100.5, inv.Subtotal)
	require.Len(t, inv.LineItems, 1)
	assert.Equal(t, "Payment ref_1", inv.LineItems[0].Description)
	assert.Equal(t, "ref_1", inv.LineItems[0].PaymentTransactionID)
	assert.Equal(t, 100.5, inv.LineItems[0].Amount)

	summary := inv.Summary()
	assert.Equal(t, inv.ID, summary.ID)
	assert.Equal(t, 100.5, summary.TotalAmount)
	assert.Equal(t, 1, summary.LineItemCount)
}

func TestInvoiceFromPayment_SingleName(t *testing.T) {
	inv, err := InvoiceFromPayment(payment("ref_2", 10, "", "Prince"))
	require.NoError(t, err)
	assert.Equal(t, "Prince", inv.CustomerName)
}

func TestInvoiceFromPayment_MissingFields(t *testing.T) {
	noAmount := payment("ref_1", 1, "Alice", "Smith")
	noAmount.Amount = nil

	cases := map[string]PaymentRecord{
		"amount":    noAmount,
		"name":      payment("ref_1", 1, " ", ""),
		"reference": payment("", 1, "Alice", "Smith"),
	}

	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			inv, err := InvoiceFromPayment(p)
			assert.Nil(t, inv)
			assert.ErrorIs(t, err, ErrMissingField)
			assert.ErrorIs(t, err, ErrMalformedInput)
		})
	}
}

func TestAddPayment(t *testing.T) {
	inv, err := InvoiceFromPayment(payment("ref_0", 10, "Alice", "Smith"))
	require.NoError(t, err)

	require.NoError(t, AddPayment(inv, payment("ref_1", 100.1, "Bob", "Jones")))

	assert.Equal(t, 110.1, inv.TotalAmount)
	assert.Equal(t, "Alice Smith", inv.CustomerName)
	require.Len(t, inv.LineItems, 2)
	assert.Equal(t, "Payment ref_0", inv.LineItems[0].Description)
	assert.Equal(t, "Payment ref_1", inv.LineItems[1].Description)
}

func TestAddPayment_RejectsInvalidPaymentWithoutMutation(t *testing.T) {
	inv, err := InvoiceFromPayment(payment("ref_0", 10, "Alice", "Smith"))
	require.NoError(t, err)

	bad := payment("ref_1", 5, "Bob", "Jones")
	bad.Amount = nil
	err = AddPayment(inv, bad)

	assert.ErrorIs(t, err, ErrMissingField)
	assert.Len(t, inv.LineItems, 1)
	assert.Equal(t, 10.0, inv.TotalAmount)
}

func TestAddPayment_OrderOnlyAffectsLineOrder(t *testing.T) {
	p1 := payment("ref_1", 100.1, "Bob", "Jones")
	p2 := payment("ref_2", 200.2, "Carol", "White")

	a, err := InvoiceFromPayment(payment("ref_0", 0.3, "Alice", "Smith"))
	require.NoError(t, err)
	b := cloneInvoice(a)

	require.NoError(t, AddPayment(a, p1))
	require.NoError(t, AddPayment(a, p2))
	require.NoError(t, AddPayment(b, p2))
	require.NoError(t, AddPayment(b, p1))

	assert.Equal(t, a.TotalAmount, b.TotalAmount)
	assert.Equal(t, 300.6, a.TotalAmount)
	assert.Equal(t, "Payment ref_1", a.LineItems[1].Description)
	assert.Equal(t, "Payment ref_2", b.LineItems[1].Description)
}

func TestPaymentRecord_JSONRoundTrip(t *testing.T) {
	const doc = `{
		"reference": "ref_42",
		"amount": {"value": 100.5, "currency": "USD"},
		"first_name": "Alice",
		"last_name": "Smith",
		"status": "completed",
		"created_at": "2025-01-15T10:00:00Z"
	}`

	var p PaymentRecord
	require.NoError(t, json.Unmarshal([]byte(doc), &p))
	require.NoError(t, p.Validate())
	assert.Equal(t, "Alice Smith", p.CustomerName())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, doc, string(out))

	var again PaymentRecord
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Equal(t, p, again)
}

func TestPaymentRecord_FlatShapeRejected(t *testing.T) {
	var p PaymentRecord
	err := json.Unmarshal([]byte(`{"transaction_id":"t1","amount":100,"customer_name":"Bob"}`), &p)
	assert.Error(t, err)
}
