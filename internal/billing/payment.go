package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InvoiceFromPayment builds an issued invoice holding a single payment line.
func InvoiceFromPayment(p PaymentRecord) (*Invoice, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := timeNow()
	period := p.CreatedAt
	if period.IsZero() {
		period = now
	}

	inv := &Invoice{
		ID:           NewInvoiceID(),
		CustomerName: p.CustomerName(),
		PeriodStart:  period,
		PeriodEnd:    period,
		Status:       StatusIssued,
		CreatedAt:    now,
		IssuedAt:     &now,
	}
	inv.LineItems = append(inv.LineItems, paymentLine(p))
	inv.Subtotal = p.Amount.Value
	inv.TotalAmount = p.Amount.Value
	return inv, nil
}

// AddPayment appends a payment line to inv and raises its totals by the
// payment amount. Existing line items are left untouched.
func AddPayment(inv *Invoice, p PaymentRecord) error {
	if err := p.Validate(); err != nil {
		return err
	}

	amount := decimal.NewFromFloat(p.Amount.Value)
	inv.LineItems = append(inv.LineItems, paymentLine(p))
	inv.Subtotal = decimal.NewFromFloat(inv.Subtotal).Add(amount).InexactFloat64()
	inv.TotalAmount = decimal.NewFromFloat(inv.TotalAmount).Add(amount).InexactFloat64()
	return nil
}

func paymentLine(p PaymentRecord) LineItem {
	return LineItem{
		Description:          fmt.Sprintf("Payment %s", p.Reference),
		Amount:               p.Amount.Value,
		PaymentTransactionID: p.Reference,
	}
}
