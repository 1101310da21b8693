// Package payments is the payments API client.
//
// Payments are decoded in their canonical shape, with the amount nested as
// {"value", "currency"}. The flat transaction_id/customer_name shape is not
// supported and fails validation.
package payments

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vnmchuo/agentboard-billing/internal/billing"
	"github.com/vnmchuo/agentboard-billing/internal/upstream"
)

type Client struct {
	api *upstream.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{api: upstream.NewClient("payments-api", strings.TrimRight(baseURL, "/"), timeout)}
}

func (c *Client) Payment(ctx context.Context, id string) (billing.PaymentRecord, error) {
	var p billing.PaymentRecord
	if err := c.api.GetJSON(ctx, "/payments/"+url.PathEscape(id), nil, &p); err != nil {
		return billing.PaymentRecord{}, err
	}
	if err := p.Validate(); err != nil {
		return billing.PaymentRecord{}, fmt.Errorf("payment %s: %w", id, err)
	}
	return p, nil
}

func (c *Client) CompletedPayments(ctx context.Context) ([]billing.PaymentRecord, error) {
	var payments []billing.PaymentRecord
	q := url.Values{"status": []string{"completed"}}
	if err := c.api.GetJSON(ctx, "/payments", q, &payments); err != nil {
		return nil, err
	}
	for i, p := range payments {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("payment %d: %w", i, err)
		}
	}
	return payments, nil
}
