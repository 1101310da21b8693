// Package billing turns agent usage sessions and payment records into invoices
// and builds revenue summaries over them.
package billing

import (
	"context"
	"strings"
	"time"
)

// UsageRecord is one agent session as reported by api-core.
type UsageRecord struct {
	ID           string
	TeamID       string
	AgentName    string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CachedTokens int64
	StartedAt    time.Time
}

// PricingTable holds USD prices per 1K tokens.
type PricingTable struct {
	InputPricePer1K  float64
	OutputPricePer1K float64
	CachedPricePer1K float64
}

// DefaultPricing mirrors the api-core token prices.
func DefaultPricing() PricingTable {
	return PricingTable{
		InputPricePer1K:  0.003,
		OutputPricePer1K: 0.015,
		CachedPricePer1K: 0.00015,
	}
}

type LineItem struct {
	ID                   int64   `json:"id"`
	Description          string  `json:"description"`
	AgentName            string  `json:"agent_name,omitempty"`
	Model                string  `json:"model,omitempty"`
	SessionCount         int     `json:"session_count"`
	InputTokens          int64   `json:"input_tokens"`
	OutputTokens         int64   `json:"output_tokens"`
	CachedTokens         int64   `json:"cached_tokens"`
	Amount               float64 `json:"amount"`
	PaymentTransactionID string  `json:"payment_transaction_id,omitempty"`
}

type Invoice struct {
	ID                string     `json:"id"`
	TeamID            string     `json:"team_id"`
	TeamName          string     `json:"team_name"`
	CustomerName      string     `json:"customer_name,omitempty"`
	PeriodStart       time.Time  `json:"period_start"`
	PeriodEnd         time.Time  `json:"period_end"`
	TotalSessions     int        `json:"total_sessions"`
	TotalInputTokens  int64      `json:"total_input_tokens"`
	TotalOutputTokens int64      `json:"total_output_tokens"`
	TotalCachedTokens int64      `json:"total_cached_tokens"`
	Subtotal          float64    `json:"subtotal"`
	TaxRate           float64    `json:"tax_rate"`
	TaxAmount         float64    `json:"tax_amount"`
	TotalAmount       float64    `json:"total_amount"`
	Status            Status     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	IssuedAt          *time.Time `json:"issued_at"`
	Notes             *string    `json:"notes"`
	LineItems         []LineItem `json:"line_items"`
}

// InvoiceSummary is the compact view returned for payment-derived invoices.
type InvoiceSummary struct {
	ID            string  `json:"id"`
	TeamID        string  `json:"team_id,omitempty"`
	CustomerName  string  `json:"customer_name,omitempty"`
	TotalAmount   float64 `json:"total_amount"`
	LineItemCount int     `json:"line_item_count"`
	Status        Status  `json:"status"`
}

func (inv *Invoice) Summary() InvoiceSummary {
	return InvoiceSummary{
		ID:            inv.ID,
		TeamID:        inv.TeamID,
		CustomerName:  inv.CustomerName,
		TotalAmount:   inv.TotalAmount,
		LineItemCount: len(inv.LineItems),
		Status:        inv.Status,
	}
}

// Money is the nested amount object of the payments API.
type Money struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency,omitempty"`
}

// PaymentRecord is a payment as returned by the payments API.
type PaymentRecord struct {
	Reference string    `json:"reference"`
	Amount    *Money    `json:"amount"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (p PaymentRecord) CustomerName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Validate reports the first required field that is absent.
func (p PaymentRecord) Validate() error {
	if p.Amount == nil {
		return missingField("amount")
	}
	if p.CustomerName() == "" {
		return missingField("first_name/last_name")
	}
	if strings.TrimSpace(p.Reference) == "" {
		return missingField("reference")
	}
	return nil
}

type Team struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	MonthlyBudget float64 `json:"monthly_budget"`
}

type TeamCost struct {
	TeamID        string  `json:"team_id"`
	TotalSessions int64   `json:"total_sessions"`
	TotalCost     float64 `json:"total_cost"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	TeamID string
	Status Status
}

// Store persists invoices. Implementations must write an invoice and its
// line items atomically.
type Store interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	List(ctx context.Context, filter Filter) ([]*Invoice, error)
	// UpdateStatus moves an invoice from one status to another and fails with
	// ErrInvalidTransition if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
	// AddLineItem appends item and raises the stored subtotal and total by
	// item.Amount in one step, so concurrent appends never overwrite each other.
	AddLineItem(ctx context.Context, id string, item *LineItem) error
}

type UsageSource interface {
	ListSessions(ctx context.Context, teamID, status string) ([]UsageRecord, error)
	Session(ctx context.Context, id string) (UsageRecord, error)
}

type TeamDirectory interface {
	Teams(ctx context.Context) ([]Team, error)
	CostByTeam(ctx context.Context) ([]TeamCost, error)
}

type PaymentSource interface {
	Payment(ctx context.Context, id string) (PaymentRecord, error)
	CompletedPayments(ctx context.Context) ([]PaymentRecord, error)
}
