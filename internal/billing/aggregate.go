package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const unknownLabel = "unknown"

var timeNow = func() time.Time { return time.Now().UTC() }

// GenerateParams describes the invoice to build from usage records.
type GenerateParams struct {
	TeamID      string
	TeamName    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	TaxRate     float64
	Pricing     PricingTable
	Notes       *string
}

type groupKey struct {
	agent string
	model string
}

type usageGroup struct {
	key      groupKey
	sessions int
	input    int64
	output   int64
	cached   int64
}

// GenerateInvoice prices the records started inside [PeriodStart, PeriodEnd]
// and returns an issued invoice with one line item per (agent, model) pair.
// Line items follow the order in which each pair first appears.
func GenerateInvoice(records []UsageRecord, p GenerateParams) (*Invoice, error) {
	if p.PeriodStart.After(p.PeriodEnd) {
		return nil, ErrInvalidPeriod
	}
	if p.TaxRate < 0 {
		return nil, ErrInvalidTaxRate
	}

	index := make(map[groupKey]int)
	var groups []*usageGroup
	var sessions int
	var totalIn, totalOut, totalCached int64

	for _, r := range records {
		if r.StartedAt.Before(p.PeriodStart) || r.StartedAt.After(p.PeriodEnd) {
			continue
		}
		key := groupKey{agent: labelOrUnknown(r.AgentName), model: labelOrUnknown(r.Model)}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, &usageGroup{key: key})
		}
		g := groups[i]
		g.sessions++
		g.input += r.InputTokens
		g.output += r.OutputTokens
		g.cached += r.CachedTokens

		sessions++
		totalIn += r.InputTokens
		totalOut += r.OutputTokens
		totalCached += r.CachedTokens
	}

	if sessions == 0 {
		return nil, ErrNoUsageInPeriod
	}

	items := make([]LineItem, 0, len(groups))
	var subtotal float64
	for _, g := range groups {
		amount := roundTo(tokenCost(g.input, g.output, g.cached, p.Pricing), 6)
		subtotal += amount
		items = append(items, LineItem{
			Description:  fmt.Sprintf("%s on %s", g.key.agent, g.key.model),
			AgentName:    g.key.agent,
			Model:        g.key.model,
			SessionCount: g.sessions,
			InputTokens:  g.input,
			OutputTokens: g.output,
			CachedTokens: g.cached,
			Amount:       amount,
		})
	}

	// Tax is taken on the running sum; only the reported subtotal is rounded.
	tax := roundTo(subtotal*p.TaxRate, 2)
	total := roundTo(subtotal+tax, 2)

	now := timeNow()
	return &Invoice{
		ID:                NewInvoiceID(),
		TeamID:            p.TeamID,
		TeamName:          p.TeamName,
		PeriodStart:       p.PeriodStart,
		PeriodEnd:         p.PeriodEnd,
		TotalSessions:     sessions,
		TotalInputTokens:  totalIn,
		TotalOutputTokens: totalOut,
		TotalCachedTokens: totalCached,
		Subtotal:          roundTo(subtotal, 6),
		TaxRate:           p.TaxRate,
		TaxAmount:         tax,
		TotalAmount:       total,
		Status:            StatusIssued,
		CreatedAt:         now,
		IssuedAt:          &now,
		Notes:             p.Notes,
		LineItems:         items,
	}, nil
}

// SessionAmount prices a single usage record, rounded like a line item.
func SessionAmount(r UsageRecord, pricing PricingTable) float64 {
	return roundTo(tokenCost(r.InputTokens, r.OutputTokens, r.CachedTokens, pricing), 6)
}

func tokenCost(input, output, cached int64, pricing PricingTable) float64 {
	return float64(input)/1000*pricing.InputPricePer1K +
		float64(output)/1000*pricing.OutputPricePer1K +
		float64(cached)/1000*pricing.CachedPricePer1K
}

// roundTo rounds the exact binary value of x to places decimals, half to
// even. 0.015 is stored as 0.01499999... and rounds to 0.01.
func roundTo(x float64, places int) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	if err != nil {
		return x
	}
	return f
}

// NewInvoiceID returns an id of the form inv_<12 hex chars>.
func NewInvoiceID() string {
	return "inv_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

func labelOrUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownLabel
	}
	return s
}
