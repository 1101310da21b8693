package billing

import (
	"sort"

	"github.com/shopspring/decimal"
)

const topTeamsLimit = 5

type TeamCostSummary struct {
	TeamID        string  `json:"team_id"`
	TeamName      string  `json:"team_name"`
	TotalSessions int64   `json:"total_sessions"`
	TotalCost     float64 `json:"total_cost"`
	Budget        float64 `json:"budget"`
	BudgetUsedPct float64 `json:"budget_used_pct"`
}

type BillingSummary struct {
	TotalRevenue     float64           `json:"total_revenue"`
	TotalInvoices    int               `json:"total_invoices"`
	InvoicesByStatus map[string]int    `json:"invoices_by_status"`
	TopTeams         []TeamCostSummary `json:"top_teams"`
}

type Reconciliation struct {
	TotalRevenue float64  `json:"total_revenue"`
	InvoiceCount int      `json:"invoice_count"`
	Customers    []string `json:"customers"`
}

// Reconcile totals completed payments and lists the distinct customers,
// sorted by name.
func Reconcile(payments []PaymentRecord) Reconciliation {
	revenue := decimal.Zero
	seen := make(map[string]struct{})
	customers := make([]string, 0)

	for _, p := range payments {
		if p.Amount != nil {
			revenue = revenue.Add(decimal.NewFromFloat(p.Amount.Value))
		}
		name := p.CustomerName()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		customers = append(customers, name)
	}
	sort.Strings(customers)

	return Reconciliation{
		TotalRevenue: revenue.Round(2).InexactFloat64(),
		InvoiceCount: len(payments),
		Customers:    customers,
	}
}

// Summarize rolls up invoice revenue and status counts, and joins the first
// five cost entries, in the order given, with their team records.
func Summarize(invoices []*Invoice, costs []TeamCost, teams []Team) BillingSummary {
	revenue := decimal.Zero
	byStatus := make(map[string]int)
	for _, inv := range invoices {
		revenue = revenue.Add(decimal.NewFromFloat(inv.TotalAmount))
		byStatus[string(inv.Status)]++
	}

	return BillingSummary{
		TotalRevenue:     revenue.InexactFloat64(),
		TotalInvoices:    len(invoices),
		InvoicesByStatus: byStatus,
		TopTeams:         topTeams(costs, teams),
	}
}

func topTeams(costs []TeamCost, teams []Team) []TeamCostSummary {
	byID := make(map[string]Team, len(teams))
	for _, t := range teams {
		byID[t.ID] = t
	}

	if len(costs) > topTeamsLimit {
		costs = costs[:topTeamsLimit]
	}

	out := make([]TeamCostSummary, 0, len(costs))
	for _, c := range costs {
		name := c.TeamID
		var budget float64
		if t, ok := byID[c.TeamID]; ok {
			name = t.Name
			budget = t.MonthlyBudget
		}
		out = append(out, TeamCostSummary{
			TeamID:        c.TeamID,
			TeamName:      name,
			TotalSessions: c.TotalSessions,
			TotalCost:     c.TotalCost,
			Budget:        budget,
			BudgetUsedPct: budgetUsedPct(c.TotalCost, budget),
		})
	}
	return out
}

func budgetUsedPct(cost, budget float64) float64 {
	if budget == 0 {
		return 0
	}
	return roundTo(cost/budget*100, 1)
}
