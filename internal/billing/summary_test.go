package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	rec := Reconcile([]PaymentRecord{
		payment("ref_1", 100, "Alice", ""),
		payment("ref_2", 200, "Bob", ""),
		payment("ref_3", 150, "Alice", ""),
	})

	assert.Equal(t, 450.0, rec.TotalRevenue)
	assert.Equal(t, 3, rec.InvoiceCount)
	assert.Equal(t, []string{"Alice", "Bob"}, rec.Customers)
}

func TestReconcile_Empty(t *testing.T) {
	rec := Reconcile(nil)

	assert.Zero(t, rec.TotalRevenue)
	assert.Zero(t, rec.InvoiceCount)
	assert.NotNil(t, rec.Customers)
	assert.Empty(t, rec.Customers)
}

func TestReconcile_RoundsRevenue(t *testing.T) {
	rec := Reconcile([]PaymentRecord{
		payment("ref_1", 0.1, "Zed", "Last"),
		payment("ref_2", 0.2, "Amy", "First"),
		payment("ref_3", 0.004, "Amy", "First"),
	})

	assert.Equal(t, 0.3, rec.TotalRevenue)
	assert.Equal(t, []string{"Amy First", "Zed Last"}, rec.Customers)
}

func TestSummarize(t *testing.T) {
	invoices := []*Invoice{
		{ID: "inv_1", TotalAmount: 10.25, Status: StatusIssued},
		{ID: "inv_2", TotalAmount: 20.5, Status: StatusPaid},
		{ID: "inv_3", TotalAmount: 5, Status: StatusIssued},
	}
	costs := []TeamCost{
		{TeamID: "team_a", TotalSessions: 10, TotalCost: 250},
		{TeamID: "team_b", TotalSessions: 4, TotalCost: 333.333},
		{TeamID: "team_ghost", TotalSessions: 1, TotalCost: 7},
		{TeamID: "team_c", TotalSessions: 2, TotalCost: 12},
		{TeamID: "team_d", TotalSessions: 3, TotalCost: 1},
		{TeamID: "team_e", TotalSessions: 9, TotalCost: 999},
	}
	teams := []Team{
		{ID: "team_a", Name: "Alpha", MonthlyBudget: 5000},
		{ID: "team_b", Name: "Beta", MonthlyBudget: 1000},
		{ID: "team_c", Name: "", MonthlyBudget: 0},
		{ID: "team_d", Name: "Delta", MonthlyBudget: 100},
		{ID: "team_e", Name: "Echo", MonthlyBudget: 100},
	}

	s := Summarize(invoices, costs, teams)

	assert.Equal(t, 35.75, s.TotalRevenue)
	assert.Equal(t, 3, s.TotalInvoices)
	assert.Equal(t, map[string]int{"issued": 2, "paid": 1}, s.InvoicesByStatus)

	require.Len(t, s.TopTeams, 5)
	var ids []string
	for _, tc := range s.TopTeams {
		ids = append(ids, tc.TeamID)
	}
	assert.Equal(t, []string{"team_a", "team_b", "team_ghost", "team_c", "team_d"}, ids)

	alpha := s.TopTeams[0]
	assert.Equal(t, "Alpha", alpha.TeamName)
	assert.Equal(t, 5000.0, alpha.Budget)
	assert.Equal(t, 5.0, alpha.BudgetUsedPct)
	assert.Equal(t, int64(10), alpha.TotalSessions)

	assert.Equal(t, 33.3, s.TopTeams[1].BudgetUsedPct)

	ghost := s.TopTeams[2]
	assert.Equal(t, "team_ghost", ghost.TeamName)
	assert.Zero(t, ghost.Budget)
	assert.Zero(t, ghost.BudgetUsedPct)

	assert.Empty(t, s.TopTeams[3].TeamName)
	assert.Zero(t, s.TopTeams[3].BudgetUsedPct)
	assert.Equal(t, 1.0, s.TopTeams[4].BudgetUsedPct)
}

func TestSummarize_NoData(t *testing.T) {
	s := Summarize(nil, nil, nil)

	assert.Zero(t, s.TotalRevenue)
	assert.Zero(t, s.TotalInvoices)
	assert.Empty(t, s.InvoicesByStatus)
	assert.NotNil(t, s.TopTeams)
	assert.Empty(t, s.TopTeams)
}

func TestBudgetUsedPct(t *testing.T) {
	assert.Equal(t, 0.0, budgetUsedPct(100, 0))
	assert.Equal(t, 50.0, budgetUsedPct(50, 100))
	assert.Equal(t, 150.0, budgetUsedPct(150, 100))
	assert.Equal(t, 66.7, budgetUsedPct(2, 3))
}
